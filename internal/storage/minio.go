package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig describes the compact-object backend connection.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL overrides the derived public base URL (scheme + endpoint).
	PublicURL string
}

// MinioBackend is the compact-object variant. Its backing service has
// tighter practical size ceilings but lower latency for small payloads.
type MinioBackend struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinioBackend connects to MinIO and ensures the bucket exists.
func NewMinioBackend(ctx context.Context, cfg MinioConfig) (*MinioBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: minio bucket create: %w", err)
		}
	}

	baseURL := strings.TrimSuffix(cfg.PublicURL, "/")
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
	}

	return &MinioBackend{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: baseURL,
	}, nil
}

func (b *MinioBackend) Exists(ctx context.Context, name string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, objectPrefix+name, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("storage: minio stat %s: %w", name, err)
	}
	return true, nil
}

func (b *MinioBackend) Save(ctx context.Context, name string, data []byte) (string, error) {
	_, err := b.client.PutObject(ctx, b.bucket, objectPrefix+name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return "", fmt.Errorf("storage: minio put %s: %w", name, err)
	}
	return b.URL(name), nil
}

func (b *MinioBackend) URL(name string) string {
	return fmt.Sprintf("%s/%s/%s%s", b.baseURL, b.bucket, objectPrefix, name)
}

func (b *MinioBackend) Fetch(ctx context.Context, name string) ([]byte, error) {
	object, err := b.client.GetObject(ctx, b.bucket, objectPrefix+name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: minio get %s: %w", name, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("storage: minio read %s: %w", name, err)
	}
	return data, nil
}
