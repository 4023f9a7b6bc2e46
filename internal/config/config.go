package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix          = "PIXVAULT"
	defaultHTTPAddress = "0.0.0.0:8080"
	defaultLogLevel    = "info"
	defaultMongoURI    = "mongodb://localhost:27017"
	defaultMongoDB     = "pixvault"
	defaultTokenTTL    = 60 * time.Minute
	defaultJPEGQuality = 85
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress string
	LogLevel    string

	SessionSigningKey string
	SessionTokenTTL   time.Duration

	MongoURI      string
	MongoDatabase string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string

	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3PublicURL string

	JPEGQuality int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.token_ttl_minutes", int(defaultTokenTTL.Minutes()))
	configViper.SetDefault("mongo.uri", defaultMongoURI)
	configViper.SetDefault("mongo.database", defaultMongoDB)
	configViper.SetDefault("minio.endpoint", "localhost:9000")
	configViper.SetDefault("minio.bucket", "pixvault")
	configViper.SetDefault("minio.use_ssl", false)
	configViper.SetDefault("s3.region", "us-east-1")
	configViper.SetDefault("s3.bucket", "pixvault-large")
	configViper.SetDefault("image.jpeg_quality", defaultJPEGQuality)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		LogLevel:          configViper.GetString("log.level"),
		SessionSigningKey: configViper.GetString("session.signing_secret"),
		SessionTokenTTL:   time.Duration(configViper.GetInt("session.token_ttl_minutes")) * time.Minute,
		MongoURI:          configViper.GetString("mongo.uri"),
		MongoDatabase:     configViper.GetString("mongo.database"),
		MinioEndpoint:     configViper.GetString("minio.endpoint"),
		MinioAccessKey:    configViper.GetString("minio.access_key"),
		MinioSecretKey:    configViper.GetString("minio.secret_key"),
		MinioBucket:       configViper.GetString("minio.bucket"),
		MinioUseSSL:       configViper.GetBool("minio.use_ssl"),
		MinioPublicURL:    configViper.GetString("minio.public_url"),
		S3Region:          configViper.GetString("s3.region"),
		S3Endpoint:        configViper.GetString("s3.endpoint"),
		S3AccessKey:       configViper.GetString("s3.access_key"),
		S3SecretKey:       configViper.GetString("s3.secret_key"),
		S3Bucket:          configViper.GetString("s3.bucket"),
		S3PublicURL:       configViper.GetString("s3.public_url"),
		JPEGQuality:       configViper.GetInt("image.jpeg_quality"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningKey) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.MongoURI) == "" {
		return fmt.Errorf("mongo.uri is required")
	}
	if strings.TrimSpace(c.MongoDatabase) == "" {
		return fmt.Errorf("mongo.database is required")
	}
	if strings.TrimSpace(c.MinioEndpoint) == "" {
		return fmt.Errorf("minio.endpoint is required")
	}
	if strings.TrimSpace(c.S3Bucket) == "" {
		return fmt.Errorf("s3.bucket is required")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("image.jpeg_quality must be between 1 and 100")
	}
	return nil
}
