package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftbyte/pixvault/backend/internal/auth"
	"github.com/driftbyte/pixvault/backend/internal/config"
	"github.com/driftbyte/pixvault/backend/internal/logging"
	"github.com/driftbyte/pixvault/backend/internal/server"
	"github.com/driftbyte/pixvault/backend/internal/storage"
	"github.com/driftbyte/pixvault/backend/internal/store"
	"github.com/driftbyte/pixvault/backend/internal/vault"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "pixvault-api",
		Short: "PixVault deduplicating image storage service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("mongo-uri", defaults.GetString("mongo.uri"), "MongoDB connection URI")
	cmd.PersistentFlags().String("mongo-database", defaults.GetString("mongo.database"), "MongoDB database name")
	cmd.PersistentFlags().String("minio-endpoint", defaults.GetString("minio.endpoint"), "MinIO endpoint for compact objects")
	cmd.PersistentFlags().String("minio-bucket", defaults.GetString("minio.bucket"), "MinIO bucket")
	cmd.PersistentFlags().String("s3-region", defaults.GetString("s3.region"), "S3 region for general objects")
	cmd.PersistentFlags().String("s3-bucket", defaults.GetString("s3.bucket"), "S3 bucket")
	cmd.PersistentFlags().Int("jpeg-quality", defaults.GetInt("image.jpeg_quality"), "JPEG re-encode quality")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "mongo.uri", "mongo-uri")
	bindFlag(cmd, "mongo.database", "mongo-database")
	bindFlag(cmd, "minio.endpoint", "minio-endpoint")
	bindFlag(cmd, "minio.bucket", "minio-bucket")
	bindFlag(cmd, "s3.region", "s3-region")
	bindFlag(cmd, "s3.bucket", "s3-bucket")
	bindFlag(cmd, "image.jpeg_quality", "jpeg-quality")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.New(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	startupCtx, cancelStartup := context.WithTimeout(ctx, 30*time.Second)
	defer cancelStartup()

	documents, err := store.Open(startupCtx, appConfig.MongoURI, appConfig.MongoDatabase, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := documents.Close(shutdownCtx); err != nil {
			logger.Warn("document store close failed", zap.Error(err))
		}
	}()

	compact, err := storage.NewMinioBackend(startupCtx, storage.MinioConfig{
		Endpoint:  appConfig.MinioEndpoint,
		AccessKey: appConfig.MinioAccessKey,
		SecretKey: appConfig.MinioSecretKey,
		Bucket:    appConfig.MinioBucket,
		UseSSL:    appConfig.MinioUseSSL,
		PublicURL: appConfig.MinioPublicURL,
	})
	if err != nil {
		return err
	}

	general, err := storage.NewS3Backend(startupCtx, storage.S3Config{
		Region:    appConfig.S3Region,
		Endpoint:  appConfig.S3Endpoint,
		AccessKey: appConfig.S3AccessKey,
		SecretKey: appConfig.S3SecretKey,
		Bucket:    appConfig.S3Bucket,
		PublicURL: appConfig.S3PublicURL,
	})
	if err != nil {
		return err
	}

	vaultService, err := vault.NewService(vault.ServiceConfig{
		HashIndex:   documents,
		Users:       documents.Users(),
		Compact:     compact,
		General:     general,
		Probe:       &http.Client{Timeout: 15 * time.Second},
		JPEGQuality: appConfig.JPEGQuality,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        "pixvault-auth",
		Audience:      "pixvault-api",
		TokenTTL:      appConfig.SessionTokenTTL,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		Vault:        vaultService,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
