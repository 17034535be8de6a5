package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/trainhub/internal/auth"
	"github.com/MarcoPoloResearchLab/trainhub/internal/barcode"
	"github.com/MarcoPoloResearchLab/trainhub/internal/config"
	"github.com/MarcoPoloResearchLab/trainhub/internal/database"
	"github.com/MarcoPoloResearchLab/trainhub/internal/logging"
	"github.com/MarcoPoloResearchLab/trainhub/internal/metrics"
	"github.com/MarcoPoloResearchLab/trainhub/internal/server"
	"github.com/MarcoPoloResearchLab/trainhub/internal/training"
	"github.com/MarcoPoloResearchLab/trainhub/internal/uploads"
	"github.com/MarcoPoloResearchLab/trainhub/internal/users"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "trainhub-api",
		Short: "TrainHub inventory and training backend",
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
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("uploads-dir", defaults.GetString("uploads.dir"), "Directory for uploaded videos and images")
	cmd.PersistentFlags().String("static-dir", defaults.GetString("static.dir"), "Directory holding the single-page app")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("cors.allowed_origins"), "Comma separated CORS origins, * for any")
	cmd.PersistentFlags().String("barcode-base-url", defaults.GetString("barcode.base_url"), "UPC lookup service base URL")
	cmd.PersistentFlags().String("barcode-api-key", "", "UPC lookup service API key")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "uploads.dir", "uploads-dir")
	bindFlag(cmd, "static.dir", "static-dir")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "barcode.base_url", "barcode-base-url")
	bindFlag(cmd, "barcode.api_key", "barcode-api-key")
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

	logger, level, err := logging.NewAtomicLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if viper.ConfigFileUsed() != "" {
		viper.OnConfigChange(func(event fsnotify.Event) {
			next := logging.ParseLevel(viper.GetString("log.level"))
			if next != level.Level() {
				level.SetLevel(next)
				logger.Info("log level changed", zap.String("file", event.Name), zap.Stringer("level", next))
			}
		})
		viper.WatchConfig()
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	trainingService, err := training.NewService(training.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: training.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	uploadStore, err := uploads.NewStore(uploads.StoreConfig{
		Root:   appConfig.UploadsDir,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	barcodeClient := barcode.NewClient(barcode.Config{
		BaseURL: appConfig.Barcode.BaseURL,
		APIKey:  appConfig.Barcode.APIKey,
		Timeout: appConfig.Barcode.Timeout,
		Logger:  logger,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:         tokenManager,
		Users:          usersService,
		Trainings:      trainingService,
		Uploads:        uploadStore,
		Barcode:        barcodeClient,
		Metrics:        metrics.NewRegistry(),
		Realtime:       server.NewRealtimeDispatcher(),
		AllowedOrigins: appConfig.AllowedOrigins,
		StaticDir:      appConfig.StaticDir,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
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
		logger.Info("server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
