package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/threadline/internal/auth"
	"github.com/MarcoPoloResearchLab/threadline/internal/cache"
	"github.com/MarcoPoloResearchLab/threadline/internal/comments"
	"github.com/MarcoPoloResearchLab/threadline/internal/config"
	"github.com/MarcoPoloResearchLab/threadline/internal/database"
	"github.com/MarcoPoloResearchLab/threadline/internal/ids"
	"github.com/MarcoPoloResearchLab/threadline/internal/logging"
	"github.com/MarcoPoloResearchLab/threadline/internal/notifications"
	"github.com/MarcoPoloResearchLab/threadline/internal/render"
	"github.com/MarcoPoloResearchLab/threadline/internal/server"
	"github.com/MarcoPoloResearchLab/threadline/internal/users"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	issuerName      = "threadline-auth"
	audienceName    = "threadline-api"
	shutdownTimeout = 10 * time.Second
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "threadline-api",
		Short: "Threadline comment service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and apply pending data migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations()
		},
	}
	rootCmd.AddCommand(migrateCmd)

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before configuration")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.Duration("request-timeout", defaults.GetDuration("http.request_timeout"), "Per-request deadline")
	flags.String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres, mysql)")
	flags.String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("access-secret", "", "Access token signing secret (overrides env)")
	flags.String("refresh-secret", "", "Refresh token signing secret (overrides env)")
	flags.String("cache-driver", defaults.GetString("cache.driver"), "Comment count cache (memory, redis, none)")
	flags.String("redis-address", "", "Redis address for the redis cache driver")
	flags.String("allowed-origins", defaults.GetString("cors.allowed_origins"), "Comma separated CORS origins")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.request_timeout", "request-timeout")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.access_secret", "access-secret")
	bindFlag(cmd, "auth.refresh_secret", "refresh-secret")
	bindFlag(cmd, "cache.driver", "cache-driver")
	bindFlag(cmd, "cache.redis_address", "redis-address")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

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

func runMigrations() error {
	appConfig, err := config.LoadDatabase(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(databaseConfig(appConfig), logger)
	if err != nil {
		return err
	}
	return database.Close(db)
}

func databaseConfig(appConfig config.AppConfig) database.Config {
	return database.Config{
		Driver:          appConfig.DatabaseDriver,
		DSN:             appConfig.DatabaseDSN,
		MaxOpenConns:    appConfig.DatabaseMaxOpenConns,
		MaxIdleConns:    appConfig.DatabaseMaxIdleConns,
		ConnMaxLifetime: appConfig.DatabaseConnMaxLifetime,
	}
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(databaseConfig(appConfig), logger)
	if err != nil {
		return err
	}
	defer database.Close(db) //nolint:errcheck

	countCache, err := cache.Open(ctx, cache.Config{
		Driver:       appConfig.CacheDriver,
		RedisAddress: appConfig.CacheRedisAddress,
		Size:         appConfig.CacheSize,
	})
	if err != nil {
		return err
	}
	defer countCache.Close() //nolint:errcheck

	idProvider := ids.NewUUIDProvider()

	hasher, err := auth.NewPasswordHasher(appConfig.BcryptCost)
	if err != nil {
		return err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		AccessSecret:  []byte(appConfig.AccessSecret),
		RefreshSecret: []byte(appConfig.RefreshSecret),
		Issuer:        issuerName,
		Audience:      audienceName,
		AccessTTL:     appConfig.AccessTTL,
		RefreshTTL:    appConfig.RefreshTTL,
		Clock:         time.Now,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Hasher:     hasher,
		IDProvider: idProvider,
		Clock:      time.Now,
		Logger:     logger.Named("users"),
	})
	if err != nil {
		return err
	}

	ledger, err := notifications.NewLedger(notifications.LedgerConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger.Named("notifications"),
	})
	if err != nil {
		return err
	}

	commentService, err := comments.NewService(comments.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Notifier:   ledger,
		CountCache: countCache,
		CountTTL:   appConfig.CacheTTL,
		Logger:     logger.Named("comments"),
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Users:             userService,
		Tokens:            tokenIssuer,
		Comments:          commentService,
		Notifications:     ledger,
		Renderer:          render.NewRenderer(),
		AllowedOrigins:    appConfig.AllowedOrigins,
		RequestTimeout:    appConfig.RequestTimeout,
		AuthRatePerSecond: appConfig.AuthRatePerSecond,
		AuthRateBurst:     appConfig.AuthRateBurst,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.DatabaseDriver),
			zap.String("cache_driver", appConfig.CacheDriver))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
