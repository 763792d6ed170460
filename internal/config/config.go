package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "THREADLINE"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultRequestTimeout     = 10 * time.Second
	defaultDatabaseDriver     = "sqlite"
	defaultDatabaseDSN        = "threadline.db"
	defaultMaxOpenConns       = 20
	defaultMaxIdleConns       = 5
	defaultConnMaxLifetime    = 30 * time.Minute
	defaultLogLevel           = "info"
	defaultAccessTTL          = time.Hour
	defaultRefreshTTL         = 7 * 24 * time.Hour
	defaultBcryptCost         = 12
	defaultCacheDriver        = "memory"
	defaultCacheSize          = 1024
	defaultCacheTTL           = 30 * time.Second
	defaultAuthRatePerSecond  = 5.0
	defaultAuthRateBurst      = 10
	defaultAllowedOriginsList = "*"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	RequestTimeout time.Duration

	DatabaseDriver          string
	DatabaseDSN             string
	DatabaseMaxOpenConns    int
	DatabaseMaxIdleConns    int
	DatabaseConnMaxLifetime time.Duration

	LogLevel string

	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	BcryptCost    int

	AllowedOrigins []string

	CacheDriver       string
	CacheRedisAddress string
	CacheSize         int
	CacheTTL          time.Duration

	AuthRatePerSecond float64
	AuthRateBurst     int
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
	configViper.SetDefault("http.request_timeout", defaultRequestTimeout)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	configViper.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	configViper.SetDefault("database.conn_max_lifetime", defaultConnMaxLifetime)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.access_ttl", defaultAccessTTL)
	configViper.SetDefault("auth.refresh_ttl", defaultRefreshTTL)
	configViper.SetDefault("auth.bcrypt_cost", defaultBcryptCost)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOriginsList)
	configViper.SetDefault("cache.driver", defaultCacheDriver)
	configViper.SetDefault("cache.size", defaultCacheSize)
	configViper.SetDefault("cache.ttl", defaultCacheTTL)
	configViper.SetDefault("ratelimit.auth_per_second", defaultAuthRatePerSecond)
	configViper.SetDefault("ratelimit.auth_burst", defaultAuthRateBurst)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := read(configViper)
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadDatabase parses configuration for commands that only touch the database.
// Auth secrets are not required.
func LoadDatabase(configViper *viper.Viper) (AppConfig, error) {
	cfg := read(configViper)
	if err := cfg.validateDatabase(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func read(configViper *viper.Viper) AppConfig {
	return AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		RequestTimeout: configViper.GetDuration("http.request_timeout"),

		DatabaseDriver:          strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:             configViper.GetString("database.dsn"),
		DatabaseMaxOpenConns:    configViper.GetInt("database.max_open_conns"),
		DatabaseMaxIdleConns:    configViper.GetInt("database.max_idle_conns"),
		DatabaseConnMaxLifetime: configViper.GetDuration("database.conn_max_lifetime"),

		LogLevel: configViper.GetString("log.level"),

		AccessSecret:  configViper.GetString("auth.access_secret"),
		RefreshSecret: configViper.GetString("auth.refresh_secret"),
		AccessTTL:     configViper.GetDuration("auth.access_ttl"),
		RefreshTTL:    configViper.GetDuration("auth.refresh_ttl"),
		BcryptCost:    configViper.GetInt("auth.bcrypt_cost"),

		AllowedOrigins: splitList(configViper.GetString("cors.allowed_origins")),

		CacheDriver:       strings.ToLower(strings.TrimSpace(configViper.GetString("cache.driver"))),
		CacheRedisAddress: configViper.GetString("cache.redis_address"),
		CacheSize:         configViper.GetInt("cache.size"),
		CacheTTL:          configViper.GetDuration("cache.ttl"),

		AuthRatePerSecond: configViper.GetFloat64("ratelimit.auth_per_second"),
		AuthRateBurst:     configViper.GetInt("ratelimit.auth_burst"),
	}
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AccessSecret) == "" {
		return fmt.Errorf("auth.access_secret is required")
	}
	if strings.TrimSpace(c.RefreshSecret) == "" {
		return fmt.Errorf("auth.refresh_secret is required")
	}
	if c.AccessSecret == c.RefreshSecret {
		return fmt.Errorf("auth.access_secret and auth.refresh_secret must differ")
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	switch c.CacheDriver {
	case "memory", "none":
	case "redis":
		if strings.TrimSpace(c.CacheRedisAddress) == "" {
			return fmt.Errorf("cache.redis_address is required for the redis cache")
		}
	default:
		return fmt.Errorf("cache.driver %q is not supported", c.CacheDriver)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("http.request_timeout must be positive")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("auth token ttls must be positive")
	}
	if c.AuthRatePerSecond <= 0 || c.AuthRateBurst <= 0 {
		return fmt.Errorf("ratelimit.auth_per_second and ratelimit.auth_burst must be positive")
	}
	return nil
}

func (c AppConfig) validateDatabase() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
