package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"verifytx_gateway/internal/verifytx"
)

// Cache backends.
const (
	CacheBackendPostgres = "postgres"
	CacheBackendRedis    = "redis"
	CacheBackendMemory   = "memory"
)

// Token stores.
const (
	TokenStoreMemory = "memory"
	TokenStoreRedis  = "redis"
)

// Verification logging modes.
const (
	LoggingDisabled = "disabled"
	LoggingErrors   = "errors"
	LoggingAll      = "all"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Token       TokenConfig       `mapstructure:"token"`
	Log         LogConfig         `mapstructure:"log"`
	VerifyTX    VerifyTXConfig    `mapstructure:"verifytx"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Backend string `mapstructure:"backend"`
}

type TokenConfig struct {
	Store string `mapstructure:"store"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// VerifyTXConfig holds the API credentials and verification settings.
// DataRetention is in days and CacheDuration in hours; zero disables purging
// and caching respectively.
type VerifyTXConfig struct {
	APIClientID    string `mapstructure:"api_client_id"`
	APISecretKey   string `mapstructure:"api_secret_key"`
	TestMode       bool   `mapstructure:"test_mode"`
	LoggingEnabled string `mapstructure:"logging_enabled"`
	DataRetention  int    `mapstructure:"data_retention"`
	CacheDuration  int    `mapstructure:"cache_duration"`
	BaseURL        string `mapstructure:"base_url"`
}

type MaintenanceConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// Enabled reports whether the sweep should be scheduled.
func (m MaintenanceConfig) Enabled() bool {
	return m.Schedule != "" && !strings.EqualFold(m.Schedule, "off")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "verifytx")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.backend", CacheBackendPostgres)
	v.SetDefault("token.store", TokenStoreMemory)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("verifytx.api_client_id", "")
	v.SetDefault("verifytx.api_secret_key", "")
	v.SetDefault("verifytx.test_mode", false)
	v.SetDefault("verifytx.logging_enabled", LoggingErrors)
	v.SetDefault("verifytx.data_retention", 90)
	v.SetDefault("verifytx.cache_duration", 24)
	v.SetDefault("verifytx.base_url", "")

	v.SetDefault("maintenance.schedule", "@hourly")
}

// Load reads the configuration from the environment. Nested keys map to
// upper-case variables joined by underscores, e.g. database.port -> DATABASE_PORT.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port %d", c.Database.Port)
	}

	switch c.Cache.Backend {
	case CacheBackendPostgres, CacheBackendRedis, CacheBackendMemory:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	switch c.Token.Store {
	case TokenStoreMemory, TokenStoreRedis:
	default:
		return fmt.Errorf("unknown token store %q", c.Token.Store)
	}

	switch c.VerifyTX.LoggingEnabled {
	case LoggingDisabled, LoggingErrors, LoggingAll:
	default:
		return fmt.Errorf("unknown logging mode %q", c.VerifyTX.LoggingEnabled)
	}

	if c.VerifyTX.DataRetention < 0 {
		return fmt.Errorf("data retention must not be negative, got %d", c.VerifyTX.DataRetention)
	}
	if c.VerifyTX.CacheDuration < 0 {
		return fmt.Errorf("cache duration must not be negative, got %d", c.VerifyTX.CacheDuration)
	}
	return nil
}

func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// APIBaseURL returns the override if set, otherwise the production or sandbox host.
func (c *Config) APIBaseURL() string {
	if c.VerifyTX.BaseURL != "" {
		return strings.TrimRight(c.VerifyTX.BaseURL, "/")
	}
	return verifytx.BaseURL(c.VerifyTX.TestMode)
}

// CacheTTL is how long successful results stay cached. Zero disables the cache.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.VerifyTX.CacheDuration) * time.Hour
}
