package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	Release   string

	Storage  StorageConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Sentry   SentryConfig
	Stats    StatsConfig
	School   SchoolConfig
	Rollover RolloverConfig
	Export   ExportConfig
}

// StorageConfig selects where directory, ledger and registry state lives.
type StorageConfig struct {
	Driver string
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Enabled bool
	Secret  string
	Issuer  string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN string
}

// StatsConfig governs statistics caching.
type StatsConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// SchoolConfig carries school calendar settings.
type SchoolConfig struct {
	TimeZone     string
	DefaultSlots []string
}

// RolloverConfig schedules the monthly substitute counter rollover.
type RolloverConfig struct {
	Enabled  bool
	Interval time.Duration
}

// ExportConfig controls rendered export files and their signed links.
type ExportConfig struct {
	Dir             string
	URLSecret       string
	URLTTL          time.Duration
	CleanupInterval time.Duration
}

// Location resolves the school time zone, falling back to UTC.
func (c SchoolConfig) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.Release = v.GetString("RELEASE")

	cfg.Storage = StorageConfig{Driver: strings.ToLower(v.GetString("STORAGE_DRIVER"))}

	cfg.Database = DatabaseConfig{
		Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Enabled: v.GetBool("AUTH_ENABLED"),
		Secret:  v.GetString("JWT_SECRET"),
		Issuer:  v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sentry = SentryConfig{DSN: v.GetString("SENTRY_DSN")}

	cfg.Stats = StatsConfig{
		CacheEnabled: v.GetBool("ENABLE_STATS_CACHE"),
		CacheTTL:     parseDuration(v.GetString("STATS_CACHE_TTL"), 5*time.Minute),
	}

	cfg.School = SchoolConfig{
		TimeZone:     v.GetString("SCHOOL_TIMEZONE"),
		DefaultSlots: splitAndTrim(v.GetString("DEFAULT_TIME_SLOTS")),
	}

	cfg.Rollover = RolloverConfig{
		Enabled:  v.GetBool("ENABLE_ROLLOVER"),
		Interval: parseDuration(v.GetString("ROLLOVER_INTERVAL"), time.Hour),
	}

	cfg.Export = ExportConfig{
		Dir:             v.GetString("EXPORTS_DIR"),
		URLSecret:       v.GetString("EXPORT_URL_SECRET"),
		URLTTL:          parseDuration(v.GetString("EXPORT_URL_TTL"), 15*time.Minute),
		CleanupInterval: parseDuration(v.GetString("EXPORT_CLEANUP_INTERVAL"), 30*time.Minute),
	}
	if cfg.Export.URLSecret == "" {
		cfg.Export.URLSecret = cfg.JWT.Secret
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("RELEASE", "dev")

	v.SetDefault("STORAGE_DRIVER", StorageMemory)

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "substitute_teachers")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SENTRY_DSN", "")

	v.SetDefault("ENABLE_STATS_CACHE", false)
	v.SetDefault("STATS_CACHE_TTL", "5m")

	v.SetDefault("SCHOOL_TIMEZONE", "Asia/Seoul")
	v.SetDefault("DEFAULT_TIME_SLOTS", "")

	v.SetDefault("ENABLE_ROLLOVER", true)
	v.SetDefault("ROLLOVER_INTERVAL", "1h")

	v.SetDefault("EXPORTS_DIR", "./exports")
	v.SetDefault("EXPORT_URL_SECRET", "")
	v.SetDefault("EXPORT_URL_TTL", "15m")
	v.SetDefault("EXPORT_CLEANUP_INTERVAL", "30m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
