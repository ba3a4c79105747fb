package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Dispatch  DispatchConfig
	Fare      FareConfig
	Firebase  FirebaseConfig
	RateLimit RateLimitConfig
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Env            string `mapstructure:"APP_ENV"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"POSTGRES_HOST"`
	Port     int    `mapstructure:"POSTGRES_PORT"`
	User     string `mapstructure:"POSTGRES_USER"`
	Password string `mapstructure:"POSTGRES_PASSWORD"`
	DBName   string `mapstructure:"POSTGRES_DB"`
	SSLMode  string `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns int32  `mapstructure:"POSTGRES_MIN_CONNS"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host         string        `mapstructure:"REDIS_HOST"`
	Port         int           `mapstructure:"REDIS_PORT"`
	Password     string        `mapstructure:"REDIS_PASSWORD"`
	DB           int           `mapstructure:"REDIS_DB"`
	PoolSize     int           `mapstructure:"REDIS_POOL_SIZE"`
	MinIdleConns int           `mapstructure:"REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `mapstructure:"REDIS_DIAL_TIMEOUT"`
	IOTimeout    time.Duration `mapstructure:"REDIS_IO_TIMEOUT"`

	// KeyPrefix namespaces every cache key of this service.
	KeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`
}

// DispatchConfig holds offer and assignment timing.
type DispatchConfig struct {
	OfferWindow         time.Duration `mapstructure:"OFFER_WINDOW"`
	NoDriverTimeout     time.Duration `mapstructure:"NO_DRIVER_TIMEOUT"`
	SweepInterval       time.Duration `mapstructure:"SWEEP_INTERVAL"`
	DefaultDispatchMode string        `mapstructure:"DEFAULT_DISPATCH_MODE"`
	SettingsCacheTTL    time.Duration `mapstructure:"SETTINGS_CACHE_TTL"`
}

// FareConfig holds tariff parameters. Amounts are in cents.
type FareConfig struct {
	BaseCents           int64   `mapstructure:"FARE_BASE_CENTS"`
	PerMileCents        int64   `mapstructure:"FARE_PER_MILE_CENTS"`
	PerStopCents        int64   `mapstructure:"FARE_PER_STOP_CENTS"`
	WaitPerMinuteCents  int64   `mapstructure:"FARE_WAIT_PER_MINUTE_CENTS"`
	WaitAndReturnFactor float64 `mapstructure:"FARE_WAIT_AND_RETURN_FACTOR"`
	MinimumCents        int64   `mapstructure:"FARE_MINIMUM_CENTS"`
}

// FirebaseConfig enables FCM push and ID-token verification when ProjectID is set.
type FirebaseConfig struct {
	ProjectID       string `mapstructure:"FIREBASE_PROJECT_ID"`
	CredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
}

// RateLimitConfig bounds per-client request rates.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	Burst             int `mapstructure:"RATE_LIMIT_BURST"`
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Enabled reports whether Firebase services should be initialised.
func (f *FirebaseConfig) Enabled() bool {
	return f.ProjectID != ""
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	setDefaults(v)

	// A missing .env is fine; container deployments inject env vars directly.
	_ = v.ReadInConfig()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("STORAGE_BACKEND", "postgres")
	v.SetDefault("AUTO_MIGRATE", true)

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "5s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "dispatch")
	v.SetDefault("POSTGRES_PASSWORD", "dispatch_secret")
	v.SetDefault("POSTGRES_DB", "dispatch_db")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("POSTGRES_MAX_CONNS", 20)
	v.SetDefault("POSTGRES_MIN_CONNS", 2)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 20)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_IO_TIMEOUT", "2s")
	v.SetDefault("REDIS_KEY_PREFIX", "ridedispatch:")

	v.SetDefault("OFFER_WINDOW", "30s")
	v.SetDefault("NO_DRIVER_TIMEOUT", "30m")
	v.SetDefault("SWEEP_INTERVAL", "15s")
	v.SetDefault("DEFAULT_DISPATCH_MODE", "auto")
	v.SetDefault("SETTINGS_CACHE_TTL", "60s")

	v.SetDefault("FARE_BASE_CENTS", 450)
	v.SetDefault("FARE_PER_MILE_CENTS", 175)
	v.SetDefault("FARE_PER_STOP_CENTS", 50)
	v.SetDefault("FARE_WAIT_PER_MINUTE_CENTS", 20)
	v.SetDefault("FARE_WAIT_AND_RETURN_FACTOR", 1.7)
	v.SetDefault("FARE_MINIMUM_CENTS", 500)

	v.SetDefault("FIREBASE_PROJECT_ID", "")
	v.SetDefault("FIREBASE_CREDENTIALS_FILE", "")

	v.SetDefault("RATE_LIMIT_PER_MINUTE", 600)
	v.SetDefault("RATE_LIMIT_BURST", 60)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	// ── App ─────────────────────────────────────────────
	cfg.App = AppConfig{
		Env:            v.GetString("APP_ENV"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		StorageBackend: v.GetString("STORAGE_BACKEND"),
		AutoMigrate:    v.GetBool("AUTO_MIGRATE"),
	}
	switch cfg.App.StorageBackend {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("config: STORAGE_BACKEND must be postgres or memory, got %q", cfg.App.StorageBackend)
	}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         v.GetString("SERVER_HOST"),
		Port:         v.GetInt("SERVER_PORT"),
		ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  v.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Postgres ────────────────────────────────────────
	cfg.Postgres = PostgresConfig{
		Host:     v.GetString("POSTGRES_HOST"),
		Port:     v.GetInt("POSTGRES_PORT"),
		User:     v.GetString("POSTGRES_USER"),
		Password: v.GetString("POSTGRES_PASSWORD"),
		DBName:   v.GetString("POSTGRES_DB"),
		SSLMode:  v.GetString("POSTGRES_SSLMODE"),
		MaxConns: v.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns: v.GetInt32("POSTGRES_MIN_CONNS"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		Host:         v.GetString("REDIS_HOST"),
		Port:         v.GetInt("REDIS_PORT"),
		Password:     v.GetString("REDIS_PASSWORD"),
		DB:           v.GetInt("REDIS_DB"),
		PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
		MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
		DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
		IOTimeout:    v.GetDuration("REDIS_IO_TIMEOUT"),
		KeyPrefix:    v.GetString("REDIS_KEY_PREFIX"),
	}
	if cfg.Redis.DialTimeout <= 0 || cfg.Redis.IOTimeout <= 0 {
		return nil, fmt.Errorf("config: REDIS_DIAL_TIMEOUT and REDIS_IO_TIMEOUT must be positive")
	}

	// ── Dispatch ────────────────────────────────────────
	cfg.Dispatch = DispatchConfig{
		OfferWindow:         v.GetDuration("OFFER_WINDOW"),
		NoDriverTimeout:     v.GetDuration("NO_DRIVER_TIMEOUT"),
		SweepInterval:       v.GetDuration("SWEEP_INTERVAL"),
		DefaultDispatchMode: v.GetString("DEFAULT_DISPATCH_MODE"),
		SettingsCacheTTL:    v.GetDuration("SETTINGS_CACHE_TTL"),
	}
	if m := cfg.Dispatch.DefaultDispatchMode; m != "auto" && m != "manual" {
		return nil, fmt.Errorf("config: DEFAULT_DISPATCH_MODE must be auto or manual, got %q", m)
	}
	if cfg.Dispatch.OfferWindow <= 0 || cfg.Dispatch.SweepInterval <= 0 {
		return nil, fmt.Errorf("config: OFFER_WINDOW and SWEEP_INTERVAL must be positive")
	}

	// ── Fare ────────────────────────────────────────────
	cfg.Fare = FareConfig{
		BaseCents:           v.GetInt64("FARE_BASE_CENTS"),
		PerMileCents:        v.GetInt64("FARE_PER_MILE_CENTS"),
		PerStopCents:        v.GetInt64("FARE_PER_STOP_CENTS"),
		WaitPerMinuteCents:  v.GetInt64("FARE_WAIT_PER_MINUTE_CENTS"),
		WaitAndReturnFactor: v.GetFloat64("FARE_WAIT_AND_RETURN_FACTOR"),
		MinimumCents:        v.GetInt64("FARE_MINIMUM_CENTS"),
	}
	if cfg.Fare.BaseCents < 0 || cfg.Fare.PerMileCents < 0 || cfg.Fare.MinimumCents < 0 {
		return nil, fmt.Errorf("config: fare amounts must not be negative")
	}

	// ── Firebase ────────────────────────────────────────
	cfg.Firebase = FirebaseConfig{
		ProjectID:       v.GetString("FIREBASE_PROJECT_ID"),
		CredentialsFile: v.GetString("FIREBASE_CREDENTIALS_FILE"),
	}

	// ── Rate limit ──────────────────────────────────────
	cfg.RateLimit = RateLimitConfig{
		RequestsPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
		Burst:             v.GetInt("RATE_LIMIT_BURST"),
	}

	return cfg, nil
}
