// Package config loads process configuration from defaults, an optional YAML
// file and WINBID_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix = "WINBID_"
	// FileEnv names the optional YAML file
	FileEnv = "WINBID_CONFIG_FILE"

	BackendMemory = "memory"
	BackendRedis  = "redis"

	NotifyAMQP = "amqp"
	NotifyLog  = "log"
)

type Config struct {
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	RabbitMQ     RabbitMQConfig     `koanf:"rabbitmq"`
	Redis        RedisConfig        `koanf:"redis"`
	Cache        CacheConfig        `koanf:"cache"`
	Auth         AuthConfig         `koanf:"auth"`
	Registration RegistrationConfig `koanf:"registration"`
	RateLimit    RateLimitConfig    `koanf:"ratelimit"`
	Outbox       OutboxConfig       `koanf:"outbox"`
	Notify       NotifyConfig       `koanf:"notify"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL         string        `koanf:"url"`
	LockTimeout time.Duration `koanf:"lock_timeout"`
}

type RabbitMQConfig struct {
	URL string `koanf:"url"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// CacheConfig selects where sessions and rate limit windows live
type CacheConfig struct {
	Backend string `koanf:"backend"`
}

type AuthConfig struct {
	PrivateKeyPath string        `koanf:"private_key_path"`
	PublicKeyPath  string        `koanf:"public_key_path"`
	Issuer         string        `koanf:"issuer"`
	TokenTTL       time.Duration `koanf:"token_ttl"`
	CookieSecure   bool          `koanf:"cookie_secure"`
}

type RegistrationConfig struct {
	SessionTTL        time.Duration `koanf:"session_ttl"`
	SweepInterval     time.Duration `koanf:"sweep_interval"`
	MaxVerifyAttempts int           `koanf:"max_verify_attempts"`
}

type RateLimitConfig struct {
	Enabled      bool    `koanf:"enabled"`
	GeneralRPS   float64 `koanf:"general_rps"`
	GeneralBurst int     `koanf:"general_burst"`
}

type OutboxConfig struct {
	BatchSize   int           `koanf:"batch_size"`
	Interval    time.Duration `koanf:"interval"`
	MaxAttempts int           `koanf:"max_attempts"`
	// Retention of published events; zero keeps them forever
	Retention time.Duration `koanf:"retention"`
}

type NotifyConfig struct {
	Backend    string        `koanf:"backend"`
	AdminEmail string        `koanf:"admin_email"`
	Timeout    time.Duration `koanf:"timeout"`
}

func Defaults() Config {
	return Config{
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			LockTimeout: 3 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Cache: CacheConfig{
			Backend: BackendMemory,
		},
		Auth: AuthConfig{
			Issuer:   "winbid",
			TokenTTL: 24 * time.Hour,
		},
		Registration: RegistrationConfig{
			SessionTTL:        300 * time.Second,
			SweepInterval:     60 * time.Second,
			MaxVerifyAttempts: 5,
		},
		RateLimit: RateLimitConfig{
			Enabled:      true,
			GeneralRPS:   20,
			GeneralBurst: 40,
		},
		Outbox: OutboxConfig{
			BatchSize:   10,
			Interval:    time.Second,
			MaxAttempts: 10,
			Retention:   7 * 24 * time.Hour,
		},
		Notify: NotifyConfig{
			Backend: NotifyLog,
			Timeout: 10 * time.Second,
		},
	}
}

// Load reads .env files (local overrides .env) and then layers koanf providers
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := os.Getenv(FileEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// envKey maps WINBID_DATABASE__URL to database.url. Single underscores are kept.
func envKey(s string) string {
	if s == FileEnv {
		return ""
	}
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks the settings every process needs
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required when cache.backend is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be %q or %q", BackendMemory, BackendRedis))
	}
	switch c.Notify.Backend {
	case NotifyLog:
		// the log mailer writes OTP codes in plaintext
		if c.IsProduction() {
			errs = append(errs, errors.New("notify.backend log is not allowed in production"))
		}
	case NotifyAMQP:
		if c.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("rabbitmq.url is required when notify.backend is amqp"))
		}
	default:
		errs = append(errs, fmt.Errorf("notify.backend must be %q or %q", NotifyAMQP, NotifyLog))
	}
	if c.Registration.MaxVerifyAttempts < 1 {
		errs = append(errs, errors.New("registration.max_verify_attempts must be positive"))
	}
	if c.Registration.SweepInterval <= 0 {
		errs = append(errs, errors.New("registration.sweep_interval must be positive"))
	}
	if c.Outbox.Interval <= 0 {
		errs = append(errs, errors.New("outbox.interval must be positive"))
	}
	if c.Outbox.MaxAttempts < 1 {
		errs = append(errs, errors.New("outbox.max_attempts must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateAPI adds the checks only the HTTP process needs
func (c *Config) ValidateAPI() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.PrivateKeyPath == "" || c.Auth.PublicKeyPath == "" {
		errs = append(errs, errors.New("auth.private_key_path and auth.public_key_path are required"))
	}
	if c.RabbitMQ.URL == "" {
		errs = append(errs, errors.New("rabbitmq.url is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SlogLevel parses log_level, falling back to info
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// NewLogger builds the JSON logger every main installs as the default
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: c.SlogLevel()}))
}
