package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Receipts   ReceiptsConfig
	Pagination PaginationConfig
	Session    SessionConfig
	Admin      AdminConfig

	SecretKey   string `env:"APP_SECRET_KEY,default=ChangeMe"`
	CORSOrigins string `env:"CORS_ORIGINS,default=*"`
	LogVerbose  bool   `env:"APP_VERBOSE,default=0"`
	LogPretty   bool   `env:"APP_PRETTY,default=0"`
}

type ServerConfig struct {
	Listen       string        `env:"RUN_ADDRESS,default=localhost:8088"`
	TimeoutRead  time.Duration `env:"SERVER_TIMEOUT_READ,default=5s"`
	TimeoutWrite time.Duration `env:"SERVER_TIMEOUT_WRITE,default=10s"`
	TimeoutIdle  time.Duration `env:"SERVER_TIMEOUT_IDLE,default=1m"`
}

// DatabaseConfig with an empty DSN runs the service on the in-memory store
type DatabaseConfig struct {
	DSN string `env:"DATABASE_URI,default="`
}

// RedisConfig with an empty Addr disables the query cache and keeps sessions in memory
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR,default="`
	Password string        `env:"REDIS_PASSWORD,default="`
	DB       int           `env:"REDIS_DB,default=0"`
	CacheTTL time.Duration `env:"CACHE_TTL,default=1m"`
}

type ReceiptsConfig struct {
	StoreURL string `env:"RECEIPT_STORE_URL,default=http://localhost:8090"`
	MaxBytes int64  `env:"RECEIPT_MAX_BYTES,default=5242880"`
	Breaker  BreakerConfig
}

type BreakerConfig struct {
	MaxRequests int           `env:"BREAKER_MAX_REQUESTS,default=1"`
	Interval    time.Duration `env:"BREAKER_INTERVAL,default=1m"`
	Timeout     time.Duration `env:"BREAKER_TIMEOUT,default=30s"`
	Failures    int           `env:"BREAKER_FAILURES,default=5"`
}

type PaginationConfig struct {
	DefaultLimit int `env:"PAGE_DEFAULT_LIMIT,default=20"`
	MaxLimit     int `env:"PAGE_MAX_LIMIT,default=100"`
}

type SessionConfig struct {
	TTL time.Duration `env:"SESSION_TTL,default=1h"`
}

// AdminConfig is the administrator account created on startup when both fields are set
type AdminConfig struct {
	Login    string `env:"APP_ADMIN_LOGIN,default="`
	Password string `env:"APP_ADMIN_PASSWORD,default="`
}

// New config constructor
func New() Config {
	return Config{}
}

// Load config from environment and from .env file (if exists) and from flags
func (cfg *Config) Load(args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf(".env load: %w", err)
	}

	if err := envdecode.StrictDecode(cfg); err != nil {
		return fmt.Errorf("env decode: %w", err)
	}

	flags := pflag.NewFlagSet("backoffice", pflag.ContinueOnError)
	flags.StringVarP(&cfg.Server.Listen, "listen-addr", "a", cfg.Server.Listen, "Server address to listen on")
	flags.StringVarP(&cfg.Database.DSN, "database-uri", "d", cfg.Database.DSN, "Database URI, empty for the in-memory store")
	flags.StringVarP(&cfg.Redis.Addr, "redis-addr", "c", cfg.Redis.Addr, "Redis address, empty to disable")
	flags.StringVarP(&cfg.Receipts.StoreURL, "receipt-store-url", "r", cfg.Receipts.StoreURL, "Receipt store base URL")
	flags.BoolVarP(&cfg.LogVerbose, "verbose", "v", cfg.LogVerbose, "Verbose output")
	flags.BoolVarP(&cfg.LogPretty, "pretty", "p", cfg.LogPretty, "Pretty output")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("flags parse: %w", err)
	}

	return cfg.Validate()
}

func (cfg *Config) Validate() error {
	if cfg.Pagination.MaxLimit < 1 {
		return fmt.Errorf("PAGE_MAX_LIMIT must be positive")
	}
	if cfg.Pagination.DefaultLimit < 1 || cfg.Pagination.DefaultLimit > cfg.Pagination.MaxLimit {
		return fmt.Errorf("PAGE_DEFAULT_LIMIT must be between 1 and %d", cfg.Pagination.MaxLimit)
	}
	if cfg.Receipts.MaxBytes < 1 {
		return fmt.Errorf("RECEIPT_MAX_BYTES must be positive")
	}
	if (cfg.Admin.Login == "") != (cfg.Admin.Password == "") {
		return fmt.Errorf("APP_ADMIN_LOGIN and APP_ADMIN_PASSWORD must be set together")
	}
	return nil
}

// Origins allowed by CORS
func (cfg *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(cfg.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
