// Package config resolves runtime settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Store drivers.
const (
	DriverFirestore = "firestore"
	DriverPostgres  = "postgres"
	DriverMemory    = "memory"
)

type Config struct {
	App      AppConfig      `koanf:"app"`
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	Firebase FirebaseConfig `koanf:"firebase"`
	Redis    RedisConfig    `koanf:"redis"`
	Payment  PaymentConfig  `koanf:"payment"`
	SMTP     SMTPConfig     `koanf:"smtp"`
	Codes    CodesConfig    `koanf:"codes"`
	Worker   WorkerConfig   `koanf:"worker"`
	Log      LogConfig      `koanf:"log"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Environment string `koanf:"environment"`
	PublicURL   string `koanf:"public_url"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver      string `koanf:"driver"`
	DatabaseURL string `koanf:"database_url"`
}

type FirebaseConfig struct {
	CredentialsPath string `koanf:"credentials_path"`
	ProjectID       string `koanf:"project_id"`
}

type RedisConfig struct {
	URL      string        `koanf:"url"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

type PaymentConfig struct {
	BaseURL string        `koanf:"base_url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
}

type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

type CodesConfig struct {
	Length          int `koanf:"length"`
	RedeemPerMinute int `koanf:"redeem_per_minute"`
}

type WorkerConfig struct {
	Tick time.Duration `koanf:"tick"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Load reads .env (if present), then layers defaults, the YAML file at
// configPath (optional) and environment variables.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using system environment")
	}

	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "modding-academy",
		"app.environment": "development",
		"app.public_url":  "http://localhost:8080",

		"server.port":             8080,
		"server.shutdown_timeout": "15s",

		"store.driver": DriverFirestore,

		"firebase.credentials_path": "./firebase-service-account.json",

		"redis.cache_ttl": "5m",

		"payment.base_url": "https://sandbox.api.pagseguro.com",
		"payment.timeout":  "20s",

		"codes.length":            12,
		"codes.redeem_per_minute": 5,

		"worker.tick": "5m",

		"log.level":  "info",
		"log.format": "json",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"APP_NAME":                  "app.name",
	"ENVIRONMENT":               "app.environment",
	"APP_URL":                   "app.public_url",
	"PORT":                      "server.port",
	"STORE_DRIVER":              "store.driver",
	"DATABASE_URL":              "store.database_url",
	"FIREBASE_CREDENTIALS_PATH": "firebase.credentials_path",
	"FIREBASE_PROJECT_ID":       "firebase.project_id",
	"REDIS_URL":                 "redis.url",
	"REDIS_CACHE_TTL":           "redis.cache_ttl",
	"PAGBANK_API_URL":           "payment.base_url",
	"PAGBANK_TOKEN":             "payment.token",
	"PAYMENT_TIMEOUT":           "payment.timeout",
	"SMTP_HOST":                 "smtp.host",
	"SMTP_PORT":                 "smtp.port",
	"SMTP_USER":                 "smtp.user",
	"SMTP_PASS":                 "smtp.password",
	"EMAIL_FROM":                "smtp.from",
	"CODE_LENGTH":               "codes.length",
	"REDEEM_PER_MINUTE":         "codes.redeem_per_minute",
	"WORKER_TICK":               "worker.tick",
	"LOG_LEVEL":                 "log.level",
	"LOG_FORMAT":                "log.format",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	switch c.Store.Driver {
	case DriverFirestore, DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Codes.Length <= 0 {
		return fmt.Errorf("code length must be positive, got %d", c.Codes.Length)
	}
	if c.Codes.RedeemPerMinute < 0 {
		return fmt.Errorf("redeem throttle must not be negative")
	}
	if c.Worker.Tick <= 0 {
		return fmt.Errorf("worker tick must be positive, got %s", c.Worker.Tick)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	c.App.PublicURL = strings.TrimRight(c.App.PublicURL, "/")
	c.Payment.BaseURL = strings.TrimRight(c.Payment.BaseURL, "/")
	return nil
}

// IsProduction reports whether the app runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// NewLogger builds the process logger from the log settings.
func (c *Config) NewLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler).With("app", c.App.Name, "env", c.App.Environment)
}
