package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	// TicketsURL is the public tickets-page URL buyers are sent back to
	// after the hosted checkout, and where the gateway posts IPN callbacks.
	TicketsURL string
	EventName  string
	Currency   string

	MPClientID     string
	MPClientSecret string
	MPSandbox      bool
	MPLogEnabled   bool
	MPTimeout      time.Duration
	MPInsecureTLS  bool

	ReplayTTL time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:         valueOrDefault(k.String("APP_ENV"), "development"),
		Port:           valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:    k.String("DATABASE_URL"),
		RedisURL:       k.String("REDIS_URL"),
		TicketsURL:     strings.TrimSpace(k.String("TICKETS_URL")),
		EventName:      strings.TrimSpace(k.String("EVENT_NAME")),
		Currency:       valueOrDefault(strings.ToUpper(strings.TrimSpace(k.String("CURRENCY"))), "ARS"),
		MPClientID:     k.String("MP_CLIENT_ID"),
		MPClientSecret: k.String("MP_CLIENT_SECRET"),
		MPSandbox:      parseBool(k.String("MP_SANDBOX"), true),
		MPLogEnabled:   parseBool(k.String("MP_LOG_ENABLED"), true),
		MPTimeout:      parseDuration(k.String("MP_TIMEOUT"), "60s"),
		MPInsecureTLS:  parseBool(k.String("MP_INSECURE_TLS"), false),
		ReplayTTL:      parseDuration(k.String("REPLAY_TTL"), "24h"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.TicketsURL == "" {
		return nil, errors.New("TICKETS_URL is required")
	}
	if cfg.MPClientID == "" {
		return nil, errors.New("MP_CLIENT_ID is required")
	}
	if cfg.MPClientSecret == "" {
		return nil, errors.New("MP_CLIENT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
