package main

import (
	"fmt"
	"os"
	"time"

	"github.com/itskum47/defcon/controller/store"
)

// Config is read once at startup, entirely from the environment.
type Config struct {
	DSN        string
	DBMaxConns int32

	APIEnable  bool
	APIListen  string
	SkipAuth   bool
	SigningKey string

	HandlerEnable   bool
	HandlerInterval time.Duration
	HandlerSpread   time.Duration

	CleanerEnable    bool
	CleanerInterval  time.Duration
	CleanerThreshold time.Duration

	DMSEnable bool
	DMSListen string

	MetricsListen string

	DNSResolver string

	AlerterDefault  string
	AlerterFallback string

	PublicKeyPath  string
	PrivateKeyPath string

	RedisAddr string

	LogLevel string
}

func envBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true":
		return true
	case "0", "false":
		return false
	}
	return def
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := store.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d.Std(), nil
}

// LoadConfig reads and validates the environment. Invalid values are fatal;
// a monitor that silently misreads its cadence settings is worse than one
// that refuses to start.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DSN:             os.Getenv("DSN"),
		DBMaxConns:      20,
		APIEnable:       envBool("API_ENABLE", true),
		APIListen:       envString("API_LISTEN", "127.0.0.1:8000"),
		SkipAuth:        envBool("SKIP_AUTHENTICATION", false),
		SigningKey:      os.Getenv("JWT_SIGNING_KEY"),
		HandlerEnable:   envBool("HANDLER_ENABLE", true),
		CleanerEnable:   envBool("CLEANER_ENABLE", false),
		DMSEnable:       envBool("DMS_ENABLE", true),
		DMSListen:       envString("DMS_LISTEN", "127.0.0.1:8080"),
		MetricsListen:   os.Getenv("METRICS_LISTEN"),
		DNSResolver:     envString("DNS_RESOLVER", "1.1.1.1"),
		AlerterDefault:  os.Getenv("ALERTER_DEFAULT"),
		AlerterFallback: os.Getenv("ALERTER_FALLBACK"),
		PublicKeyPath:   os.Getenv("PUBLIC_KEY"),
		PrivateKeyPath:  os.Getenv("PRIVATE_KEY"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		LogLevel:        envString("LOG_LEVEL", "info"),
	}

	if cfg.DSN == "" {
		return nil, fmt.Errorf("DSN is required")
	}

	var err error
	if cfg.HandlerInterval, err = envDuration("HANDLER_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.HandlerInterval < time.Second {
		return nil, fmt.Errorf("HANDLER_INTERVAL must be at least 1s")
	}
	if cfg.HandlerSpread, err = envDuration("HANDLER_SPREAD", 0); err != nil {
		return nil, err
	}
	if cfg.HandlerSpread < 0 {
		return nil, fmt.Errorf("HANDLER_SPREAD must not be negative")
	}
	if cfg.CleanerInterval, err = envDuration("CLEANER_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CleanerThreshold, err = envDuration("CLEANER_THRESHOLD", 365*24*time.Hour); err != nil {
		return nil, err
	}

	if !cfg.APIEnable && !cfg.HandlerEnable && !cfg.DMSEnable {
		return nil, fmt.Errorf("all subsystems disabled, nothing to run")
	}
	return cfg, nil
}
