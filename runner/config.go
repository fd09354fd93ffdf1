package main

import (
	"fmt"
	"os"
	"time"
)

// Config for one runner process. Everything comes from the environment.
type Config struct {
	ControllerURL  string
	Site           string
	PrivateKeyPath string
	TickInterval   time.Duration
	DNSResolver    string
	LogLevel       string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		ControllerURL:  os.Getenv("CONTROLLER_URL"),
		Site:           os.Getenv("SITE"),
		PrivateKeyPath: os.Getenv("PRIVATE_KEY"),
		TickInterval:   time.Second,
		DNSResolver:    "1.1.1.1",
		LogLevel:       "info",
	}
	if v := os.Getenv("DNS_RESOLVER"); v != "" {
		cfg.DNSResolver = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("TICK_INTERVAL: %w", err)
		}
		if d < time.Second {
			return nil, fmt.Errorf("TICK_INTERVAL must be at least 1s")
		}
		cfg.TickInterval = d
	}

	if cfg.ControllerURL == "" {
		return nil, fmt.Errorf("CONTROLLER_URL is required")
	}
	if cfg.Site == "" {
		return nil, fmt.Errorf("SITE is required")
	}
	if cfg.PrivateKeyPath == "" {
		return nil, fmt.Errorf("PRIVATE_KEY is required")
	}
	return cfg, nil
}
