// Package config reads monitor settings from the environment, after loading
// an optional .env file from the working directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Upstream game server.
	WSURL          string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	EventLogCap    int

	// Local HTTP service.
	Port string

	// DatabaseURL enables the event archive when set.
	DatabaseURL string

	LogLevel  string
	LogFormat string
}

func Default() Config {
	return Config{
		WSURL:          "ws://localhost:8082",
		ReconnectDelay: 3 * time.Second,
		PingInterval:   25 * time.Second,
		EventLogCap:    500,
		Port:           "8080",
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromLookup(os.Getenv)
}

// FromLookup builds a Config from getenv, falling back to Default for unset keys.
func FromLookup(getenv func(string) string) (Config, error) {
	cfg := Default()

	if v := getenv("MONITOR_WS_URL"); v != "" {
		cfg.WSURL = v
	}
	if v := getenv("PORT"); v != "" {
		cfg.Port = v
	}
	cfg.DatabaseURL = getenv("DATABASE_URL")
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	var err error
	if cfg.ReconnectDelay, err = duration(getenv, "MONITOR_RECONNECT_DELAY", cfg.ReconnectDelay); err != nil {
		return Config{}, err
	}
	if cfg.PingInterval, err = duration(getenv, "MONITOR_PING_INTERVAL", cfg.PingInterval); err != nil {
		return Config{}, err
	}
	if v := getenv("MONITOR_EVENT_LOG_CAP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("MONITOR_EVENT_LOG_CAP: %w", err)
		}
		cfg.EventLogCap = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.WSURL)
	if err != nil {
		return fmt.Errorf("MONITOR_WS_URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("MONITOR_WS_URL: scheme %q is not ws or wss", u.Scheme)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("MONITOR_RECONNECT_DELAY: must be positive, got %s", c.ReconnectDelay)
	}
	if c.PingInterval < 0 {
		return fmt.Errorf("MONITOR_PING_INTERVAL: must not be negative, got %s", c.PingInterval)
	}
	if c.EventLogCap <= 0 {
		return fmt.Errorf("MONITOR_EVENT_LOG_CAP: must be positive, got %d", c.EventLogCap)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT: %w", err)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT: unknown format %q", c.LogFormat)
	}
	return nil
}

// Addr is the listen address for the HTTP service.
func (c Config) Addr() string { return ":" + c.Port }

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
