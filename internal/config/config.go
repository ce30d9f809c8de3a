package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultColorProperty = "X-APPLE-CALENDAR-COLOR"
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultSyncSchedule  = "*/15 * * * *"
)

type Config struct {
	ServerURL     string
	Username      string
	Password      string
	DataDir       string
	ColorProperty string
	HTTPTimeout   time.Duration
	LogLevel      slog.Level
	SyncSchedule  string
	MetricsAddr   string
}

// Load reads the configuration from the environment. Server credentials are
// not checked here; see RequireServer.
func Load() (*Config, error) {
	dataDir := os.Getenv("ERRANDS_DATA_DIR")
	if dataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return nil, err
		}
		dataDir = dir
	}

	colorProp := strings.ToUpper(strings.TrimSpace(os.Getenv("ERRANDS_COLOR_PROPERTY")))
	if colorProp == "" {
		colorProp = DefaultColorProperty
	}

	timeout := DefaultHTTPTimeout
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
		}
		timeout = d
	}

	level, err := ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}

	schedule := os.Getenv("SYNC_SCHEDULE")
	if schedule == "" {
		schedule = DefaultSyncSchedule
	}

	return &Config{
		ServerURL:     strings.TrimRight(os.Getenv("CALDAV_URL"), "/"),
		Username:      os.Getenv("CALDAV_USERNAME"),
		Password:      os.Getenv("CALDAV_PASSWORD"),
		DataDir:       dataDir,
		ColorProperty: colorProp,
		HTTPTimeout:   timeout,
		LogLevel:      level,
		SyncSchedule:  schedule,
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
	}, nil
}

// RequireServer reports the first missing setting needed to talk to a server.
func (c *Config) RequireServer() error {
	switch {
	case c.ServerURL == "":
		return errors.New("CALDAV_URL is required")
	case c.Username == "":
		return errors.New("CALDAV_USERNAME is required")
	case c.Password == "":
		return errors.New("CALDAV_PASSWORD is required")
	}
	return nil
}

// ParseLevel maps debug|info|warn|error to a slog level; empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", s)
}

func defaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "errands"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "errands"), nil
}
