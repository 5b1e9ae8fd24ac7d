package app

import (
	"fmt"
	"net/http"
	"time"
)

// Config holds all configurable parameters for the application.
type Config struct {
	RootDir   string
	Glob      string
	Port      int
	TraceSize int
	LogLevel  string
	LogFormat string // text, json or tint

	RegexCacheSize int
	ScriptWorkers  int
	StoreBackend   string
	StoreDir       string
	TemplatePolicy string
	DefaultEngine  string // "" = placeholder, "jinja2"
	DefaultStatus  int
	TimeZone       string

	// Values exposed to scripts as config.
	Values map[string]string

	RateLimiterTTL  time.Duration
	WatcherDebounce time.Duration
	DisableWatcher  bool

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		RootDir:   "./mock",
		Port:      8080,
		TraceSize: 200,
		LogLevel:  "info",
		LogFormat: "text",

		RegexCacheSize: 30,
		ScriptWorkers:  8,
		StoreBackend:   "inmemory",
		TemplatePolicy: "ignore",
		DefaultStatus:  http.StatusOK,

		RateLimiterTTL:  10 * time.Minute,
		WatcherDebounce: 500 * time.Millisecond,

		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	switch {
	case c.RootDir == "":
		return fmt.Errorf("root directory is required")
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.RegexCacheSize < 0:
		return fmt.Errorf("regex cache size must not be negative")
	case c.DefaultStatus != 0 && (c.DefaultStatus < 100 || c.DefaultStatus > 599):
		return fmt.Errorf("invalid default status %d", c.DefaultStatus)
	}
	return nil
}
