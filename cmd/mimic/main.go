// Package main is the mimic server entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/sophialabs/mimic/internal/app"
)

var opts struct {
	Root string `short:"r" long:"root" env:"MIMIC_ROOT" default:"./mock" description:"root directory of resource configuration"`
	Glob string `long:"glob" env:"MIMIC_GLOB" description:"doublestar pattern selecting config files (default **/*.{yaml,yml})"`
	Port int    `short:"p" long:"port" env:"MIMIC_PORT" default:"8080" description:"HTTP server port"`

	Log struct {
		Level  string `long:"level"  env:"LEVEL"  default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"log level"`
		Format string `long:"format" env:"FORMAT" default:"text" choice:"text" choice:"json" choice:"tint" description:"log output format"`
	} `group:"log" namespace:"log" env-namespace:"MIMIC_LOG"`

	TraceSize      int               `long:"trace-size"       env:"MIMIC_TRACE_SIZE"       default:"200"      description:"number of trace entries to keep"`
	RegexCacheSize int               `long:"regex-cache-size" env:"MIMIC_REGEX_CACHE_SIZE" default:"30"       description:"compiled condition patterns to cache"`
	ScriptWorkers  int               `long:"script-workers"   env:"MIMIC_SCRIPT_WORKERS"   default:"8"        description:"scripts allowed to run concurrently"`
	TemplatePolicy string            `long:"template-policy"  env:"MIMIC_TEMPLATE_POLICY"  default:"ignore"   choice:"ignore" choice:"nullify" description:"unknown placeholder handling"`
	DefaultEngine  string            `long:"default-engine"   env:"MIMIC_DEFAULT_ENGINE"   description:"template engine for responses that do not name one (placeholder, jinja2)"`
	DefaultStatus  int               `long:"default-status"   env:"MIMIC_DEFAULT_STATUS"   default:"200"      description:"status code of responses without one"`
	TimeZone       string            `long:"time-zone"        env:"MIMIC_TIME_ZONE"        description:"IANA time zone of datetime expressions (default local)"`
	Values         map[string]string `long:"config"           env:"MIMIC_CONFIG" env-delim:"," description:"key:value pairs exposed to scripts"`

	Store struct {
		Backend string `long:"backend" env:"BACKEND" default:"inmemory" choice:"inmemory" choice:"file" description:"named store backend"`
		Dir     string `long:"dir"     env:"DIR"     description:"directory of the file store backend"`
	} `group:"store" namespace:"store" env-namespace:"MIMIC_STORE"`

	Watch struct {
		Disable  bool          `long:"disable"  env:"DISABLE"  description:"disable hot reload"`
		Debounce time.Duration `long:"debounce" env:"DEBOUNCE" default:"500ms" description:"delay before reloading changed files"`
	} `group:"watch" namespace:"watch" env-namespace:"MIMIC_WATCH"`

	ShutdownTimeout time.Duration `long:"shutdown-timeout" env:"MIMIC_SHUTDOWN_TIMEOUT" default:"10s" description:"graceful shutdown timeout"`
}

var version = "unknown"

func getVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		return bi.Main.Version
	}
	return version
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}
	_, _ = fmt.Fprintf(os.Stderr, "mimic %s\n", getVersion())

	cfg := app.DefaultConfig()
	cfg.RootDir = opts.Root
	cfg.Glob = opts.Glob
	cfg.Port = opts.Port
	cfg.LogLevel = opts.Log.Level
	cfg.LogFormat = opts.Log.Format
	cfg.TraceSize = opts.TraceSize
	cfg.RegexCacheSize = opts.RegexCacheSize
	cfg.ScriptWorkers = opts.ScriptWorkers
	cfg.TemplatePolicy = opts.TemplatePolicy
	cfg.DefaultEngine = opts.DefaultEngine
	cfg.DefaultStatus = opts.DefaultStatus
	cfg.TimeZone = opts.TimeZone
	cfg.Values = opts.Values
	cfg.StoreBackend = opts.Store.Backend
	cfg.StoreDir = opts.Store.Dir
	cfg.DisableWatcher = opts.Watch.Disable
	cfg.WatcherDebounce = opts.Watch.Debounce
	cfg.ShutdownTimeout = opts.ShutdownTimeout

	a, err := app.New(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := a.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
