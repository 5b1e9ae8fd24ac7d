// Package ports declares the interfaces infrastructure adapters implement.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/sophialabs/mimic/internal/domain/behaviour"
	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/store"
)

// ErrScriptNotPrepared is returned when executing a script that was never prepared.
var ErrScriptNotPrepared = errors.New("script not prepared")

// Clock provides the current time (for testing).
type Clock interface {
	Now() time.Time
	// SleepContext blocks for d or until ctx is cancelled. Returns ctx.Err() if cancelled.
	SleepContext(ctx context.Context, d time.Duration) error
}

// Logger provides structured logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// RateLimiter checks whether a request is allowed under rate limits.
type RateLimiter interface {
	// Allow checks if a request identified by key is within the rate limit.
	// rate is tokens per second, burst is the max burst size.
	Allow(ctx context.Context, key string, rate float64, burst int) bool
}

// ScriptRef identifies a script file and the resource it belongs to.
type ScriptRef struct {
	Path       string // absolute path
	ResourceID string
	ConfigDir  string
}

// Bindings is what a script can see while it runs.
type Bindings struct {
	Exchange *exchange.Exchange
	Stores   store.Provider
	Env      func(string) (string, bool)
	Config   map[string]string
}

// ScriptEngine executes resource scripts. Implementations must be safe for
// concurrent use.
type ScriptEngine interface {
	// Prepare compiles the script so load-time errors surface before serving.
	Prepare(ref ScriptRef) error
	// Execute runs a prepared script and returns a partial behaviour.
	// A nil behaviour means the script expressed no opinion.
	Execute(ctx context.Context, ref ScriptRef, b Bindings) (*behaviour.Behaviour, error)
}

// TemplateEngine renders response content against an exchange.
type TemplateEngine interface {
	Name() string
	Render(ctx context.Context, content string, ex *exchange.Exchange) (string, error)
}
