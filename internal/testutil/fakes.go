package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sophialabs/mimic/internal/domain/behaviour"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

var _ ports.Logger = (*NoopLogger)(nil)

// NoopLogger discards all log output.
type NoopLogger struct{}

func (l *NoopLogger) Info(string, ...any)  {}
func (l *NoopLogger) Warn(string, ...any)  {}
func (l *NoopLogger) Error(string, ...any) {}
func (l *NoopLogger) Debug(string, ...any) {}

var _ ports.Logger = (*RecordingLogger)(nil)

// RecordingLogger keeps warn and error messages for assertions.
type RecordingLogger struct {
	mu       sync.Mutex
	Messages []string
}

func (l *RecordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, level+": "+msg)
}

func (l *RecordingLogger) Info(string, ...any)        {}
func (l *RecordingLogger) Debug(string, ...any)       {}
func (l *RecordingLogger) Warn(msg string, _ ...any)  { l.record("WARN", msg) }
func (l *RecordingLogger) Error(msg string, _ ...any) { l.record("ERROR", msg) }

// Count returns the number of recorded messages.
func (l *RecordingLogger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Messages)
}

var _ ports.Clock = (*FixedClock)(nil)

// FixedClock returns a fixed time and records requested sleeps without sleeping.
type FixedClock struct {
	T time.Time

	mu    sync.Mutex
	slept []time.Duration
}

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) SleepContext(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	return ctx.Err()
}

// Slept returns the durations passed to SleepContext.
func (c *FixedClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

var _ ports.RateLimiter = (*StubRateLimiter)(nil)

// StubRateLimiter returns a configurable Allow result.
type StubRateLimiter struct {
	AllowAll bool
}

func (r *StubRateLimiter) Allow(context.Context, string, float64, int) bool {
	return r.AllowAll
}

var _ ports.ScriptEngine = (*StubScriptEngine)(nil)

// StubScriptEngine returns canned behaviours keyed by script path.
type StubScriptEngine struct {
	Results    map[string]*behaviour.Behaviour
	Err        error
	PrepareErr error

	mu    sync.Mutex
	calls []string
}

func (s *StubScriptEngine) Prepare(ports.ScriptRef) error { return s.PrepareErr }

func (s *StubScriptEngine) Execute(_ context.Context, ref ports.ScriptRef, _ ports.Bindings) (*behaviour.Behaviour, error) {
	s.mu.Lock()
	s.calls = append(s.calls, ref.Path)
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	b, ok := s.Results[ref.Path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrScriptNotPrepared, ref.Path)
	}
	if b == nil {
		return nil, nil
	}
	out := *b
	return &out, nil
}

// Calls returns the script paths executed so far.
func (s *StubScriptEngine) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
