package clock

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

var _ ports.Clock = (*RealClock)(nil)

// RealClock implements ports.Clock using the system clock, reporting times
// in a fixed location.
type RealClock struct {
	loc *time.Location
}

// New creates a RealClock reporting local time.
func New() *RealClock {
	return &RealClock{loc: time.Local}
}

// NewIn creates a RealClock reporting time in the named IANA location.
func NewIn(name string) (*RealClock, error) {
	if name == "" {
		return New(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	return &RealClock{loc: loc}, nil
}

func (c *RealClock) Now() time.Time { return time.Now().In(c.loc) }

func (c *RealClock) SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Between returns a uniformly random duration in [lo, hi]. lo is returned
// when the range is empty.
func Between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}
