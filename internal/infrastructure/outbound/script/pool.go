package script

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/sophialabs/mimic/internal/domain/behaviour"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

var _ ports.ScriptEngine = (*Pool)(nil)

// Pool bounds the number of scripts running at once, independently of how
// many requests the server accepts.
type Pool struct {
	engine ports.ScriptEngine
	sem    *semaphore.Weighted
}

// NewPool wraps engine with a limit of workers concurrent executions.
// workers below 1 is treated as 1.
func NewPool(engine ports.ScriptEngine, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{engine: engine, sem: semaphore.NewWeighted(int64(workers))}
}

func (p *Pool) Prepare(ref ports.ScriptRef) error {
	return p.engine.Prepare(ref)
}

// Execute waits for a free worker, honouring ctx, then runs the script.
func (p *Pool) Execute(ctx context.Context, ref ports.ScriptRef, b ports.Bindings) (*behaviour.Behaviour, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire script worker: %w", err)
	}
	defer p.sem.Release(1)
	return p.engine.Execute(ctx, ref, b)
}
