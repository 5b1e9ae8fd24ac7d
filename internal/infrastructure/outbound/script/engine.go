// Package script runs resource scripts written in the expr language.
//
// A script file holds a single expression. It sees the request, the
// resource config, environment variables and the stores, and returns nil or
// a map describing the response:
//
//	request.header("X-Mode") == "down"
//	  ? {status: 503, content: "maintenance", shortCircuit: true}
//	  : nil
package script

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sophialabs/mimic/internal/domain/behaviour"
	"github.com/sophialabs/mimic/internal/domain/expression"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

var _ ports.ScriptEngine = (*ExprEngine)(nil)

// ExprEngine compiles scripts once per path and runs them concurrently.
type ExprEngine struct {
	query    expression.QueryProvider
	programs sync.Map // path -> *vm.Program
}

// NewExprEngine creates an engine. query backs the jsonPath() helper and may
// be nil.
func NewExprEngine(query expression.QueryProvider) *ExprEngine {
	return &ExprEngine{query: query}
}

// Prepare reads and compiles the script at ref.Path. Preparing the same path
// again recompiles it, so edited scripts are picked up on reload.
func (e *ExprEngine) Prepare(ref ports.ScriptRef) error {
	src, err := os.ReadFile(ref.Path)
	if err != nil {
		return fmt.Errorf("read script %s: %w", ref.Path, err)
	}
	program, err := expr.Compile(string(src), expr.Env(scriptEnv{}))
	if err != nil {
		return fmt.Errorf("compile script %s: %w", ref.Path, err)
	}
	e.programs.Store(ref.Path, program)
	return nil
}

// Execute runs a prepared script.
func (e *ExprEngine) Execute(ctx context.Context, ref ports.ScriptRef, b ports.Bindings) (*behaviour.Behaviour, error) {
	v, ok := e.programs.Load(ref.Path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrScriptNotPrepared, ref.Path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := expr.Run(v.(*vm.Program), buildEnv(ctx, ref, b, e.query))
	if err != nil {
		return nil, fmt.Errorf("run script %s: %w", ref.Path, err)
	}
	bh, err := toBehaviour(out)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", ref.Path, err)
	}
	return bh, nil
}
