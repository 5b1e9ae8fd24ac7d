package template

import (
	"context"

	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/expression"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

var _ ports.TemplateEngine = (*PlaceholderEngine)(nil)

// PlaceholderEngine replaces ${...} placeholders using the expression engine.
type PlaceholderEngine struct {
	exprs  *expression.Engine
	policy expression.Policy
}

// NewPlaceholderEngine creates the placeholder engine. policy governs
// placeholders whose namespace has no evaluator.
func NewPlaceholderEngine(exprs *expression.Engine, policy expression.Policy) *PlaceholderEngine {
	return &PlaceholderEngine{exprs: exprs, policy: policy}
}

func (p *PlaceholderEngine) Name() string { return DefaultEngine }

func (p *PlaceholderEngine) Render(ctx context.Context, content string, ex *exchange.Exchange) (string, error) {
	return p.exprs.Eval(ctx, content, ex, p.policy)
}
