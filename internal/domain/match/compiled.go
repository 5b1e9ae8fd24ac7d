package match

import (
	"context"

	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/resource"
	"github.com/sophialabs/mimic/internal/domain/route"
)

// Subject extracts the actual value a condition compares against.
// A nil result means the value is absent.
type Subject func(ctx context.Context, ex *exchange.Exchange) (*string, error)

// CompiledCondition is a condition ready to evaluate.
type CompiledCondition struct {
	Field    string
	Subject  Subject
	Operator Operator
	Expected *string
}

// CompiledResource holds a definition with its compiled route and conditions.
type CompiledResource struct {
	ID         string
	Index      int
	Method     string
	Route      *route.Matcher
	Conditions []CompiledCondition
	Definition *resource.Definition
	RateLimit  *CompiledRateLimit
}

// CompiledRateLimit holds rate limit parameters.
type CompiledRateLimit struct {
	Rate  float64
	Burst int
	Key   string
}
