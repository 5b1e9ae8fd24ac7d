package evaluators

import (
	"context"
	"os"
	"strings"

	"github.com/sophialabs/mimic/internal/domain/exchange"
)

// Env resolves env.<NAME>. Unset variables are null.
type Env struct {
	Lookup func(string) (string, bool)
}

func (e Env) Eval(_ context.Context, expr string, _ *exchange.Exchange) (any, error) {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(strings.TrimPrefix(expr, "env.")); ok {
		return v, nil
	}
	return nil, nil
}
