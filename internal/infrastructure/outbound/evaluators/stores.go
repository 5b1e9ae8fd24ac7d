package evaluators

import (
	"context"
	"fmt"
	"strings"

	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/store"
)

// Stores resolves stores.<store>.<key>. The store named "request" is the
// per-request store. A bare stores.<store> yields every item.
type Stores struct {
	Provider store.Provider
}

func (s Stores) Eval(ctx context.Context, expr string, ex *exchange.Exchange) (any, error) {
	rest, ok := strings.CutPrefix(expr, "stores.")
	if !ok || rest == "" {
		return nil, fmt.Errorf("unsupported stores expression %q", expr)
	}

	name, key, hasKey := strings.Cut(rest, ".")
	ephemeral := false
	if name == store.RequestStore {
		name, ephemeral = ex.RequestStoreName(), true
	}

	st, err := s.Provider.GetOrCreate(ctx, name, ephemeral)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", name, err)
	}
	if !hasKey {
		return st.LoadAll(ctx)
	}
	return st.Load(ctx, key)
}
