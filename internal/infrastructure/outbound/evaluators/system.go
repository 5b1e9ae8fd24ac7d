package evaluators

import (
	"context"
	"fmt"

	"github.com/sophialabs/mimic/internal/domain/exchange"
)

// System exposes facts about the running server.
type System struct {
	Port int
	URL  string
}

func (s System) Eval(_ context.Context, expr string, _ *exchange.Exchange) (any, error) {
	switch expr {
	case "system.server.port":
		return s.Port, nil
	case "system.server.url":
		return s.URL, nil
	default:
		return nil, fmt.Errorf("unsupported system expression %q", expr)
	}
}
