package evaluators

import (
	"github.com/sophialabs/mimic/internal/domain/expression"
	"github.com/sophialabs/mimic/internal/domain/store"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

// Options carries the collaborators of the built-in namespaces.
type Options struct {
	Clock     ports.Clock
	Stores    store.Provider
	LookupEnv func(string) (string, bool)
	Port      int
	URL       string
}

// Builtins returns every built-in namespace keyed by its root.
func Builtins(opts Options) map[string]expression.Evaluator {
	return map[string]expression.Evaluator{
		"context":  Context{},
		"datetime": DateTime{Clock: opts.Clock},
		"random":   Random{},
		"env":      Env{Lookup: opts.LookupEnv},
		"system":   System{Port: opts.Port, URL: opts.URL},
		"stores":   Stores{Provider: opts.Stores},
		"fake":     Fake{},
		"jwt":      JWT{},
	}
}
