// Package template renders response content with the placeholder and jinja2
// engines.
package template

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

// DefaultEngine is used when a response does not name an engine.
const DefaultEngine = "placeholder"

// validator is implemented by engines that can check content at load time.
type validator interface {
	Validate(content string) error
}

// Registry maps engine names to engines.
type Registry struct {
	engines map[string]ports.TemplateEngine
}

// NewRegistry creates a registry holding engines, keyed by their names.
func NewRegistry(engines ...ports.TemplateEngine) *Registry {
	r := &Registry{engines: make(map[string]ports.TemplateEngine, len(engines))}
	for _, e := range engines {
		r.engines[strings.ToLower(e.Name())] = e
	}
	return r
}

// Names returns the registered engine names in sorted order.
func (r *Registry) Names() []string {
	names := lo.Keys(r.engines)
	slices.Sort(names)
	return names
}

// Lookup resolves the engine by name, case-insensitively. An empty name
// selects DefaultEngine.
func (r *Registry) Lookup(name string) (ports.TemplateEngine, error) {
	if name == "" {
		name = DefaultEngine
	}
	e, ok := r.engines[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown template engine: %q (supported: %s)", name, strings.Join(r.Names(), ", "))
	}
	return e, nil
}

// Validate checks that the engine exists and, where supported, that content
// parses.
func (r *Registry) Validate(name, content string) error {
	e, err := r.Lookup(name)
	if err != nil {
		return err
	}
	if v, ok := e.(validator); ok {
		return v.Validate(content)
	}
	return nil
}

// Render renders content with the named engine.
func (r *Registry) Render(ctx context.Context, name, content string, ex *exchange.Exchange) (string, error) {
	e, err := r.Lookup(name)
	if err != nil {
		return "", err
	}
	return e.Render(ctx, content, ex)
}
