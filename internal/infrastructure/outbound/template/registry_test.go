package template_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/expression"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/query"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/template"
	"github.com/sophialabs/mimic/internal/testutil"
)

func newRegistry(policy expression.Policy) *template.Registry {
	exprs := newExprs()
	return template.NewRegistry(
		template.NewPlaceholderEngine(exprs, policy),
		template.NewJinja2Engine(exprs, query.New(), &testutil.FixedClock{T: fixedNow}),
	)
}

func TestRegistry_KnownEngines(t *testing.T) {
	r := newRegistry(expression.Ignore)
	ex := exchange.New("ex-1", &exchange.Request{PathParams: map[string]string{"name": "World"}})

	tests := []struct {
		engine string
		source string
	}{
		{"", `Hello ${context.request.pathParams.name}`},
		{"placeholder", `Hello ${context.request.pathParams.name}`},
		{"jinja2", `Hello {{ pathParam("name") }}`},
		{"Jinja2", `Hello {{ pathParam("name") }}`},
	}

	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			if err := r.Validate(tt.engine, tt.source); err != nil {
				t.Fatalf("Validate failed for engine %q: %v", tt.engine, err)
			}
			got, err := r.Render(context.Background(), tt.engine, tt.source, ex)
			if err != nil {
				t.Fatalf("Render failed for engine %q: %v", tt.engine, err)
			}
			if got != "Hello World" {
				t.Errorf("expected 'Hello World', got %q", got)
			}
		})
	}
}

func TestRegistry_UnknownEngine(t *testing.T) {
	r := newRegistry(expression.Ignore)
	if _, err := r.Lookup("velocity"); err == nil {
		t.Error("expected error for unknown engine")
	}
	if err := r.Validate("velocity", "body"); err == nil {
		t.Error("expected Validate to reject unknown engine")
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"jinja2", "placeholder"}) {
		t.Errorf("Names() = %v", got)
	}
}

func TestPlaceholderEngine_Policy(t *testing.T) {
	ex := exchange.New("ex-1", &exchange.Request{Method: "GET"})
	source := `${context.request.method} ${unknown.value}`

	tests := []struct {
		policy expression.Policy
		want   string
	}{
		{expression.Ignore, "GET ${unknown.value}"},
		{expression.Nullify, "GET "},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			got, err := newRegistry(tt.policy).Render(context.Background(), "", source, ex)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
