package services_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/expression"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/evaluators"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/query"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/store"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/template"
	"github.com/sophialabs/mimic/internal/testutil"
)

type fixture struct {
	dir       string
	clock     *testutil.FixedClock
	stores    *store.Provider
	query     *query.Provider
	exprs     *expression.Engine
	templates *template.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stores, err := store.NewProvider(store.BackendInMemory, "", &testutil.NoopLogger{})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	clk := &testutil.FixedClock{T: time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)}
	q := query.New()
	exprs := expression.NewEngine(evaluators.Builtins(evaluators.Options{
		Clock:     clk,
		Stores:    stores,
		LookupEnv: func(string) (string, bool) { return "", false },
	}), q)
	return &fixture{
		dir:    t.TempDir(),
		clock:  clk,
		stores: stores,
		query:  q,
		exprs:  exprs,
		templates: template.NewRegistry(
			template.NewPlaceholderEngine(exprs, expression.Ignore),
			template.NewJinja2Engine(exprs, q, clk),
		),
	}
}

func (f *fixture) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func newExchange(req *exchange.Request) *exchange.Exchange {
	if req.Method == "" {
		req.Method = "GET"
	}
	if req.URI == "" {
		req.URI = req.Path
	}
	return exchange.New("req-1", req)
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
