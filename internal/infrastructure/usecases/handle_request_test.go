package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sophialabs/mimic/internal/domain/behaviour"
	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/expression"
	"github.com/sophialabs/mimic/internal/domain/match"
	"github.com/sophialabs/mimic/internal/domain/resource"
	"github.com/sophialabs/mimic/internal/domain/store"
	"github.com/sophialabs/mimic/internal/domain/trace"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/evaluators"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/query"
	memstore "github.com/sophialabs/mimic/internal/infrastructure/outbound/store"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/template"
	"github.com/sophialabs/mimic/internal/infrastructure/services"
	"github.com/sophialabs/mimic/internal/infrastructure/usecases"
	"github.com/sophialabs/mimic/internal/testutil"
)

type harness struct {
	dir      string
	stores   *memstore.Provider
	scripts  *testutil.StubScriptEngine
	limiter  *testutil.StubRateLimiter
	trace    *trace.RingBuffer
	compiler *services.Compiler
	uc       *usecases.HandleRequestUseCase
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	logger := &testutil.NoopLogger{}
	clk := &testutil.FixedClock{T: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}

	stores, err := memstore.NewProvider(memstore.BackendInMemory, "", logger)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	q := query.New()
	exprs := expression.NewEngine(evaluators.Builtins(evaluators.Options{Clock: clk, Stores: stores}), q)
	templates := template.NewRegistry(template.NewPlaceholderEngine(exprs, expression.Ignore))
	scripts := &testutil.StubScriptEngine{Results: map[string]*behaviour.Behaviour{}}
	conditions := match.NewConditionMatcher(match.DefaultRegexCacheSize)

	compiler, err := services.NewCompiler(services.CompilerDeps{
		RootDir:     dir,
		Conditions:  conditions,
		Expressions: exprs,
		Query:       q,
		Templates:   templates,
		Scripts:     scripts,
	})
	if err != nil {
		t.Fatalf("NewCompiler failed: %v", err)
	}

	h := &harness{
		dir:      dir,
		stores:   stores,
		scripts:  scripts,
		limiter:  &testutil.StubRateLimiter{AllowAll: true},
		trace:    trace.NewRingBuffer(50),
		compiler: compiler,
	}
	h.uc = usecases.NewHandleRequestUseCase(usecases.HandleRequestDeps{
		Resolver:    match.NewResolver(conditions),
		Behaviours:  services.NewBehaviourResolver(scripts, stores, services.BehaviourOptions{RootDir: dir}),
		Captures:    services.NewCaptureService(exprs, q, stores, logger),
		Renderer:    services.NewResponseRenderer(templates, clk, dir),
		Stores:      stores,
		Clock:       clk,
		RateLimiter: h.limiter,
		Logger:      logger,
		Trace:       h.trace,
	})
	return h
}

func (h *harness) index(t *testing.T, defs ...*resource.Definition) *services.ResourceIndex {
	t.Helper()
	for _, d := range defs {
		d.ConfigDir = h.dir
	}
	compiled, err := h.compiler.CompileAll(defs)
	if err != nil {
		t.Fatalf("CompileAll failed: %v", err)
	}
	return services.NewResourceIndex(compiled)
}

func (h *harness) script(name string, b *behaviour.Behaviour) string {
	h.scripts.Results[filepath.Join(h.dir, name)] = b
	return name
}

func request(method, path string, headers map[string]string) *exchange.Exchange {
	return exchange.New("req-1", &exchange.Request{Method: method, Path: path, URI: path, Headers: headers})
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func TestHandleRequest_NoMatch(t *testing.T) {
	h := newHarness(t)
	idx := h.index(t, &resource.Definition{ID: "a", Method: "GET", Path: "/a"})

	result := h.uc.Execute(context.Background(), request("GET", "/nonexistent", nil), idx)

	if result.Matched || result.Response != nil || result.Err != nil {
		t.Errorf("expected no match, got %+v", result)
	}
	if h.trace.Count() != 1 {
		t.Errorf("expected 1 trace entry, got %d", h.trace.Count())
	}
}

func TestHandleRequest_Match(t *testing.T) {
	h := newHarness(t)
	idx := h.index(t, &resource.Definition{
		ID:     "user",
		Method: "GET",
		Path:   "/users/:id",
		Response: resource.ResponseSpec{
			StatusCode: 200,
			Content:    strPtr(`{"id":"${context.request.pathParams.id}"}`),
			Template:   boolPtr(true),
			Headers:    map[string]string{"Content-Type": "application/json"},
		},
	})

	ex := request("GET", "/users/42", nil)
	result := h.uc.Execute(context.Background(), ex, idx)

	if !result.Matched || result.Response == nil {
		t.Fatalf("expected a rendered match, got %+v", result)
	}
	if string(result.Response.Body) != `{"id":"42"}` {
		t.Errorf("unexpected body %s", result.Response.Body)
	}
	if result.TraceEntry.MatchedID != "user" || result.TraceEntry.Status != 200 {
		t.Errorf("unexpected trace entry: %+v", result.TraceEntry)
	}
	if ex.Response == nil || ex.Response.StatusCode != 200 {
		t.Error("expected exchange response to be set")
	}
}

func TestHandleRequest_ConditionsExcludeResources(t *testing.T) {
	h := newHarness(t)
	idx := h.index(t,
		&resource.Definition{
			ID: "debug", Path: "/mode",
			Conditions: []resource.Condition{{Source: resource.SourceHeader, Name: "X-Mode", Operator: "EqualTo", Value: strPtr("debug")}},
			Response:   resource.ResponseSpec{Content: strPtr("debug")},
		},
		&resource.Definition{ID: "fallback", Path: "/mode", Response: resource.ResponseSpec{Content: strPtr("normal")}},
	)

	tests := []struct {
		headers map[string]string
		want    string
	}{
		{map[string]string{"X-Mode": "debug"}, "debug"},
		{map[string]string{"X-Mode": "other"}, "normal"},
		{nil, "normal"},
	}
	for _, tt := range tests {
		result := h.uc.Execute(context.Background(), request("GET", "/mode", tt.headers), idx)
		if result.Response == nil || string(result.Response.Body) != tt.want {
			t.Errorf("headers %v: expected %q, got %+v", tt.headers, tt.want, result.Response)
		}
	}
}

func TestHandleRequest_SpecificityOrder(t *testing.T) {
	h := newHarness(t)
	idx := h.index(t,
		&resource.Definition{ID: "catch-all", Response: resource.ResponseSpec{Content: strPtr("catch-all")}},
		&resource.Definition{ID: "regex", Regex: "/items/.*", Response: resource.ResponseSpec{Content: strPtr("regex")}},
		&resource.Definition{ID: "placeholder", Path: "/items/:id", Response: resource.ResponseSpec{Content: strPtr("placeholder")}},
		&resource.Definition{ID: "exact", Path: "/items/special", Response: resource.ResponseSpec{Content: strPtr("exact")}},
	)

	tests := map[string]string{
		"/items/special": "exact",
		"/items/7":       "placeholder",
		"/items/7/x":     "regex",
		"/other":         "catch-all",
	}
	for path, want := range tests {
		result := h.uc.Execute(context.Background(), request("GET", path, nil), idx)
		if result.ResourceID != want {
			t.Errorf("%s: expected %q, got %q", path, want, result.ResourceID)
		}
	}
}

func TestHandleRequest_InterceptorChaining(t *testing.T) {
	h := newHarness(t)
	idx := h.index(t,
		&resource.Definition{
			ID: "audit", Path: "/orders", Interceptor: true,
			Captures: []resource.Capture{{
				Store: "audit",
				Key:   resource.ValueSource{Expression: "${context.request.headers.X-Request-Id}"},
				Value: resource.ValueSource{Expression: "${context.request.method}"},
			}},
		},
		&resource.Definition{ID: "orders", Path: "/orders", Response: resource.ResponseSpec{StatusCode: 200, Content: strPtr("[]")}},
	)

	result := h.uc.Execute(context.Background(), request("GET", "/orders", map[string]string{"X-Request-Id": "r1"}), idx)

	if result.ResourceID != "orders" || result.Response == nil {
		t.Fatalf("expected orders to respond, got %+v", result)
	}
	if len(result.TraceEntry.Skipped) != 1 || result.TraceEntry.Skipped[0] != "audit" {
		t.Errorf("expected audit to be skipped, got %v", result.TraceEntry.Skipped)
	}

	s, err := h.stores.Lookup(context.Background(), "audit")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if v, _ := s.Load(context.Background(), "r1"); v != "GET" {
		t.Errorf("expected interceptor capture, got %v", v)
	}
}

func TestHandleRequest_AllSkipped(t *testing.T) {
	h := newHarness(t)
	idx := h.index(t,
		&resource.Definition{ID: "a", Path: "/x", Interceptor: true},
		&resource.Definition{ID: "b", Path: "/x", ContinueToNext: boolPtr(false)},
	)

	result := h.uc.Execute(context.Background(), request("GET", "/x", nil), idx)
	if result.Matched || result.Response != nil {
		t.Errorf("expected no match when every candidate skips, got %+v", result)
	}
	if len(result.TraceEntry.Skipped) != 2 {
		t.Errorf("expected 2 skipped, got %v", result.TraceEntry.Skipped)
	}
}

func TestHandleRequest_ScriptedResponses(t *testing.T) {
	h := newHarness(t)
	idx := h.index(t,
		&resource.Definition{
			ID: "skipper", Path: "/s",
			Script: h.script("skip.expr", &behaviour.Behaviour{Type: behaviour.Skip}),
		},
		&resource.Definition{
			ID: "creator", Path: "/s",
			Script:   h.script("create.expr", &behaviour.Behaviour{StatusCode: 201}),
			Response: resource.ResponseSpec{StatusCode: 200, Content: strPtr("created")},
		},
	)

	result := h.uc.Execute(context.Background(), request("POST", "/s", nil), idx)
	if result.ResourceID != "creator" || result.Response == nil {
		t.Fatalf("expected creator to respond, got %+v", result)
	}
	if result.Response.StatusCode != 201 {
		t.Errorf("script status overwritten: %d", result.Response.StatusCode)
	}
	if string(result.Response.Body) != "created" {
		t.Errorf("unexpected body %q", result.Response.Body)
	}
}

func TestHandleRequest_ScriptFailure(t *testing.T) {
	h := newHarness(t)
	idx := h.index(t, &resource.Definition{
		ID: "broken", Path: "/b",
		Script:   h.script("broken.expr", nil),
		Response: resource.ResponseSpec{Content: strPtr("never")},
	})
	h.scripts.Err = errors.New("boom")

	result := h.uc.Execute(context.Background(), request("GET", "/b", nil), idx)

	var scriptErr *services.ScriptError
	if !errors.As(result.Err, &scriptErr) {
		t.Fatalf("expected ScriptError, got %v", result.Err)
	}
	if result.Response != nil {
		t.Error("script failures must not fall through to default rendering")
	}
	if result.TraceEntry.Error == "" {
		t.Error("expected error recorded in trace")
	}
}

func TestHandleRequest_EvaluationFailure(t *testing.T) {
	h := newHarness(t)
	idx := h.index(t, &resource.Definition{
		ID: "bad", Path: "/e",
		Conditions: []resource.Condition{{Source: resource.SourceExpression, Name: "${datetime.now.bogus}", Operator: "Exists"}},
	})

	result := h.uc.Execute(context.Background(), request("GET", "/e", nil), idx)

	var evalErr *expression.EvaluationError
	if !errors.As(result.Err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %v", result.Err)
	}
	if evalErr.Expression != "${datetime.now.bogus}" {
		t.Errorf("unexpected expression %q", evalErr.Expression)
	}
}

func TestHandleRequest_RateLimited(t *testing.T) {
	h := newHarness(t)
	h.limiter.AllowAll = false
	idx := h.index(t, &resource.Definition{
		ID: "limited", Path: "/l",
		RateLimit: &resource.RateLimit{Rate: 1, Burst: 1},
		Response:  resource.ResponseSpec{Content: strPtr("ok")},
	})

	result := h.uc.Execute(context.Background(), request("GET", "/l", nil), idx)

	if !result.Matched || !result.RateLimited {
		t.Errorf("expected rate limited match, got %+v", result)
	}
	if result.Response != nil {
		t.Error("expected no response when rate limited")
	}
	if !result.TraceEntry.RateLimited {
		t.Error("expected trace entry to be marked rate limited")
	}
}

func TestHandleRequest_CaptureAndRequestStoreCleanup(t *testing.T) {
	h := newHarness(t)
	idx := h.index(t, &resource.Definition{
		ID: "cap", Path: "/c",
		Captures: []resource.Capture{
			{
				Store: "test",
				Key:   resource.ValueSource{Expression: "${context.request.headers.Correlation-ID}"},
				Value: resource.ValueSource{Const: strPtr("bar")},
			},
			{Name: "scratch", Value: resource.ValueSource{Const: strPtr("tmp")}},
			{Name: "status", Store: "test", Value: resource.ValueSource{Expression: "${context.response.statusCode}"}, Phase: resource.PhaseResponse},
		},
		Response: resource.ResponseSpec{StatusCode: 202},
	})

	ex := request("GET", "/c", map[string]string{"Correlation-Id": "foo"})
	result := h.uc.Execute(context.Background(), ex, idx)
	if result.Err != nil {
		t.Fatalf("Execute failed: %v", result.Err)
	}

	s, err := h.stores.Lookup(context.Background(), "test")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if v, _ := s.Load(context.Background(), "foo"); v != "bar" {
		t.Errorf("expected foo=bar, got %v", v)
	}
	if v, _ := s.Load(context.Background(), "status"); v != "202" {
		t.Errorf("expected response capture, got %v", v)
	}
	if _, err := h.stores.Lookup(context.Background(), ex.RequestStoreName()); !errors.Is(err, store.ErrStoreNotFound) {
		t.Errorf("expected request store to be dropped, got %v", err)
	}
}

func TestHandleRequest_ConcurrentMatchesAgreeWithSequential(t *testing.T) {
	h := newHarness(t)
	idx := h.index(t,
		&resource.Definition{ID: "user", Method: "GET", Path: "/users/:id",
			Conditions: []resource.Condition{{Source: resource.SourcePath, Name: "id", Operator: "Matches", Value: strPtr("[0-9]+")}}},
		&resource.Definition{ID: "named", Method: "GET", Path: "/users/:name"},
		&resource.Definition{ID: "post", Method: "POST", Path: "/users/:id"},
		&resource.Definition{ID: "fallback"},
	)

	paths := make([]string, 0, 40)
	for i := range 20 {
		paths = append(paths, fmt.Sprintf("/users/%d", i), fmt.Sprintf("/users/u%d", i))
	}

	sequential := make([]string, len(paths))
	for i, p := range paths {
		sequential[i] = h.uc.Execute(context.Background(), request("GET", p, nil), idx).ResourceID
	}

	concurrent := make([]string, len(paths))
	var wg sync.WaitGroup
	for round := range 10 {
		for i, p := range paths {
			wg.Add(1)
			go func(i int, p string) {
				defer wg.Done()
				ex := exchange.New(fmt.Sprintf("req-%d-%d", round, i), &exchange.Request{Method: "GET", Path: p, URI: p})
				id := h.uc.Execute(context.Background(), ex, idx).ResourceID
				if round == 0 {
					concurrent[i] = id
				} else if id != sequential[i] {
					t.Errorf("%s resolved to %s, want %s", p, id, sequential[i])
				}
			}(i, p)
		}
	}
	wg.Wait()

	for i := range paths {
		if concurrent[i] != sequential[i] {
			t.Errorf("%s resolved to %s concurrently, %s sequentially", paths[i], concurrent[i], sequential[i])
		}
	}
	if sequential[0] != "user" || sequential[1] != "named" {
		t.Errorf("unexpected sequential results: %v", sequential[:2])
	}
}
