package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/match"
	"github.com/sophialabs/mimic/internal/domain/resource"
	"github.com/sophialabs/mimic/internal/domain/route"
	"github.com/sophialabs/mimic/internal/infrastructure/services"
	"github.com/sophialabs/mimic/internal/testutil"
)

func newTestCompiler(t *testing.T, f *fixture, scripts *testutil.StubScriptEngine) *services.Compiler {
	t.Helper()
	deps := services.CompilerDeps{
		RootDir:     f.dir,
		Conditions:  match.NewConditionMatcher(match.DefaultRegexCacheSize),
		Expressions: f.exprs,
		Query:       f.query,
		Templates:   f.templates,
	}
	if scripts != nil {
		deps.Scripts = scripts
	}
	c, err := services.NewCompiler(deps)
	if err != nil {
		t.Fatalf("NewCompiler failed: %v", err)
	}
	return c
}

func TestCompiler_SimpleResource(t *testing.T) {
	f := newFixture(t)
	c := newTestCompiler(t, f, nil)

	def := &resource.Definition{
		ID:        "get-user",
		ConfigDir: f.dir,
		Method:    "get",
		Path:      "/users/:id",
		Response:  resource.ResponseSpec{StatusCode: 200, Content: strPtr(`{"ok":true}`)},
		RateLimit: &resource.RateLimit{Rate: 5, Burst: 2},
	}

	cr, err := c.Compile(def, 3)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if cr.ID != "get-user" || cr.Index != 3 {
		t.Errorf("unexpected identity: %s/%d", cr.ID, cr.Index)
	}
	if cr.Method != "GET" {
		t.Errorf("expected upper-cased method, got %q", cr.Method)
	}
	if cr.Route.Kind() != route.Placeholder {
		t.Errorf("expected placeholder route, got %s", cr.Route.Kind())
	}
	if cr.RateLimit == nil || cr.RateLimit.Burst != 2 {
		t.Errorf("unexpected rate limit: %+v", cr.RateLimit)
	}
	if cr.Definition != def {
		t.Error("expected definition to be kept")
	}
}

func TestCompiler_ConditionSubjects(t *testing.T) {
	f := newFixture(t)
	c := newTestCompiler(t, f, nil)

	ex := newExchange(&exchange.Request{
		Method:      "POST",
		Path:        "/orders/7",
		Headers:     map[string]string{"X-Mode": "debug"},
		QueryParams: map[string]string{"page": "2"},
		PathParams:  map[string]string{"id": "7"},
		FormParams:  map[string]string{"color": "red"},
		Body:        []byte(`{"customer":{"name":"alice"}}`),
	})

	tests := []struct {
		name string
		cond resource.Condition
		want *string
	}{
		{"header case-insensitive", resource.Condition{Source: resource.SourceHeader, Name: "x-mode"}, strPtr("debug")},
		{"missing header", resource.Condition{Source: resource.SourceHeader, Name: "X-Other"}, nil},
		{"query", resource.Condition{Source: resource.SourceQuery, Name: "page"}, strPtr("2")},
		{"path", resource.Condition{Source: resource.SourcePath, Name: "id"}, strPtr("7")},
		{"form", resource.Condition{Source: resource.SourceForm, Name: "color"}, strPtr("red")},
		{"whole body", resource.Condition{Source: resource.SourceBody}, strPtr(`{"customer":{"name":"alice"}}`)},
		{"body jsonpath", resource.Condition{Source: resource.SourceBody, Name: "$.customer.name"}, strPtr("alice")},
		{"body jsonpath missing", resource.Condition{Source: resource.SourceBody, Name: "$.customer.age"}, nil},
		{"expression", resource.Condition{Source: resource.SourceExpression, Name: "${context.request.method}-${context.request.pathParams.id}"}, strPtr("POST-7")},
		{"expression null", resource.Condition{Source: resource.SourceExpression, Name: "${context.request.headers.X-Missing}"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cond.Operator = "Exists"
			cr, err := c.Compile(&resource.Definition{
				ID:         "r",
				ConfigDir:  f.dir,
				Conditions: []resource.Condition{tt.cond},
			}, 0)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			got, err := cr.Conditions[0].Subject(context.Background(), ex)
			if err != nil {
				t.Fatalf("Subject failed: %v", err)
			}
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("expected nil, got %q", *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("expected %q, got %v", *tt.want, got)
			}
			if cr.Conditions[0].Field != tt.cond.Subject() {
				t.Errorf("unexpected field %q", cr.Conditions[0].Field)
			}
		})
	}
}

func TestCompiler_EmptyBodyIsAbsent(t *testing.T) {
	f := newFixture(t)
	c := newTestCompiler(t, f, nil)

	cr, err := c.Compile(&resource.Definition{
		ID:         "r",
		Conditions: []resource.Condition{{Source: resource.SourceBody, Operator: "NotExists"}},
	}, 0)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	got, err := cr.Conditions[0].Subject(context.Background(), newExchange(&exchange.Request{Path: "/"}))
	if err != nil || got != nil {
		t.Errorf("expected nil subject for an empty body, got %v, %v", got, err)
	}
}

func TestCompiler_ResponseFiles(t *testing.T) {
	f := newFixture(t)
	c := newTestCompiler(t, f, nil)
	f.writeFile(t, "data/user.json", `{"name":"{{ pathParam('id') }}"}`)

	def := &resource.Definition{
		ID:        "file",
		ConfigDir: f.dir,
		Response: resource.ResponseSpec{
			File:     "data/user.json",
			Template: boolPtr(true),
			Engine:   "jinja2",
		},
	}
	if _, err := c.Compile(def, 0); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
}

func TestCompiler_Errors(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "bad.j2", `{% if %}`)

	tests := []struct {
		name    string
		def     resource.Definition
		scripts *testutil.StubScriptEngine
		want    string
	}{
		{
			name: "duplicate placeholder",
			def:  resource.Definition{ID: "x", Path: "/a/:id/b/:id"},
			want: "duplicate",
		},
		{
			name: "invalid route regex",
			def:  resource.Definition{ID: "x", Regex: "/a/(["},
			want: "failed to compile resource",
		},
		{
			name: "unknown operator",
			def: resource.Definition{ID: "x", Conditions: []resource.Condition{
				{Source: resource.SourceHeader, Name: "A", Operator: "LooksLike"},
			}},
			want: "unknown operator",
		},
		{
			name: "invalid condition regex",
			def: resource.Definition{ID: "x", Conditions: []resource.Condition{
				{Source: resource.SourceHeader, Name: "A", Operator: "Matches", Value: strPtr("([")},
			}},
			want: "invalid pattern",
		},
		{
			name: "invalid body query",
			def: resource.Definition{ID: "x", Conditions: []resource.Condition{
				{Source: resource.SourceBody, Name: "$.a[", Operator: "Exists"},
			}},
			want: "invalid jsonpath",
		},
		{
			name: "invalid capture query",
			def: resource.Definition{ID: "x", Captures: []resource.Capture{{
				Store: "s",
				Key:   resource.ValueSource{Const: strPtr("k")},
				Value: resource.ValueSource{XPath: "/a/["},
			}}},
			want: "capture 0",
		},
		{
			name: "missing response file",
			def:  resource.Definition{ID: "x", Response: resource.ResponseSpec{File: "nope.json"}},
			want: "failed to read response file",
		},
		{
			name: "file escaping root",
			def:  resource.Definition{ID: "x", Response: resource.ResponseSpec{File: "../../etc/passwd"}},
			want: "escapes root",
		},
		{
			name: "absolute file",
			def:  resource.Definition{ID: "x", Response: resource.ResponseSpec{File: "/etc/passwd"}},
			want: "absolute paths",
		},
		{
			name: "unknown engine",
			def:  resource.Definition{ID: "x", Response: resource.ResponseSpec{Content: strPtr("x"), Engine: "mustache"}},
			want: "unknown template engine",
		},
		{
			name: "invalid template",
			def: resource.Definition{ID: "x", Response: resource.ResponseSpec{
				File: "bad.j2", Template: boolPtr(true), Engine: "jinja2",
			}},
			want: "failed to compile template",
		},
		{
			name: "script without engine",
			def:  resource.Definition{ID: "x", Script: "s.expr"},
			want: "no script engine",
		},
		{
			name:    "script prepare failure",
			def:     resource.Definition{ID: "x", Script: "s.expr"},
			scripts: &testutil.StubScriptEngine{PrepareErr: errors.New("syntax error")},
			want:    "syntax error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCompiler(t, f, tt.scripts)
			tt.def.ConfigDir = f.dir
			_, err := c.Compile(&tt.def, 0)
			if err == nil {
				t.Fatal("expected compile error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCompiler_CompileAll(t *testing.T) {
	f := newFixture(t)
	c := newTestCompiler(t, f, nil)

	defs := []*resource.Definition{
		{ID: "a", Path: "/a"},
		{ID: "b", Regex: "/b/[0-9]+"},
		{ID: "c"},
	}
	out, err := c.CompileAll(defs)
	if err != nil {
		t.Fatalf("CompileAll failed: %v", err)
	}
	for i, cr := range out {
		if cr.Index != i || cr.ID != defs[i].ID {
			t.Errorf("resource %d compiled as %s/%d", i, cr.ID, cr.Index)
		}
	}
	if out[2].Route.Kind() != route.CatchAll {
		t.Errorf("expected catch-all, got %s", out[2].Route.Kind())
	}

	_, err = c.CompileAll([]*resource.Definition{{ID: "a", Path: "/a"}, {ID: "a", Path: "/b"}})
	if err == nil || !strings.Contains(err.Error(), "duplicate resource id") {
		t.Errorf("expected duplicate id error, got %v", err)
	}
}

func TestCompiler_SharesRouteCache(t *testing.T) {
	f := newFixture(t)
	routes := route.NewCache()
	c, err := services.NewCompiler(services.CompilerDeps{RootDir: f.dir, Routes: routes})
	if err != nil {
		t.Fatalf("NewCompiler failed: %v", err)
	}

	if _, err := c.CompileAll([]*resource.Definition{
		{ID: "get", Method: "GET", Path: "/items/:id"},
		{ID: "put", Method: "PUT", Path: "/items/:id"},
	}); err != nil {
		t.Fatalf("CompileAll failed: %v", err)
	}
	if routes.Len() != 1 {
		t.Errorf("expected one cached matcher, got %d", routes.Len())
	}
}
