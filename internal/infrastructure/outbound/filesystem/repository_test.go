package filesystem_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sophialabs/mimic/internal/domain/resource"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/filesystem"
)

func newTestRepo(t *testing.T, rootDir, glob string) *filesystem.YAMLRepository {
	t.Helper()
	repo, err := filesystem.NewYAMLRepository(rootDir, glob)
	if err != nil {
		t.Fatalf("NewYAMLRepository failed: %v", err)
	}
	return repo
}

const usersYAML = `
basePath: /api
resources:
  - id: get-user
    method: get
    path: /users/:id
    conditions:
      - header: X-Mode
        operator: EqualTo
        value: debug
      - query: verbose
        operator: Exists
      - body: $.name
        operator: Matches
        value: "[a-z]+"
    capture:
      - name: user
        store: users
        key: { expression: "${context.request.pathParams.id}" }
        value: { jsonPath: "$.name" }
    script: scripts/user.expr
    continue: true
    rateLimit: { rate: 5, burst: 10, key: "header:X-Api-Key" }
    response:
      statusCode: 200
      content: '{"ok":true}'
      headers: { X-Mock: "true" }
      template: true
      engine: jinja2
      delay: { minMs: 10, maxMs: 50 }
      failureType: EmptyResponse
  - regex: ^/health/[a-z]+$
    interceptor: true
    response:
      file: health.json
`

func TestYAMLRepository_LoadAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "users.yaml"), usersYAML)

	defs, err := newTestRepo(t, dir, "").LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(defs))
	}

	d := defs[0]
	if d.ID != "get-user" || d.Method != "GET" || d.Path != "/api/users/:id" {
		t.Errorf("unexpected identity: %q %q %q", d.ID, d.Method, d.Path)
	}
	if d.ConfigDir != dir || d.SourceIndex != 0 || d.SourceFile != filepath.Join(dir, "users.yaml") {
		t.Errorf("unexpected source: %q %q %d", d.ConfigDir, d.SourceFile, d.SourceIndex)
	}
	if len(d.Conditions) != 3 {
		t.Fatalf("expected 3 conditions, got %d", len(d.Conditions))
	}
	if c := d.Conditions[0]; c.Source != resource.SourceHeader || c.Name != "X-Mode" || *c.Value != "debug" {
		t.Errorf("unexpected header condition %+v", c)
	}
	if c := d.Conditions[1]; c.Source != resource.SourceQuery || c.Operator != "Exists" || c.Value != nil {
		t.Errorf("unexpected query condition %+v", c)
	}
	if c := d.Conditions[2]; c.Source != resource.SourceBody || c.Name != "$.name" {
		t.Errorf("unexpected body condition %+v", c)
	}
	if len(d.Captures) != 1 || d.Captures[0].Key.Expression == "" || d.Captures[0].Value.JSONPath != "$.name" {
		t.Errorf("unexpected captures %+v", d.Captures)
	}
	if d.Script != "scripts/user.expr" || d.ContinueToNext == nil || !*d.ContinueToNext {
		t.Errorf("unexpected script/continue: %q %v", d.Script, d.ContinueToNext)
	}
	if d.RateLimit == nil || d.RateLimit.Rate != 5 || d.RateLimit.Burst != 10 {
		t.Errorf("unexpected rate limit %+v", d.RateLimit)
	}

	r := d.Response
	if r.StatusCode != 200 || *r.Content != `{"ok":true}` || r.Headers["X-Mock"] != "true" {
		t.Errorf("unexpected response %+v", r)
	}
	if r.Template == nil || !*r.Template || r.Engine != "jinja2" || r.FailureType != "EmptyResponse" {
		t.Errorf("unexpected response flags %+v", r)
	}
	if r.Delay == nil || r.Delay.MinMs != 10 || r.Delay.MaxMs != 50 {
		t.Errorf("unexpected delay %+v", r.Delay)
	}

	h := defs[1]
	if h.ID != "users.yaml#1" {
		t.Errorf("expected default id, got %q", h.ID)
	}
	if h.Regex != "^/health/[a-z]+$" || h.Path != "" || !h.Interceptor || h.Response.File != "health.json" {
		t.Errorf("unexpected second resource %+v", h)
	}
}

func TestYAMLRepository_LexicalOrderAndFragments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.yaml"), "- path: /b\n")
	writeFile(t, filepath.Join(dir, "a", "z.yml"), "resources:\n  - path: /a/z\n")
	writeFile(t, filepath.Join(dir, "a", "headers.yaml"), "X-Shared: \"1\"\n")
	writeFile(t, filepath.Join(dir, "empty.yaml"), "")
	writeFile(t, filepath.Join(dir, "notes.txt"), "- path: /ignored\n")

	defs, err := newTestRepo(t, dir, "").LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	var ids []string
	for _, d := range defs {
		ids = append(ids, d.ID)
	}
	if got := strings.Join(ids, ","); got != "a/z.yml#0,b.yaml#0" {
		t.Errorf("ids = %s", got)
	}
}

func TestYAMLRepository_Glob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "mocks", "one.yaml"), "- path: /one\n")
	writeFile(t, filepath.Join(dir, "other", "two.yaml"), "- path: /two\n")

	defs, err := newTestRepo(t, dir, "mocks/**/*.yaml").LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(defs) != 1 || defs[0].Path != "/one" {
		t.Errorf("expected only mocks/one.yaml, got %+v", defs)
	}

	if _, err := filesystem.NewYAMLRepository(dir, "[unclosed"); err == nil {
		t.Error("expected error for invalid glob")
	}
}

func TestYAMLRepository_Includes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "shared", "headers.yaml"), "X-Shared: \"yes\"\n")
	writeFile(t, filepath.Join(dir, "api.yaml"), `
resources:
  - path: /x
    response:
      headers: !include shared/headers.yaml
`)

	defs, err := newTestRepo(t, dir, "").LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(defs) != 1 || defs[0].Response.Headers["X-Shared"] != "yes" {
		t.Errorf("expected included headers, got %+v", defs)
	}
}

func TestYAMLRepository_Errors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "duplicate id",
			files:   map[string]string{"a.yaml": "- id: x\n  path: /a\n", "b.yaml": "- id: x\n  path: /b\n"},
			wantErr: "duplicate resource id",
		},
		{
			name:    "two condition sources",
			files:   map[string]string{"a.yaml": "- path: /a\n  conditions:\n    - header: A\n      query: b\n"},
			wantErr: "only one of",
		},
		{
			name:    "no condition source",
			files:   map[string]string{"a.yaml": "- path: /a\n  conditions:\n    - operator: Exists\n"},
			wantErr: "is required",
		},
		{
			name:    "path and regex",
			files:   map[string]string{"a.yaml": "- path: /a\n  regex: ^/a$\n"},
			wantErr: "mutually exclusive",
		},
		{
			name:    "malformed yaml",
			files:   map[string]string{"a.yaml": "resources: [\n"},
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, filepath.Join(dir, name), content)
			}
			_, err := newTestRepo(t, dir, "").LoadAll(context.Background())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestYAMLRepository_LoadByID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "users.yaml"), usersYAML)
	repo := newTestRepo(t, dir, "")

	d, err := repo.LoadByID(context.Background(), "get-user")
	if err != nil {
		t.Fatalf("LoadByID failed: %v", err)
	}
	if d.Path != "/api/users/:id" {
		t.Errorf("unexpected path %q", d.Path)
	}

	if _, err := repo.LoadByID(context.Background(), "nope"); !errors.Is(err, resource.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
