package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/expression"
	"github.com/sophialabs/mimic/internal/domain/match"
	"github.com/sophialabs/mimic/internal/domain/resource"
	"github.com/sophialabs/mimic/internal/domain/route"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

// TemplateValidator checks template content for an engine at load time.
type TemplateValidator interface {
	Validate(engine, content string) error
}

// BodyQuery validates and applies JSONPath/XPath queries to request bodies.
type BodyQuery interface {
	Validate(q string) error
	ExtractString(body []byte, q string) (*string, error)
}

// CompilerDeps are the collaborators a Compiler needs. Templates and Scripts
// may be nil, in which case resources using them fail to compile.
type CompilerDeps struct {
	RootDir     string
	Routes      *route.Cache
	Conditions  *match.ConditionMatcher
	Expressions *expression.Engine
	Query       BodyQuery
	Templates   TemplateValidator
	Scripts     ports.ScriptEngine
}

// Compiler transforms resource definitions into compiled resources. Every
// error a resource could hit at request time because of its configuration
// is reported here instead.
type Compiler struct {
	deps CompilerDeps
}

// NewCompiler creates a Compiler. RootDir confines response files and scripts.
func NewCompiler(deps CompilerDeps) (*Compiler, error) {
	if deps.RootDir != "" {
		absRoot, err := filepath.Abs(deps.RootDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root directory: %w", err)
		}
		deps.RootDir = absRoot
	}
	if deps.Routes == nil {
		deps.Routes = route.NewCache()
	}
	if deps.Conditions == nil {
		deps.Conditions = match.NewConditionMatcher(match.DefaultRegexCacheSize)
	}
	return &Compiler{deps: deps}, nil
}

// CompileAll compiles defs in order. Resource IDs must be unique.
func (c *Compiler) CompileAll(defs []*resource.Definition) ([]*match.CompiledResource, error) {
	seen := make(map[string]bool, len(defs))
	out := make([]*match.CompiledResource, 0, len(defs))
	for i, def := range defs {
		if seen[def.ID] {
			return nil, fmt.Errorf("duplicate resource id %q", def.ID)
		}
		seen[def.ID] = true

		cr, err := c.Compile(def, i)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, nil
}

// Compile turns a Definition into a CompiledResource at position index.
func (c *Compiler) Compile(def *resource.Definition, index int) (*match.CompiledResource, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	m, err := c.deps.Routes.Get(def.Path, def.Regex)
	if err != nil {
		return nil, fmt.Errorf("failed to compile resource %q: %w", def.ID, err)
	}

	conds := make([]match.CompiledCondition, 0, len(def.Conditions))
	for _, cond := range def.Conditions {
		cc, err := c.compileCondition(cond)
		if err != nil {
			return nil, fmt.Errorf("failed to compile resource %q condition %s: %w", def.ID, cond.Subject(), err)
		}
		conds = append(conds, cc)
	}

	if err := c.checkCaptures(def); err != nil {
		return nil, fmt.Errorf("failed to compile resource %q: %w", def.ID, err)
	}
	if err := c.checkResponse(def); err != nil {
		return nil, fmt.Errorf("failed to compile response for %q: %w", def.ID, err)
	}
	if err := c.prepareScript(def); err != nil {
		return nil, fmt.Errorf("failed to compile script for %q: %w", def.ID, err)
	}

	cr := &match.CompiledResource{
		ID:         def.ID,
		Index:      index,
		Method:     strings.ToUpper(def.Method),
		Route:      m,
		Conditions: conds,
		Definition: def,
	}
	if def.RateLimit != nil {
		cr.RateLimit = &match.CompiledRateLimit{
			Rate:  def.RateLimit.Rate,
			Burst: def.RateLimit.Burst,
			Key:   def.RateLimit.Key,
		}
	}
	return cr, nil
}

func (c *Compiler) compileCondition(cond resource.Condition) (match.CompiledCondition, error) {
	op, err := match.ParseOperator(cond.Operator)
	if err != nil {
		return match.CompiledCondition{}, err
	}
	if op.IsRegex() {
		if _, err := c.deps.Conditions.Compile(deref(cond.Value)); err != nil {
			return match.CompiledCondition{}, err
		}
	}

	subject, err := c.subject(cond)
	if err != nil {
		return match.CompiledCondition{}, err
	}

	return match.CompiledCondition{
		Field:    cond.Subject(),
		Subject:  subject,
		Operator: op,
		Expected: cond.Value,
	}, nil
}

func (c *Compiler) subject(cond resource.Condition) (match.Subject, error) {
	name := cond.Name
	switch cond.Source {
	case resource.SourceHeader:
		return func(_ context.Context, ex *exchange.Exchange) (*string, error) {
			return lookup(ex.Request.Header(name)), nil
		}, nil
	case resource.SourceQuery:
		return paramSubject(name, func(r *exchange.Request) map[string]string { return r.QueryParams }), nil
	case resource.SourcePath:
		return paramSubject(name, func(r *exchange.Request) map[string]string { return r.PathParams }), nil
	case resource.SourceForm:
		return paramSubject(name, func(r *exchange.Request) map[string]string { return r.FormParams }), nil
	case resource.SourceBody:
		if name == "" {
			return func(_ context.Context, ex *exchange.Exchange) (*string, error) {
				if len(ex.Request.Body) == 0 {
					return nil, nil
				}
				s := string(ex.Request.Body)
				return &s, nil
			}, nil
		}
		if c.deps.Query == nil {
			return nil, fmt.Errorf("body queries are not supported")
		}
		if err := c.deps.Query.Validate(name); err != nil {
			return nil, err
		}
		q := c.deps.Query
		return func(_ context.Context, ex *exchange.Exchange) (*string, error) {
			return q.ExtractString(ex.Request.Body, name)
		}, nil
	case resource.SourceExpression:
		if c.deps.Expressions == nil {
			return nil, fmt.Errorf("expressions are not supported")
		}
		exprs := c.deps.Expressions
		return func(ctx context.Context, ex *exchange.Exchange) (*string, error) {
			return exprs.EvalNullable(ctx, name, ex)
		}, nil
	default:
		return nil, fmt.Errorf("unknown condition source %q", cond.Source)
	}
}

func paramSubject(name string, params func(*exchange.Request) map[string]string) match.Subject {
	return func(_ context.Context, ex *exchange.Exchange) (*string, error) {
		v, ok := params(ex.Request)[name]
		return lookup(v, ok), nil
	}
}

func lookup(v string, ok bool) *string {
	if !ok {
		return nil
	}
	return &v
}

func (c *Compiler) checkCaptures(def *resource.Definition) error {
	for i, capt := range def.Captures {
		queries := []string{capt.Value.JSONPath}
		if capt.Value.XPath != "" {
			queries = append(queries, xpathQuery(capt.Value.XPath))
		}
		for _, q := range queries {
			if q == "" {
				continue
			}
			if c.deps.Query == nil {
				return fmt.Errorf("capture %d: body queries are not supported", i)
			}
			if err := c.deps.Query.Validate(q); err != nil {
				return fmt.Errorf("capture %d: %w", i, err)
			}
		}
	}
	return nil
}

func (c *Compiler) checkResponse(def *resource.Definition) error {
	resp := def.Response

	var content string
	if resp.File != "" {
		path, err := ResolveContentFile(c.deps.RootDir, def.ConfigDir, resp.File)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read response file %q: %w", resp.File, err)
		}
		content = string(data)
	} else if resp.Content != nil {
		content = *resp.Content
	}

	if resp.Engine == "" && (resp.Template == nil || !*resp.Template) {
		return nil
	}
	if c.deps.Templates == nil {
		return fmt.Errorf("template engine %q requested but no registry configured", resp.Engine)
	}
	if err := c.deps.Templates.Validate(resp.Engine, content); err != nil {
		return fmt.Errorf("failed to compile template (engine=%s): %w", resp.Engine, err)
	}
	return nil
}

func (c *Compiler) prepareScript(def *resource.Definition) error {
	if def.Script == "" {
		return nil
	}
	if c.deps.Scripts == nil {
		return fmt.Errorf("script %q declared but no script engine configured", def.Script)
	}
	ref, err := ScriptRefFor(c.deps.RootDir, def)
	if err != nil {
		return err
	}
	return c.deps.Scripts.Prepare(ref)
}

// ScriptRefFor builds the script reference of def, resolving the script
// relative to its config directory.
func ScriptRefFor(rootDir string, def *resource.Definition) (ports.ScriptRef, error) {
	path, err := ResolveContentFile(rootDir, def.ConfigDir, def.Script)
	if err != nil {
		return ports.ScriptRef{}, err
	}
	return ports.ScriptRef{Path: path, ResourceID: def.ID, ConfigDir: def.ConfigDir}, nil
}

// ResolveContentFile resolves name against configDir and rejects absolute
// paths and paths escaping rootDir. An empty rootDir confines to configDir.
func ResolveContentFile(rootDir, configDir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("absolute paths not allowed: %s", name)
	}
	root := rootDir
	if root == "" {
		root = configDir
	}
	resolved := filepath.Join(configDir, name)
	if !filesystem.Within(root, resolved) {
		return "", fmt.Errorf("path %q escapes root directory", name)
	}
	return resolved, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
