package template

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/google/uuid"

	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/expression"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

var _ ports.TemplateEngine = (*Jinja2Engine)(nil)

// Jinja2Engine renders Django/Jinja2-style templates with Pongo2. Parsed
// templates are cached by content.
type Jinja2Engine struct {
	exprs *expression.Engine
	query expression.QueryProvider
	clock ports.Clock

	cache sync.Map // string -> *pongo2.Template
}

// NewJinja2Engine creates the jinja2 engine. exprs backs the expr() helper
// and query the jsonPath() and xPath() helpers.
func NewJinja2Engine(exprs *expression.Engine, query expression.QueryProvider, clock ports.Clock) *Jinja2Engine {
	return &Jinja2Engine{exprs: exprs, query: query, clock: clock}
}

func (j *Jinja2Engine) Name() string { return "jinja2" }

// Validate parses content.
func (j *Jinja2Engine) Validate(content string) error {
	_, err := j.compile(content)
	return err
}

func (j *Jinja2Engine) compile(content string) (*pongo2.Template, error) {
	if v, ok := j.cache.Load(content); ok {
		return v.(*pongo2.Template), nil
	}
	// Responses are rarely HTML; output is written verbatim.
	tpl, err := pongo2.FromString("{% autoescape off %}" + content + "{% endautoescape %}")
	if err != nil {
		return nil, fmt.Errorf("failed to compile jinja2 template: %w", err)
	}
	v, _ := j.cache.LoadOrStore(content, tpl)
	return v.(*pongo2.Template), nil
}

func (j *Jinja2Engine) Render(ctx context.Context, content string, ex *exchange.Exchange) (string, error) {
	tpl, err := j.compile(content)
	if err != nil {
		return "", err
	}

	req := ex.Request
	now := j.clock.Now()
	pctx := pongo2.Context{
		"method":      req.Method,
		"path":        req.Path,
		"uri":         req.URI,
		"requestId":   ex.ID,
		"headers":     req.Headers,
		"queryParams": req.QueryParams,
		"pathParams":  req.PathParams,
		"formParams":  req.FormParams,
		"body":        string(req.Body),
		"now":         now.Format(time.RFC3339),

		"header":     headerFunc(req),
		"pathParam":  paramFunc(req.PathParams),
		"queryParam": paramFunc(req.QueryParams),
		"formParam":  paramFunc(req.FormParams),
		"uuid":       uuid.NewString,
		"randomInt":  randomInt,
		"seq":        seqInts,
		"toJSON":     toJSONString,
		"jsonPath":   queryFunc(j.query, req.Body),
		"xPath":      queryFunc(j.query, req.Body),
		"nowFormat":  now.Format,
		"expr": func(input string) (string, error) {
			return j.exprs.Eval(ctx, input, ex, expression.Nullify)
		},
	}

	out, err := tpl.Execute(pctx)
	if err != nil {
		return "", fmt.Errorf("jinja2 template render failed: %w", err)
	}
	return out, nil
}
