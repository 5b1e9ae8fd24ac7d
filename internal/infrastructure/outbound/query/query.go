// Package query extracts values from JSON and XML documents with JSONPath
// and XPath.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/sophialabs/mimic/internal/domain/expression"
)

var _ expression.QueryProvider = (*Provider)(nil)

// Kind is the query language of a query string.
type Kind int

const (
	JSONPath Kind = iota + 1
	XPath
)

// KindOf classifies q by its first character: '$' is JSONPath, '/' and '!'
// are XPath. It returns 0 for anything else.
func KindOf(q string) Kind {
	switch {
	case strings.HasPrefix(q, "$"):
		return JSONPath
	case strings.HasPrefix(q, "/"), strings.HasPrefix(q, "!"):
		return XPath
	default:
		return 0
	}
}

// Provider evaluates queries, caching compiled expressions. Safe for
// concurrent use.
type Provider struct {
	jsonPaths sync.Map // string -> gval.Evaluable
	xpaths    sync.Map // string -> *xpath.Expr
}

// New creates a Provider.
func New() *Provider {
	return &Provider{}
}

// Validate compiles q and reports syntax errors.
func (p *Provider) Validate(q string) error {
	switch KindOf(q) {
	case JSONPath:
		_, err := p.jsonPath(q)
		return err
	case XPath:
		_, err := p.xpath(q)
		return err
	default:
		return fmt.Errorf("query %q must start with $, / or !", q)
	}
}

// Query applies q to raw. raw may be a document (string or []byte) or an
// already decoded JSON value. A missing match yields nil without error.
func (p *Provider) Query(raw any, q string) (any, error) {
	switch KindOf(q) {
	case JSONPath:
		return p.queryJSON(raw, q)
	case XPath:
		return p.queryXML(raw, q)
	default:
		return nil, fmt.Errorf("query %q must start with $, / or !", q)
	}
}

func (p *Provider) queryJSON(raw any, q string) (any, error) {
	eval, err := p.jsonPath(q)
	if err != nil {
		return nil, err
	}

	var data any
	switch t := raw.(type) {
	case string:
		if err := json.Unmarshal([]byte(t), &data); err != nil {
			return nil, nil
		}
	case []byte:
		if err := json.Unmarshal(t, &data); err != nil {
			return nil, nil
		}
	default:
		data = t
	}

	v, err := eval(context.Background(), data)
	if err != nil {
		// Unknown keys and out-of-range indexes are absence, not failure.
		return nil, nil
	}
	return v, nil
}

func (p *Provider) queryXML(raw any, q string) (any, error) {
	expr, err := p.xpath(q)
	if err != nil {
		return nil, err
	}

	var doc *xmlquery.Node
	switch t := raw.(type) {
	case string:
		doc, err = xmlquery.Parse(strings.NewReader(t))
	case []byte:
		doc, err = xmlquery.Parse(bytes.NewReader(t))
	case *xmlquery.Node:
		doc = t
	default:
		return nil, nil
	}
	if err != nil {
		return nil, nil
	}

	switch v := expr.Evaluate(xmlquery.CreateXPathNavigator(doc)).(type) {
	case *xpath.NodeIterator:
		if !v.MoveNext() {
			return nil, nil
		}
		// Value yields inner text for elements and the value for attributes.
		return v.Current().Value(), nil
	default:
		return v, nil
	}
}

func (p *Provider) jsonPath(q string) (gval.Evaluable, error) {
	if v, ok := p.jsonPaths.Load(q); ok {
		return v.(gval.Evaluable), nil
	}
	eval, err := jsonpath.New(q)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath %q: %w", q, err)
	}
	v, _ := p.jsonPaths.LoadOrStore(q, eval)
	return v.(gval.Evaluable), nil
}

func (p *Provider) xpath(q string) (*xpath.Expr, error) {
	if v, ok := p.xpaths.Load(q); ok {
		return v.(*xpath.Expr), nil
	}
	expr, err := xpath.Compile(strings.TrimPrefix(q, "!"))
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", q, err)
	}
	v, _ := p.xpaths.LoadOrStore(q, expr)
	return v.(*xpath.Expr), nil
}

// ExtractString applies q to body and stringifies the result. An empty body
// or a missing match yields nil.
func (p *Provider) ExtractString(body []byte, q string) (*string, error) {
	if len(body) == 0 {
		return nil, nil
	}
	v, err := p.Query(body, q)
	if err != nil || v == nil {
		return nil, err
	}
	s := expression.Stringify(v)
	return &s, nil
}
