// Package evaluators provides the built-in expression namespaces.
package evaluators

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/expression"
)

var _ expression.Evaluator = Context{}

// Context resolves context.request.* and context.response.* against the exchange.
type Context struct{}

func (Context) Eval(_ context.Context, expr string, ex *exchange.Exchange) (any, error) {
	parts := strings.SplitN(expr, ".", 4)
	if len(parts) < 3 {
		return nil, fmt.Errorf("unsupported context expression %q", expr)
	}

	switch parts[1] {
	case "request":
		return requestValue(ex, parts[2:])
	case "response":
		return responseValue(ex, parts[2:])
	default:
		return nil, fmt.Errorf("unsupported context expression %q", expr)
	}
}

func requestValue(ex *exchange.Exchange, parts []string) (any, error) {
	req := ex.Request
	field := parts[0]
	name, hasName := "", len(parts) > 1
	if hasName {
		name = parts[1]
	}

	switch field {
	case "method":
		return req.Method, nil
	case "path":
		return req.Path, nil
	case "uri":
		return req.URI, nil
	case "id":
		return ex.ID, nil
	case "body":
		if len(req.Body) == 0 {
			return nil, nil
		}
		return string(req.Body), nil
	case "headers":
		if !hasName {
			return maps.Clone(req.Headers), nil
		}
		if v, ok := req.Header(name); ok {
			return v, nil
		}
		return nil, nil
	case "queryParams":
		return param(req.QueryParams, name, hasName), nil
	case "pathParams":
		return param(req.PathParams, name, hasName), nil
	case "formParams":
		return param(req.FormParams, name, hasName), nil
	default:
		return nil, fmt.Errorf("unknown request property %q", field)
	}
}

func responseValue(ex *exchange.Exchange, parts []string) (any, error) {
	resp := ex.Response
	if resp == nil {
		return nil, nil
	}

	switch parts[0] {
	case "statusCode":
		return resp.StatusCode, nil
	case "body":
		if len(resp.Body) == 0 {
			return nil, nil
		}
		return string(resp.Body), nil
	case "headers":
		if len(parts) == 1 {
			return maps.Clone(resp.Headers), nil
		}
		if v, ok := resp.Header(parts[1]); ok {
			return v, nil
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown response property %q", parts[0])
	}
}

func param(m map[string]string, name string, hasName bool) any {
	if !hasName {
		return maps.Clone(m)
	}
	if v, ok := m[name]; ok {
		return v
	}
	return nil
}
