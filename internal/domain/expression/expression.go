// Package expression resolves ${...} placeholders against a registry of
// namespaced evaluators.
//
// A placeholder body has the form root[.path][:query][:-fallback]. The root
// selects the evaluator; a query starting with $ is JSONPath, one starting
// with / or ! is XPath. The fallback is used when the value is null.
package expression

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sophialabs/mimic/internal/domain/exchange"
)

// Wildcard is the namespace consulted when no evaluator matches the root.
const Wildcard = "*"

// Evaluator resolves one expression. The expression includes its root
// namespace but not the query or fallback. A nil result means null.
type Evaluator interface {
	Eval(ctx context.Context, expression string, ex *exchange.Exchange) (any, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, expression string, ex *exchange.Exchange) (any, error)

func (f EvaluatorFunc) Eval(ctx context.Context, expression string, ex *exchange.Exchange) (any, error) {
	return f(ctx, expression, ex)
}

// QueryProvider applies a JSONPath or XPath query to a raw value.
// The query keeps its marker: "$..." for JSONPath, "/..." or "!..." for XPath.
type QueryProvider interface {
	Query(raw any, query string) (any, error)
}

// Policy decides what happens to placeholders whose namespace has no evaluator.
type Policy int

const (
	// Nullify replaces the placeholder with an empty string.
	Nullify Policy = iota
	// Ignore leaves the placeholder text untouched.
	Ignore
)

func (p Policy) String() string {
	if p == Ignore {
		return "ignore"
	}
	return "nullify"
}

// ParsePolicy parses "nullify" or "ignore", ignoring case.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "nullify":
		return Nullify, nil
	case "ignore":
		return Ignore, nil
	default:
		return 0, fmt.Errorf("unknown expression policy %q", s)
	}
}

// EvaluationError reports an evaluator or query failure for one placeholder.
type EvaluationError struct {
	Expression string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("failed to evaluate expression %q: %v", e.Expression, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

var placeholderRe = regexp.MustCompile(`\$\{(.+?)\}`)

// Engine resolves expressions. It is immutable after construction and safe
// for concurrent use.
type Engine struct {
	evaluators map[string]Evaluator
	query      QueryProvider
}

// NewEngine creates an engine over a copy of evaluators. query may be nil,
// in which case inline queries are ignored.
func NewEngine(evaluators map[string]Evaluator, query QueryProvider) *Engine {
	m := make(map[string]Evaluator, len(evaluators))
	for k, v := range evaluators {
		m[k] = v
	}
	return &Engine{evaluators: m, query: query}
}

// Namespaces returns the registered namespaces.
func (e *Engine) Namespaces() []string {
	out := make([]string, 0, len(e.evaluators))
	for k := range e.evaluators {
		out = append(out, k)
	}
	return out
}

// HasPlaceholders reports whether s contains at least one placeholder.
func HasPlaceholders(s string) bool {
	return strings.Contains(s, "${") && placeholderRe.MatchString(s)
}

// Eval replaces every placeholder in input, left to right.
func (e *Engine) Eval(ctx context.Context, input string, ex *exchange.Exchange, policy Policy) (string, error) {
	if !strings.Contains(input, "${") {
		return input, nil
	}
	locs := placeholderRe.FindAllStringSubmatchIndex(input, -1)
	if len(locs) == 0 {
		return input, nil
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		b.WriteString(input[last:loc[0]])
		replace, repl, err := e.EvalSingle(ctx, input[loc[2]:loc[3]], ex, policy)
		if err != nil {
			return "", err
		}
		if replace {
			b.WriteString(repl)
		} else {
			b.WriteString(input[loc[0]:loc[1]])
		}
		last = loc[1]
	}
	b.WriteString(input[last:])
	return b.String(), nil
}

// EvalSingle resolves a single placeholder body (without ${ and }).
// replace is false only when the namespace is unsupported and policy is Ignore.
func (e *Engine) EvalSingle(ctx context.Context, body string, ex *exchange.Exchange, policy Policy) (replace bool, replacement string, err error) {
	p := parse(body)
	v, supported, err := e.resolve(ctx, p, ex)
	if err != nil {
		return false, "", err
	}
	if !supported {
		return policy == Nullify, "", nil
	}
	if v == nil {
		return true, p.fallback, nil
	}
	return true, Stringify(v), nil
}

// EvalNullable resolves input under the Nullify policy. When input is a sole
// placeholder that yields null or has no evaluator, the result is nil.
func (e *Engine) EvalNullable(ctx context.Context, input string, ex *exchange.Exchange) (*string, error) {
	loc := placeholderRe.FindStringSubmatchIndex(input)
	if loc != nil && loc[0] == 0 && loc[1] == len(input) {
		p := parse(input[loc[2]:loc[3]])
		v, supported, err := e.resolve(ctx, p, ex)
		if err != nil {
			return nil, err
		}
		if !supported {
			return nil, nil
		}
		if v == nil {
			if !p.hasFallback {
				return nil, nil
			}
			return &p.fallback, nil
		}
		s := Stringify(v)
		return &s, nil
	}

	s, err := e.Eval(ctx, input, ex, Nullify)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// EvalRaw resolves a sole placeholder to its raw value, before stringification.
// Inputs that are not a single placeholder are evaluated as text.
func (e *Engine) EvalRaw(ctx context.Context, input string, ex *exchange.Exchange) (any, error) {
	loc := placeholderRe.FindStringSubmatchIndex(input)
	if loc == nil || loc[0] != 0 || loc[1] != len(input) {
		return e.Eval(ctx, input, ex, Nullify)
	}
	p := parse(input[loc[2]:loc[3]])
	v, supported, err := e.resolve(ctx, p, ex)
	if err != nil || !supported {
		return nil, err
	}
	if v == nil && p.hasFallback {
		return p.fallback, nil
	}
	return v, nil
}

func (e *Engine) resolve(ctx context.Context, p placeholder, ex *exchange.Exchange) (any, bool, error) {
	ev, ok := e.evaluators[p.root]
	if !ok {
		ev, ok = e.evaluators[Wildcard]
	}
	if !ok {
		return nil, false, nil
	}

	v, err := ev.Eval(ctx, p.key, ex)
	if err != nil {
		return nil, true, &EvaluationError{Expression: "${" + p.raw + "}", Err: err}
	}
	if p.query != "" && e.query != nil && v != nil {
		v, err = e.query.Query(v, p.query)
		if err != nil {
			return nil, true, &EvaluationError{Expression: "${" + p.raw + "}", Err: err}
		}
	}
	return v, true, nil
}

type placeholder struct {
	raw         string
	root        string
	key         string
	query       string
	fallback    string
	hasFallback bool
}

func parse(body string) placeholder {
	p := placeholder{raw: body}

	rest := body
	if i := strings.Index(rest, ":-"); i >= 0 {
		p.fallback = rest[i+2:]
		p.hasFallback = true
		rest = rest[:i]
	}

	if i := queryIndex(rest); i >= 0 {
		p.query = rest[i+1:]
		rest = rest[:i]
	}

	p.key = rest
	p.root, _, _ = strings.Cut(rest, ".")
	return p
}

// queryIndex returns the index of the first ":$", ":/" or ":!" marker.
func queryIndex(s string) int {
	for i := 0; i+1 < len(s); i++ {
		if s[i] != ':' {
			continue
		}
		switch s[i+1] {
		case '$', '/', '!':
			return i
		}
	}
	return -1
}

// Stringify renders an evaluated value as text. Maps and slices become JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t)
	case fmt.Stringer:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
