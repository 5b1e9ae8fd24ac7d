package resource

import (
	"fmt"
	"strings"
)

// Definition is one configured virtual endpoint. It is immutable after load.
type Definition struct {
	ID          string
	SourceFile  string
	SourceIndex int
	// ConfigDir is the directory of the source file; response files and
	// scripts are resolved relative to it.
	ConfigDir string

	Method string
	Path   string
	Regex  string

	Conditions []Condition
	Response   ResponseSpec
	Captures   []Capture

	Interceptor    bool
	ContinueToNext *bool
	Script         string

	RateLimit *RateLimit
}

// Source identifies where a condition's actual value is taken from.
type Source string

const (
	SourceHeader     Source = "header"
	SourceQuery      Source = "query"
	SourcePath       Source = "path"
	SourceForm       Source = "form"
	SourceBody       Source = "body"
	SourceExpression Source = "expression"
)

// Condition is a single declarative match rule.
// Name is the header/parameter name, the body query ("" for the whole body)
// or the expression text, depending on Source.
type Condition struct {
	Source   Source
	Name     string
	Operator string
	// Value is the expected value; nil means "no value configured".
	Value *string
}

// Subject describes the condition subject for traces and errors.
func (c Condition) Subject() string {
	if c.Name == "" {
		return string(c.Source)
	}
	return string(c.Source) + ":" + c.Name
}

// ResponseSpec is the static response configuration. Zero values mean unset.
type ResponseSpec struct {
	StatusCode  int
	Content     *string
	File        string
	Headers     map[string]string
	Template    *bool
	Engine      string
	Delay       *Delay
	FailureType string
}

// Delay configures performance simulation. ExactMs wins over the range.
type Delay struct {
	ExactMs int
	MinMs   int
	MaxMs   int
}

// Phase selects when a capture runs.
type Phase string

const (
	PhaseRequest  Phase = "request"
	PhaseResponse Phase = "response"
)

// Capture writes a key/value pair into a named store.
type Capture struct {
	Name  string
	Store string // "" = the per-request store
	Key   ValueSource
	Value ValueSource
	Phase Phase
}

// ValueSource yields a capture key or value. Exactly one field should be set.
type ValueSource struct {
	Const      *string
	Expression string
	JSONPath   string
	XPath      string
}

// IsZero reports whether no source is configured.
func (v ValueSource) IsZero() bool {
	return v.Const == nil && v.Expression == "" && v.JSONPath == "" && v.XPath == ""
}

// RateLimit configures token-bucket rate limiting.
type RateLimit struct {
	Rate  float64
	Burst int
	Key   string
}

// Validate checks structural constraints that do not need compilation.
func (d *Definition) Validate() error {
	if d.Path != "" && d.Regex != "" {
		return fmt.Errorf("resource %q: path and regex are mutually exclusive", d.ID)
	}
	for i, c := range d.Captures {
		if c.Key.IsZero() && c.Name == "" {
			return fmt.Errorf("resource %q: capture %d has no key", d.ID, i)
		}
		if c.Value.IsZero() {
			return fmt.Errorf("resource %q: capture %d has no value source", d.ID, i)
		}
		if c.Key.JSONPath != "" || c.Key.XPath != "" {
			return fmt.Errorf("resource %q: capture %d key must be a constant or expression", d.ID, i)
		}
		switch c.Phase {
		case "", PhaseRequest, PhaseResponse:
		default:
			return fmt.Errorf("resource %q: capture %d has unknown phase %q", d.ID, i, c.Phase)
		}
	}
	switch strings.ToLower(d.Response.FailureType) {
	case "", "emptyresponse", "closeconnection":
	default:
		return fmt.Errorf("resource %q: unknown failure type %q", d.ID, d.Response.FailureType)
	}
	return nil
}
