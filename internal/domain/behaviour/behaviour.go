// Package behaviour models the per-request response behaviour accumulated
// from script output and static resource configuration.
package behaviour

import (
	"fmt"
	"strings"

	"github.com/sophialabs/mimic/internal/domain/resource"
)

// Type decides how a resolved behaviour is rendered.
type Type int

const (
	Unresolved Type = iota
	// Default renders using the resource's response configuration.
	Default
	// ShortCircuit renders exactly what the script supplied.
	ShortCircuit
	// Skip produces no response; resolution moves to the next candidate.
	Skip
)

func (t Type) String() string {
	switch t {
	case Default:
		return "Default"
	case ShortCircuit:
		return "ShortCircuit"
	case Skip:
		return "Skip"
	default:
		return "Unresolved"
	}
}

// ContentKind says where response content comes from.
type ContentKind int

const (
	ContentNone ContentKind = iota
	ContentInline
	ContentFile
)

// ContentSource is a response body source. Value is the inline text or file path.
type ContentSource struct {
	Kind  ContentKind
	Value string
}

// IsSet reports whether a content source was chosen.
func (c ContentSource) IsSet() bool { return c.Kind != ContentNone }

// PerformanceDelay simulates latency. ExactMs wins when positive.
type PerformanceDelay struct {
	ExactMs int
	MinMs   int
	MaxMs   int
}

// FailureType simulates a transport failure.
type FailureType string

const (
	FailureNone            FailureType = ""
	FailureEmptyResponse   FailureType = "EmptyResponse"
	FailureCloseConnection FailureType = "CloseConnection"
)

// ParseFailureType parses a failure type name, ignoring case.
func ParseFailureType(s string) (FailureType, error) {
	switch strings.ToLower(s) {
	case "":
		return FailureNone, nil
	case "emptyresponse":
		return FailureEmptyResponse, nil
	case "closeconnection":
		return FailureCloseConnection, nil
	default:
		return FailureNone, fmt.Errorf("unknown failure type %q", s)
	}
}

// Behaviour is a mutable accumulator created fresh for every candidate.
// Zero values mean unset.
type Behaviour struct {
	Type       Type
	StatusCode int
	Content    ContentSource
	Headers    map[string]string
	Template   *bool
	Engine     string
	Delay      *PerformanceDelay
	Failure    FailureType
}

// DefaultsSource carries the static configuration merged into a behaviour.
type DefaultsSource struct {
	ContinueToNext *bool
	Interceptor    bool
	Response       resource.ResponseSpec
}

// SourceFor builds the defaults source of a resource definition.
func SourceFor(def *resource.Definition) DefaultsSource {
	return DefaultsSource{
		ContinueToNext: def.ContinueToNext,
		Interceptor:    def.Interceptor,
		Response:       def.Response,
	}
}

// ApplyDefaults fills every field of b still unset from src. Fields set by a
// script are never overwritten, and a ShortCircuit or Skip type is kept.
// A ShortCircuit behaviour only receives the status code default.
func ApplyDefaults(b *Behaviour, src DefaultsSource, defaultStatus int) {
	if b.Type == Unresolved {
		switch {
		case src.ContinueToNext != nil && *src.ContinueToNext:
			b.Type = Default
		case src.ContinueToNext != nil:
			b.Type = Skip
		case src.Interceptor:
			b.Type = Skip
		default:
			b.Type = Default
		}
	}

	resp := src.Response
	if b.StatusCode == 0 {
		b.StatusCode = resp.StatusCode
		if b.StatusCode == 0 {
			b.StatusCode = defaultStatus
		}
	}
	if b.Type == ShortCircuit {
		return
	}

	if !b.Content.IsSet() {
		switch {
		case resp.File != "":
			b.Content = ContentSource{Kind: ContentFile, Value: resp.File}
		case resp.Content != nil:
			b.Content = ContentSource{Kind: ContentInline, Value: *resp.Content}
		}
	}
	if b.Template == nil && resp.Template != nil {
		t := *resp.Template
		b.Template = &t
	}
	if b.Engine == "" {
		b.Engine = resp.Engine
	}
	if b.Delay == nil && resp.Delay != nil {
		b.Delay = &PerformanceDelay{ExactMs: resp.Delay.ExactMs, MinMs: resp.Delay.MinMs, MaxMs: resp.Delay.MaxMs}
	}
	if b.Failure == FailureNone && resp.FailureType != "" {
		// Validated at load time.
		b.Failure, _ = ParseFailureType(resp.FailureType)
	}
	if len(resp.Headers) > 0 {
		if b.Headers == nil {
			b.Headers = make(map[string]string, len(resp.Headers))
		}
		set := make(map[string]bool, len(b.Headers))
		for k := range b.Headers {
			set[strings.ToLower(k)] = true
		}
		for k, v := range resp.Headers {
			if !set[strings.ToLower(k)] {
				b.Headers[k] = v
			}
		}
	}
}

// IsTemplate reports whether content should be templated.
func (b *Behaviour) IsTemplate() bool {
	return b.Template != nil && *b.Template
}
