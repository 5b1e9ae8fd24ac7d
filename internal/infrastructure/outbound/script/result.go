package script

import (
	"fmt"
	"math"

	"github.com/sophialabs/mimic/internal/domain/behaviour"
	"github.com/sophialabs/mimic/internal/domain/expression"
)

// toBehaviour converts a script result into a partial behaviour. A nil
// result means the script expressed no opinion.
func toBehaviour(out any) (*behaviour.Behaviour, error) {
	if out == nil {
		return nil, nil
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("script must return a map or nil, got %T", out)
	}

	b := &behaviour.Behaviour{}
	for k, v := range m {
		var err error
		switch k {
		case "status":
			b.StatusCode, err = toInt(v)
		case "content":
			b.Content = behaviour.ContentSource{Kind: behaviour.ContentInline, Value: expression.Stringify(v)}
		case "headers":
			b.Headers, err = toHeaders(v)
		case "template":
			var t bool
			t, err = toBool(v)
			b.Template = &t
		case "engine":
			b.Engine = expression.Stringify(v)
		case "delay":
			b.Delay, err = toDelay(v)
		case "failure":
			b.Failure, err = behaviour.ParseFailureType(expression.Stringify(v))
		case "file", "skip", "shortCircuit", "continue":
			// Handled after the loop.
		default:
			err = fmt.Errorf("unknown result key")
		}
		if err != nil {
			return nil, fmt.Errorf("script result %q: %w", k, err)
		}
	}

	// A file wins over inline content, as in resource configuration.
	if v, ok := m["file"]; ok && v != nil {
		b.Content = behaviour.ContentSource{Kind: behaviour.ContentFile, Value: expression.Stringify(v)}
	}

	var flags []string
	for _, name := range []string{"skip", "shortCircuit", "continue"} {
		v, ok := m[name]
		if !ok {
			continue
		}
		set, err := toBool(v)
		if err != nil {
			return nil, fmt.Errorf("script result %q: %w", name, err)
		}
		switch {
		case name == "continue" && !set:
			b.Type = behaviour.Skip
		case !set:
			continue
		case name == "skip":
			b.Type = behaviour.Skip
		case name == "shortCircuit":
			b.Type = behaviour.ShortCircuit
		default:
			b.Type = behaviour.Default
		}
		flags = append(flags, name)
	}
	if len(flags) > 1 {
		return nil, fmt.Errorf("script result sets conflicting flags %v", flags)
	}
	return b, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func toBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected a bool, got %T", v)
	}
	return b, nil
}

func toHeaders(v any) (map[string]string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a map, got %T", v)
	}
	out := make(map[string]string, len(m))
	for k, hv := range m {
		out[k] = expression.Stringify(hv)
	}
	return out, nil
}

// toDelay accepts a number of milliseconds or a map with exactMs, minMs
// and maxMs.
func toDelay(v any) (*behaviour.PerformanceDelay, error) {
	if m, ok := v.(map[string]any); ok {
		d := &behaviour.PerformanceDelay{}
		for k, dst := range map[string]*int{"exactMs": &d.ExactMs, "minMs": &d.MinMs, "maxMs": &d.MaxMs} {
			raw, ok := m[k]
			if !ok {
				continue
			}
			n, err := toInt(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			*dst = n
		}
		return d, nil
	}
	n, err := toInt(v)
	if err != nil {
		return nil, err
	}
	return &behaviour.PerformanceDelay{ExactMs: n}, nil
}
