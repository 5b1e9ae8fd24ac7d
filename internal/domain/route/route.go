// Package route compiles resource path patterns into matchers.
//
// Two pattern kinds are supported: literal paths with named placeholders
// (":id" or "{id}" segments) and raw regular expressions matched against the
// full request path. A pattern with neither is a catch-all.
package route

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies how a Matcher compares paths.
type Kind int

const (
	CatchAll Kind = iota
	Regex
	Placeholder
	Exact
)

func (k Kind) String() string {
	switch k {
	case Exact:
		return "exact"
	case Placeholder:
		return "placeholder"
	case Regex:
		return "regex"
	default:
		return "catch-all"
	}
}

// ErrInvalidPattern is returned for patterns that cannot be compiled.
var ErrInvalidPattern = errors.New("invalid route pattern")

var placeholderName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Matcher tests request paths against one compiled pattern.
// It is immutable and safe for concurrent use.
type Matcher struct {
	kind    Kind
	pattern string
	re      *regexp.Regexp
	names   []string
}

// Compile builds a Matcher from a literal path and/or a raw regex.
// Setting both is an error.
func Compile(path, regex string) (*Matcher, error) {
	switch {
	case path != "" && regex != "":
		return nil, fmt.Errorf("%w: both path %q and regex %q set", ErrInvalidPattern, path, regex)
	case regex != "":
		re, err := regexp.Compile(`^(?:` + regex + `)$`)
		if err != nil {
			return nil, fmt.Errorf("%w: regex %q: %v", ErrInvalidPattern, regex, err)
		}
		return &Matcher{kind: Regex, pattern: regex, re: re}, nil
	case path != "":
		return compilePath(path)
	default:
		return &Matcher{kind: CatchAll}, nil
	}
}

func compilePath(path string) (*Matcher, error) {
	segments := strings.Split(path, "/")
	var (
		buf   strings.Builder
		names []string
		seen  = make(map[string]bool)
	)
	buf.WriteString("^")
	for i, seg := range segments {
		if i > 0 {
			buf.WriteString("/")
		}
		name, ok, err := placeholderSegment(seg)
		if err != nil {
			return nil, fmt.Errorf("%w: path %q: %v", ErrInvalidPattern, path, err)
		}
		if !ok {
			buf.WriteString(regexp.QuoteMeta(seg))
			continue
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: path %q: duplicate placeholder %q", ErrInvalidPattern, path, name)
		}
		seen[name] = true
		names = append(names, name)
		buf.WriteString(`([^/]+)`)
	}
	buf.WriteString("$")

	if len(names) == 0 {
		return &Matcher{kind: Exact, pattern: path}, nil
	}
	return &Matcher{
		kind:    Placeholder,
		pattern: path,
		re:      regexp.MustCompile(buf.String()),
		names:   names,
	}, nil
}

// placeholderSegment reports whether seg is a ":name" or "{name}" segment.
func placeholderSegment(seg string) (string, bool, error) {
	var name string
	switch {
	case strings.HasPrefix(seg, ":"):
		name = seg[1:]
	case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
		name = seg[1 : len(seg)-1]
	default:
		return "", false, nil
	}
	if !placeholderName.MatchString(name) {
		return "", false, fmt.Errorf("malformed placeholder %q", seg)
	}
	return name, true, nil
}

// Kind returns the pattern kind.
func (m *Matcher) Kind() Kind { return m.kind }

// Pattern returns the configured path or regex ("" for catch-all).
func (m *Matcher) Pattern() string { return m.pattern }

// Specificity ranks matchers: exact > placeholder > regex > catch-all.
func (m *Matcher) Specificity() int { return int(m.kind) }

// Names returns the placeholder names in declaration order.
func (m *Matcher) Names() []string { return m.names }

// Matches reports whether path matches the pattern in full.
func (m *Matcher) Matches(path string) bool {
	switch m.kind {
	case Exact:
		return path == m.pattern
	case CatchAll:
		return true
	default:
		return m.re.MatchString(path)
	}
}

// ExtractParams returns the placeholder values for path, or nil if path
// does not match. Regex patterns contribute their named groups.
func (m *Matcher) ExtractParams(path string) map[string]string {
	switch m.kind {
	case Exact:
		if path != m.pattern {
			return nil
		}
		return map[string]string{}
	case CatchAll:
		return map[string]string{}
	}

	sub := m.re.FindStringSubmatch(path)
	if sub == nil {
		return nil
	}
	params := make(map[string]string)
	if m.kind == Placeholder {
		for i, name := range m.names {
			params[name] = sub[i+1]
		}
		return params
	}
	for i, name := range m.re.SubexpNames() {
		if i > 0 && name != "" {
			params[name] = sub[i]
		}
	}
	return params
}

// ToBracketSyntax rewrites ":name" segments as "{name}".
func ToBracketSyntax(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") && placeholderName.MatchString(seg[1:]) {
			segments[i] = "{" + seg[1:] + "}"
		}
	}
	return strings.Join(segments, "/")
}

// ToColonSyntax rewrites "{name}" segments as ":name".
func ToColonSyntax(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") && placeholderName.MatchString(seg[1:len(seg)-1]) {
			segments[i] = ":" + seg[1:len(seg)-1]
		}
	}
	return strings.Join(segments, "/")
}
