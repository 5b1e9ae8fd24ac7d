// Package match evaluates declarative conditions and resolves which compiled
// resources accept a request.
package match

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
)

// ErrUnknownOperator is returned by ParseOperator.
var ErrUnknownOperator = errors.New("unknown operator")

// Operator is a condition comparison operator.
type Operator int

const (
	Exists Operator = iota + 1
	NotExists
	EqualTo
	NotEqualTo
	Contains
	NotContains
	Matches
	NotMatches
)

var operatorNames = [...]string{
	Exists:      "Exists",
	NotExists:   "NotExists",
	EqualTo:     "EqualTo",
	NotEqualTo:  "NotEqualTo",
	Contains:    "Contains",
	NotContains: "NotContains",
	Matches:     "Matches",
	NotMatches:  "NotMatches",
}

func (o Operator) String() string {
	if o <= 0 || int(o) >= len(operatorNames) {
		return fmt.Sprintf("Operator(%d)", int(o))
	}
	return operatorNames[o]
}

// IsRegex reports whether the expected value is a regular expression.
func (o Operator) IsRegex() bool {
	return o == Matches || o == NotMatches
}

// ParseOperator parses an operator name, ignoring case.
func ParseOperator(s string) (Operator, error) {
	for op := Exists; op <= NotMatches; op++ {
		if strings.EqualFold(operatorNames[op], s) {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperator, s)
}

// DefaultRegexCacheSize is the number of compiled patterns kept by default.
const DefaultRegexCacheSize = 30

// ConditionMatcher evaluates (expected, operator, actual) triples.
// Compiled patterns are kept in a bounded LRU; a size of 0 compiles on every call.
type ConditionMatcher struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewConditionMatcher creates a matcher whose regex cache holds up to cacheSize patterns.
func NewConditionMatcher(cacheSize int) *ConditionMatcher {
	m := &ConditionMatcher{}
	if cacheSize > 0 {
		m.cache = lru.New(cacheSize)
	}
	return m
}

// Evaluate applies op to expected and actual. Nil means absent.
func (m *ConditionMatcher) Evaluate(expected *string, op Operator, actual *string) bool {
	switch op {
	case Exists:
		return actual != nil
	case NotExists:
		return actual == nil
	case EqualTo:
		return equal(expected, actual)
	case NotEqualTo:
		return !equal(expected, actual)
	case Contains:
		return contains(expected, actual)
	case NotContains:
		// True for a nil actual as well.
		return !contains(expected, actual)
	case Matches:
		return m.matches(expected, actual)
	case NotMatches:
		return !m.matches(expected, actual)
	default:
		return false
	}
}

func equal(expected, actual *string) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	return *expected == *actual
}

func contains(expected, actual *string) bool {
	if expected == nil || actual == nil {
		return false
	}
	return strings.Contains(*actual, *expected)
}

func (m *ConditionMatcher) matches(expected, actual *string) bool {
	re, err := m.Compile(deref(expected))
	if err != nil {
		return false
	}
	return re.MatchString(deref(actual))
}

// Compile returns the full-match regexp for pattern, using the cache when enabled.
func (m *ConditionMatcher) Compile(pattern string) (*regexp.Regexp, error) {
	if m.cache == nil {
		return compileFull(pattern)
	}

	m.mu.Lock()
	if v, ok := m.cache.Get(pattern); ok {
		m.mu.Unlock()
		return v.(*regexp.Regexp), nil
	}
	m.mu.Unlock()

	re, err := compileFull(pattern)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another goroutine may have filled the slot meanwhile; keep the first.
	if v, ok := m.cache.Get(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	m.cache.Add(pattern, re)
	return re, nil
}

// CacheLen returns the number of cached patterns.
func (m *ConditionMatcher) CacheLen() int {
	if m.cache == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}

func compileFull(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
