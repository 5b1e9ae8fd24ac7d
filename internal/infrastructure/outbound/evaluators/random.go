package evaluators

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/sophialabs/mimic/internal/domain/exchange"
)

var randomCallRe = regexp.MustCompile(`^random\.([A-Za-z]+)\((.*)\)$`)

// Random generates random values: random.uuid(), random.alphabetic(...),
// random.numeric(...), random.alphanumeric(...) and random.any(chars=...).
type Random struct{}

func (Random) Eval(_ context.Context, expr string, _ *exchange.Exchange) (any, error) {
	m := randomCallRe.FindStringSubmatch(expr)
	if m == nil {
		return nil, fmt.Errorf("unsupported random expression %q", expr)
	}
	fn := m[1]
	args, err := parseArgs(m[2])
	if err != nil {
		return nil, fmt.Errorf("random.%s: %w", fn, err)
	}

	if fn == "uuid" {
		return uuid.NewString(), nil
	}

	length := 1
	if v, ok := args["length"]; ok {
		length, err = strconv.Atoi(v)
		if err != nil || length < 0 {
			return nil, fmt.Errorf("random.%s: invalid length %q", fn, v)
		}
	}

	var charset []rune
	switch fn {
	case "alphabetic":
		charset = lo.LowerCaseLettersCharset
	case "numeric":
		charset = lo.NumbersCharset
	case "alphanumeric":
		charset = append(append([]rune{}, lo.LowerCaseLettersCharset...), lo.NumbersCharset...)
	case "any":
		charset = []rune(args["chars"])
		if len(charset) == 0 {
			return nil, fmt.Errorf("random.any: chars must not be empty")
		}
	default:
		return nil, fmt.Errorf("unknown random function %q", fn)
	}

	if length == 0 {
		return "", nil
	}
	out := lo.RandomString(length, charset)
	if args["uppercase"] == "true" {
		out = strings.ToUpper(out)
	}
	return out, nil
}

// parseArgs parses name=value pairs separated by commas. Values may be
// double or single quoted.
func parseArgs(s string) (map[string]string, error) {
	args := map[string]string{}
	s = strings.TrimSpace(s)
	for s != "" {
		name, rest, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("malformed argument %q", s)
		}
		name = strings.TrimSpace(name)
		rest = strings.TrimLeft(rest, " ")

		var value string
		if rest != "" && (rest[0] == '"' || rest[0] == '\'') {
			end := strings.IndexByte(rest[1:], rest[0])
			if end < 0 {
				return nil, fmt.Errorf("unterminated value for %q", name)
			}
			value, rest = rest[1:end+1], rest[end+2:]
		} else {
			value, rest, _ = strings.Cut(rest, ",")
			value = strings.TrimSpace(value)
		}
		args[name] = value

		rest = strings.TrimSpace(rest)
		rest = strings.TrimPrefix(rest, ",")
		s = strings.TrimSpace(rest)
	}
	return args, nil
}
