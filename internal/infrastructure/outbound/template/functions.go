package template

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/expression"
)

func seqInts(start, end int) []int {
	if end < start {
		return nil
	}
	s := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		s = append(s, i)
	}
	return s
}

func randomInt(min, max int) int {
	if min >= max {
		return min
	}
	return min + rand.IntN(max-min+1)
}

func toJSONString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func headerFunc(req *exchange.Request) func(string) string {
	return func(name string) string {
		v, _ := req.Header(name)
		return v
	}
}

func paramFunc(m map[string]string) func(string) string {
	return func(name string) string { return m[name] }
}

// queryFunc applies a JSONPath or XPath query to body. Misses and errors
// render as an empty string.
func queryFunc(q expression.QueryProvider, body []byte) func(string) string {
	return func(query string) string {
		if q == nil || len(body) == 0 {
			return ""
		}
		v, err := q.Query(body, query)
		if err != nil || v == nil {
			return ""
		}
		return expression.Stringify(v)
	}
}
