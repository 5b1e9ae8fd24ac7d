package match

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/trace"
)

// Candidate is a resource that accepted the request, with its path parameters.
type Candidate struct {
	Resource   *CompiledResource
	PathParams map[string]string
}

// ResolveResult holds the ordered candidates and a trace of every resource
// whose method and route matched.
type ResolveResult struct {
	Matched    []Candidate
	Candidates []trace.CandidateResult
}

// Resolver filters and orders compiled resources for a request.
// It holds no per-request state and may be shared.
type Resolver struct {
	conditions *ConditionMatcher
}

// NewResolver creates a Resolver evaluating conditions with m.
func NewResolver(m *ConditionMatcher) *Resolver {
	return &Resolver{conditions: m}
}

// Resolve returns every resource accepting ex, most specific route first and
// declaration order among equals. ex.Request.PathParams is left bound to the
// last evaluated resource; callers rebind per candidate.
func (r *Resolver) Resolve(ctx context.Context, ex *exchange.Exchange, resources []*CompiledResource) (ResolveResult, error) {
	var result ResolveResult

	for _, res := range resources {
		if res.Method != "" && !strings.EqualFold(res.Method, ex.Request.Method) {
			continue
		}
		params := res.Route.ExtractParams(ex.Request.Path)
		if params == nil {
			continue
		}

		ex.Request.PathParams = maps.Clone(params)

		cr := trace.CandidateResult{ResourceID: res.ID, Matched: true}
		if res.Definition != nil {
			cr.Source = res.Definition.SourceFile
		}

		for _, cond := range res.Conditions {
			actual, err := cond.Subject(ctx, ex)
			if err != nil {
				return result, fmt.Errorf("resource %q condition %s: %w", res.ID, cond.Field, err)
			}
			if !r.conditions.Evaluate(cond.Expected, cond.Operator, actual) {
				cr.Matched = false
				cr.FailedField = cond.Field
				cr.FailedReason = failureReason(cond, actual)
				break
			}
		}

		result.Candidates = append(result.Candidates, cr)
		if cr.Matched {
			result.Matched = append(result.Matched, Candidate{Resource: res, PathParams: params})
		}
	}

	sort.SliceStable(result.Matched, func(i, j int) bool {
		a, b := result.Matched[i].Resource, result.Matched[j].Resource
		if sa, sb := a.Route.Specificity(), b.Route.Specificity(); sa != sb {
			return sa > sb
		}
		return a.Index < b.Index
	})

	return result, nil
}

func failureReason(cond CompiledCondition, actual *string) string {
	got := "<absent>"
	if actual != nil {
		got = *actual
	}
	if cond.Expected == nil {
		return fmt.Sprintf("%s failed for %q", cond.Operator, got)
	}
	return fmt.Sprintf("%s %q failed for %q", cond.Operator, *cond.Expected, got)
}
