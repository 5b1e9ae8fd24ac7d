package usecases

import (
	"context"
	"strings"

	"github.com/sophialabs/mimic/internal/domain/behaviour"
	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/match"
	"github.com/sophialabs/mimic/internal/domain/resource"
	"github.com/sophialabs/mimic/internal/domain/store"
	"github.com/sophialabs/mimic/internal/domain/trace"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
	"github.com/sophialabs/mimic/internal/infrastructure/services"
)

// HandleRequestResult is the outcome of processing a mock request.
// Exactly one of Response, RateLimited or Err is set when Matched is true.
type HandleRequestResult struct {
	Matched     bool
	ResourceID  string
	Response    *services.RenderedResponse
	RateLimited bool
	Err         error
	TraceEntry  trace.Entry
}

// HandleRequestDeps are the collaborators of HandleRequestUseCase.
type HandleRequestDeps struct {
	Resolver    *match.Resolver
	Behaviours  *services.BehaviourResolver
	Captures    *services.CaptureService
	Renderer    *services.ResponseRenderer
	Stores      store.Provider
	Clock       ports.Clock
	RateLimiter ports.RateLimiter
	Logger      ports.Logger
	Trace       *trace.RingBuffer
}

// HandleRequestUseCase processes incoming mock requests.
type HandleRequestUseCase struct {
	deps HandleRequestDeps
}

// NewHandleRequestUseCase creates a new use case.
func NewHandleRequestUseCase(deps HandleRequestDeps) *HandleRequestUseCase {
	return &HandleRequestUseCase{deps: deps}
}

// Execute resolves ex against the index and renders the first candidate that
// does not skip. The request store of ex is dropped before returning.
func (uc *HandleRequestUseCase) Execute(ctx context.Context, ex *exchange.Exchange, index *services.ResourceIndex) (result HandleRequestResult) {
	entry := trace.Entry{
		Timestamp: uc.deps.Clock.Now(),
		RequestID: ex.ID,
		Method:    ex.Request.Method,
		Path:      ex.Request.Path,
	}
	defer func() {
		if result.Err != nil {
			entry.Error = result.Err.Error()
		}
		result.TraceEntry = entry
		uc.deps.Trace.Add(entry)
		if err := uc.deps.Stores.Delete(context.WithoutCancel(ctx), ex.RequestStoreName()); err != nil {
			uc.deps.Logger.Warn("failed to drop request store", "store", ex.RequestStoreName(), "error", err)
		}
	}()

	resolved, err := uc.deps.Resolver.Resolve(ctx, ex, index.All())
	entry.Candidates = resolved.Candidates
	if err != nil {
		uc.deps.Logger.Error("failed to resolve resources", "path", ex.Request.Path, "error", err)
		result.Err = err
		return result
	}

	for _, cand := range resolved.Matched {
		res := cand.Resource
		ex.Request.PathParams = cand.PathParams
		result.Matched = true
		result.ResourceID = res.ID

		if res.RateLimit != nil {
			key := rateLimitKey(res, ex)
			if !uc.deps.RateLimiter.Allow(ctx, key, res.RateLimit.Rate, res.RateLimit.Burst) {
				uc.deps.Logger.Debug("rate limited", "resource", res.ID, "key", key)
				entry.MatchedID = res.ID
				entry.RateLimited = true
				result.RateLimited = true
				return result
			}
		}

		b, err := uc.deps.Behaviours.Resolve(ctx, res, ex)
		if err != nil {
			uc.deps.Logger.Error("failed to resolve behaviour", "resource", res.ID, "error", err)
			entry.MatchedID = res.ID
			result.Err = err
			return result
		}

		if _, err := uc.deps.Captures.Capture(ctx, res.Definition.Captures, ex, resource.PhaseRequest); err != nil {
			entry.MatchedID = res.ID
			result.Err = err
			return result
		}

		if b.Type == behaviour.Skip {
			uc.deps.Logger.Debug("resource skipped", "resource", res.ID)
			entry.Skipped = append(entry.Skipped, res.ID)
			continue
		}

		resp, err := uc.deps.Renderer.Render(ctx, b, ex, res.Definition.ConfigDir)
		if err != nil {
			uc.deps.Logger.Error("failed to render response", "resource", res.ID, "error", err)
			entry.MatchedID = res.ID
			result.Err = err
			return result
		}
		ex.Response = resp.Exchange()

		// The response is already decided; response captures only log.
		_, _ = uc.deps.Captures.Capture(ctx, res.Definition.Captures, ex, resource.PhaseResponse)

		entry.MatchedID = res.ID
		entry.Status = resp.StatusCode
		result.Response = resp
		return result
	}

	uc.deps.Logger.Debug("no match found", "method", ex.Request.Method, "path", ex.Request.Path)
	result.Matched = false
	result.ResourceID = ""
	return result
}

// rateLimitKey scopes the bucket to the resource. A key of the form
// "header:<name>" or "query:<name>" further splits it by that request value.
func rateLimitKey(res *match.CompiledResource, ex *exchange.Exchange) string {
	key := res.RateLimit.Key
	source, name, ok := strings.Cut(key, ":")
	if !ok {
		if key == "" {
			return res.ID
		}
		return key
	}

	var v string
	switch strings.ToLower(source) {
	case "header":
		v, _ = ex.Request.Header(name)
	case "query":
		v = ex.Request.QueryParams[name]
	default:
		return key
	}
	return res.ID + ":" + name + "=" + v
}
