package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/sophialabs/mimic/internal/domain/behaviour"
	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/expression"
	"github.com/sophialabs/mimic/internal/domain/store"
	"github.com/sophialabs/mimic/internal/domain/trace"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/logging"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
	"github.com/sophialabs/mimic/internal/infrastructure/services"
	"github.com/sophialabs/mimic/internal/infrastructure/usecases"
)

const maxBodySize = 10 << 20 // 10 MB

// Server is the HTTP front of the mock: admin and store routes, with every
// other request resolved against the resource index.
type Server struct {
	router      *chi.Mux
	index       atomic.Pointer[services.ResourceIndex]
	rebuildMu   sync.Mutex
	handleReqUC *usecases.HandleRequestUseCase
	loadUC      *usecases.LoadResourcesUseCase
	stores      store.Provider
	traceBuf    *trace.RingBuffer
	logger      ports.Logger
}

// NewServer creates a new Server. loadUC may be nil, which disables reloads.
func NewServer(
	handleReqUC *usecases.HandleRequestUseCase,
	loadUC *usecases.LoadResourcesUseCase,
	stores store.Provider,
	traceBuf *trace.RingBuffer,
	logger ports.Logger,
) *Server {
	s := &Server{
		handleReqUC: handleReqUC,
		loadUC:      loadUC,
		stores:      stores,
		traceBuf:    traceBuf,
		logger:      logger,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// Anything not claimed below is a mock request. Set before mounting so
	// sub-routers inherit it.
	r.NotFound(s.mockHandler)
	r.MethodNotAllowed(s.mockHandler)

	r.Route("/__admin", func(r chi.Router) {
		r.Get("/resources", s.handleListResources)
		r.Get("/resources/{resourceID}", s.handleGetResource)
		r.Get("/trace", s.handleGetTrace)
		r.Get("/trace/*", s.handleFindTrace)
		r.Delete("/trace", s.handleResetTrace)
		r.Post("/reload", s.handleReload)
	})

	r.Route("/system", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Route("/store", func(r chi.Router) {
			r.Get("/", s.handleListStores)
			r.Get("/{store}", s.handleLoadStore)
			r.Post("/{store}", s.handleSaveBatch)
			r.Delete("/{store}", s.handleDeleteStore)
			r.Get("/{store}/{key}", s.handleLoadItem)
			r.Put("/{store}/{key}", s.handleSaveItem)
			r.Delete("/{store}/{key}", s.handleDeleteItem)
		})
	})

	return r
}

// Rebuild atomically swaps the resource index. Serialized via mutex.
func (s *Server) Rebuild(idx *services.ResourceIndex) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	s.index.Store(idx)
	s.logger.Info("resource index swapped", "resources", idx.Len())
}

// Index returns the live resource index.
func (s *Server) Index() *services.ResourceIndex {
	return s.index.Load()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) mockHandler(w http.ResponseWriter, r *http.Request) {
	idx := s.index.Load()
	if idx == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}

	id := middleware.GetReqID(r.Context())
	if id == "" {
		id = uuid.NewString()
	}
	ctx := logging.ContextWithRequestID(r.Context(), id)

	ex := exchange.New(id, toRequest(r, body))
	w.Header().Set(middleware.RequestIDHeader, id)
	s.logger.Info("request received", "method", r.Method, "path", r.URL.Path, "query", r.URL.RawQuery, "remote", r.RemoteAddr)

	result := s.handleReqUC.Execute(ctx, ex, idx)

	switch {
	case result.Err != nil:
		s.writeFailure(w, result)
	case result.RateLimited:
		s.logger.Info("request rate-limited", "method", r.Method, "path", r.URL.Path, "resource", result.ResourceID)
		w.Header().Set("Retry-After", "1")
		writeJSONStatus(w, http.StatusTooManyRequests, map[string]string{
			"error":    "rate_limited",
			"message":  "Too many requests",
			"resource": result.ResourceID,
		})
	case !result.Matched:
		s.logger.Info("request unmatched", "method", r.Method, "path", r.URL.Path, "candidates", len(result.TraceEntry.Candidates))
		writeJSONStatus(w, http.StatusNotFound, buildDebugResponse(r.Method, r.URL.Path, result.TraceEntry))
	default:
		s.writeResponse(w, result.Response)
		s.logger.Info("request matched", "method", r.Method, "path", r.URL.Path, "resource", result.ResourceID, "status", result.Response.StatusCode)
	}
}

// toRequest converts r into the domain request. Multi-valued headers and
// parameters keep their first value.
func toRequest(r *http.Request, body []byte) *exchange.Request {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[http.CanonicalHeaderKey(k)] = r.Header.Get(k)
	}

	req := &exchange.Request{
		Method:      r.Method,
		Path:        r.URL.Path,
		URI:         r.URL.RequestURI(),
		Headers:     headers,
		QueryParams: firstValues(r.URL.Query()),
		Body:        body,
	}

	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mt == "application/x-www-form-urlencoded" {
		if form, err := url.ParseQuery(string(body)); err == nil {
			req.FormParams = firstValues(form)
		}
	}
	return req
}

func firstValues(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func (s *Server) writeResponse(w http.ResponseWriter, resp *services.RenderedResponse) {
	if resp.Failure == behaviour.FailureCloseConnection {
		s.closeConnection(w)
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Failure == behaviour.FailureEmptyResponse {
		return
	}
	if _, err := w.Write(resp.Body); err != nil {
		s.logger.Debug("failed to write response body", "error", err)
	}
}

// closeConnection drops the client connection without writing a response.
func (s *Server) closeConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic(http.ErrAbortHandler)
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		s.logger.Warn("failed to hijack connection", "error", err)
		panic(http.ErrAbortHandler)
	}
	_ = conn.Close()
}

func (s *Server) writeFailure(w http.ResponseWriter, result usecases.HandleRequestResult) {
	var (
		scriptErr *services.ScriptError
		evalErr   *expression.EvaluationError
	)
	resp := map[string]string{
		"resource": result.ResourceID,
		"cause":    result.Err.Error(),
	}
	switch {
	case errors.As(result.Err, &scriptErr):
		resp["error"] = "script_failed"
		resp["message"] = "Script execution failed"
	case errors.As(result.Err, &evalErr):
		resp["error"] = "evaluation_failed"
		resp["message"] = "Failed to evaluate expression " + evalErr.Expression
	default:
		resp["error"] = "render_failed"
		resp["message"] = "Failed to produce a response"
	}
	s.logger.Error("request failed", "resource", result.ResourceID, "error", result.Err)
	writeJSONStatus(w, http.StatusInternalServerError, resp)
}

func buildDebugResponse(method, path string, entry trace.Entry) map[string]any {
	resp := map[string]any{
		"error":   "no_match",
		"method":  method,
		"path":    path,
		"message": "No resource matched the request",
	}

	if len(entry.Candidates) > 0 {
		resp["candidates"] = entry.Candidates
	}
	if len(entry.Skipped) > 0 {
		resp["skipped"] = entry.Skipped
	}

	return resp
}

// readBody reads the whole request body. Bodies over maxBodySize are
// rejected with 413 rather than truncated.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err == nil {
		return body, true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSONStatus(w, http.StatusRequestEntityTooLarge, map[string]any{
			"error":   "body_too_large",
			"message": "request body exceeds the limit",
			"limit":   tooLarge.Limit,
		})
		return nil, false
	}
	http.Error(w, "failed to read request body", http.StatusBadRequest)
	return nil, false
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
