package http

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sophialabs/mimic/internal/domain/match"
)

const defaultTraceCount = 10

func resourceSummary(cr *match.CompiledResource) map[string]any {
	def := cr.Definition
	summary := map[string]any{
		"id":          cr.ID,
		"index":       cr.Index,
		"method":      cr.Method,
		"source_file": filepath.Base(def.SourceFile),
		"interceptor": def.Interceptor,
	}
	if cr.Route != nil {
		summary["route"] = cr.Route.Pattern()
		summary["route_kind"] = cr.Route.Kind().String()
	}
	if def.Script != "" {
		summary["script"] = def.Script
	}
	if cr.RateLimit != nil {
		summary["rate_limit"] = map[string]any{
			"rate":  cr.RateLimit.Rate,
			"burst": cr.RateLimit.Burst,
			"key":   cr.RateLimit.Key,
		}
	}
	return summary
}

func (s *Server) handleListResources(w http.ResponseWriter, _ *http.Request) {
	all := s.index.Load().All()
	resources := make([]map[string]any, 0, len(all))
	for _, cr := range all {
		resources = append(resources, resourceSummary(cr))
	}
	writeJSON(w, resources)
}

func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "resourceID")
	cr, ok := s.index.Load().Lookup(id)
	if !ok {
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "resource not found: " + id})
		return
	}

	summary := resourceSummary(cr)
	conds := make([]map[string]any, 0, len(cr.Conditions))
	for _, c := range cr.Conditions {
		cond := map[string]any{"field": c.Field, "operator": c.Operator.String()}
		if c.Expected != nil {
			cond["value"] = *c.Expected
		}
		conds = append(conds, cond)
	}
	summary["conditions"] = conds
	summary["captures"] = len(cr.Definition.Captures)
	writeJSON(w, summary)
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	n := defaultTraceCount
	q := r.URL.Query()
	param := q.Get("last")
	if param == "" {
		param = q.Get("n")
	}
	if param != "" {
		if parsed, err := strconv.Atoi(param); err == nil && parsed > 0 {
			n = parsed
		}
	}

	entries := s.traceBuf.Last(n)
	if entries == nil {
		writeJSON(w, []any{})
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handleFindTrace(w http.ResponseWriter, r *http.Request) {
	// Request ids generated by the RequestID middleware contain a slash.
	id := chi.URLParam(r, "*")
	entry, ok := s.traceBuf.Find(id)
	if !ok {
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "no trace for request " + id})
		return
	}
	writeJSON(w, entry)
}

func (s *Server) handleResetTrace(w http.ResponseWriter, _ *http.Request) {
	s.traceBuf.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.loadUC == nil {
		http.Error(w, "reload not configured", http.StatusNotImplemented)
		return
	}

	idx, err := s.loadUC.Execute(r.Context())
	if err != nil {
		s.logger.Error("reload failed", "error", err)
		writeJSONStatus(w, http.StatusInternalServerError, map[string]string{
			"error":   "reload_failed",
			"message": err.Error(),
		})
		return
	}

	s.Rebuild(idx)
	writeJSON(w, map[string]any{
		"status":    "ok",
		"message":   "resources reloaded",
		"resources": idx.Len(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	idx := s.index.Load()
	status := "ok"
	if idx == nil {
		status = "starting"
	}
	writeJSON(w, map[string]any{
		"status":    status,
		"resources": idx.Len(),
		"routes":    idx.Summary(),
		"stores":    len(s.stores.Names()),
		"traces":    s.traceBuf.Count(),
	})
}
