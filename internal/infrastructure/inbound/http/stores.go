package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/sophialabs/mimic/internal/domain/store"
)

func (s *Server) handleListStores(w http.ResponseWriter, _ *http.Request) {
	names := s.stores.Names()
	slices.Sort(names)
	writeJSON(w, names)
}

func (s *Server) handleLoadStore(w http.ResponseWriter, r *http.Request) {
	st, ok := s.lookupStore(w, r)
	if !ok {
		return
	}

	var (
		items map[string]any
		err   error
	)
	if prefix := r.URL.Query().Get("keyPrefix"); prefix != "" {
		items, err = st.LoadByKeyPrefix(r.Context(), prefix)
	} else {
		items, err = st.LoadAll(r.Context())
	}
	if err != nil {
		s.storeFailure(w, "load_failed", err)
		return
	}
	writeJSON(w, items)
}

func (s *Server) handleSaveBatch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "store")

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var items map[string]any
	if err := json.Unmarshal(body, &items); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_body",
			"message": "expected a JSON object of key/value pairs: " + err.Error(),
		})
		return
	}

	st, err := s.stores.GetOrCreate(r.Context(), name, false)
	if err != nil {
		s.storeFailure(w, "save_failed", err)
		return
	}
	for k, v := range items {
		if err := st.Save(r.Context(), k, v); err != nil {
			s.storeFailure(w, "save_failed", fmt.Errorf("key %q: %w", k, err))
			return
		}
	}
	writeJSON(w, map[string]any{"status": "ok", "store": name, "saved": len(items)})
}

func (s *Server) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	if err := s.stores.Delete(r.Context(), chi.URLParam(r, "store")); err != nil {
		s.storeFailure(w, "delete_failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoadItem(w http.ResponseWriter, r *http.Request) {
	st, ok := s.lookupStore(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")

	v, err := st.Load(r.Context(), key)
	if err != nil {
		s.storeFailure(w, "load_failed", err)
		return
	}
	if v == nil {
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "key not found: " + key})
		return
	}

	if str, isString := v.(string); isString {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, str)
		return
	}
	writeJSON(w, v)
}

// handleSaveItem stores the raw body under key. A JSON body is stored decoded,
// anything else as a string.
func (s *Server) handleSaveItem(w http.ResponseWriter, r *http.Request) {
	name, key := chi.URLParam(r, "store"), chi.URLParam(r, "key")

	body, ok := readBody(w, r)
	if !ok {
		return
	}

	var value any = string(body)
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err != nil {
			writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "invalid_body", "message": err.Error()})
			return
		}
		value = decoded
	}

	st, err := s.stores.GetOrCreate(r.Context(), name, false)
	if err != nil {
		s.storeFailure(w, "save_failed", err)
		return
	}
	existed, err := st.HasItemWithKey(r.Context(), key)
	if err != nil {
		s.storeFailure(w, "save_failed", err)
		return
	}
	if err := st.Save(r.Context(), key, value); err != nil {
		s.storeFailure(w, "save_failed", err)
		return
	}

	if existed {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	st, ok := s.lookupStore(w, r)
	if !ok {
		return
	}
	if err := st.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		s.storeFailure(w, "delete_failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookupStore(w http.ResponseWriter, r *http.Request) (store.Store, bool) {
	name := chi.URLParam(r, "store")
	st, err := s.stores.Lookup(r.Context(), name)
	if errors.Is(err, store.ErrStoreNotFound) {
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "store not found: " + name})
		return nil, false
	}
	if err != nil {
		s.storeFailure(w, "load_failed", err)
		return nil, false
	}
	return st, true
}

func (s *Server) storeFailure(w http.ResponseWriter, code string, err error) {
	s.logger.Error("store operation failed", "error", err)
	writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": code, "message": err.Error()})
}
