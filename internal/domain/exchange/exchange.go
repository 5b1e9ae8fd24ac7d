// Package exchange models one HTTP interaction in domain terms, free of net/http.
package exchange

import (
	"net/textproto"
	"sync"

	"github.com/google/uuid"
)

// Request is an inbound HTTP request. Header keys are canonical MIME keys.
type Request struct {
	Method      string
	Path        string
	URI         string
	Headers     map[string]string
	QueryParams map[string]string
	PathParams  map[string]string
	FormParams  map[string]string
	Body        []byte
}

// Header returns the named header, matching case-insensitively.
func (r *Request) Header(name string) (string, bool) {
	v, ok := r.Headers[textproto.CanonicalMIMEHeaderKey(name)]
	return v, ok
}

// Response is the rendered response, present once rendering finished.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Header returns the named response header, matching case-insensitively.
func (r *Response) Header(name string) (string, bool) {
	v, ok := r.Headers[textproto.CanonicalMIMEHeaderKey(name)]
	return v, ok
}

// Exchange pairs a request with its response and a small attribute bag.
// An Exchange belongs to a single request and is not shared between requests,
// but the attribute bag may be touched from helper goroutines.
//
// ID is the correlation id and may come from the client. The per-request
// store is keyed by an id generated here instead.
type Exchange struct {
	ID       string
	Request  *Request
	Response *Response

	storeKey string

	mu    sync.RWMutex
	attrs map[string]any
}

// New creates an exchange for req.
func New(id string, req *Request) *Exchange {
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	if req.QueryParams == nil {
		req.QueryParams = map[string]string{}
	}
	if req.PathParams == nil {
		req.PathParams = map[string]string{}
	}
	if req.FormParams == nil {
		req.FormParams = map[string]string{}
	}
	return &Exchange{ID: id, Request: req, storeKey: uuid.NewString(), attrs: make(map[string]any)}
}

// Set stores a request-scoped attribute.
func (e *Exchange) Set(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[key] = value
}

// Get returns a request-scoped attribute.
func (e *Exchange) Get(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.attrs[key]
	return v, ok
}

// RequestStoreName is the name of the per-request store. It is unique to this
// exchange even when two requests carry the same ID.
func (e *Exchange) RequestStoreName() string {
	return "request-" + e.storeKey
}
