package services

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sophialabs/mimic/internal/domain/behaviour"
	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

// TemplateRenderer renders content with a named template engine.
type TemplateRenderer interface {
	Render(ctx context.Context, engine, content string, ex *exchange.Exchange) (string, error)
}

// RenderedResponse is a response ready to be written. Failure, when set,
// replaces normal writing at the transport.
type RenderedResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Failure    behaviour.FailureType
	Delay      time.Duration
}

// Exchange converts r into the exchange response representation.
func (r *RenderedResponse) Exchange() *exchange.Response {
	return &exchange.Response{StatusCode: r.StatusCode, Headers: r.Headers, Body: r.Body}
}

// ResponseRenderer turns a resolved behaviour into a response.
type ResponseRenderer struct {
	templates TemplateRenderer
	clock     ports.Clock
	rootDir   string
}

// NewResponseRenderer creates a ResponseRenderer. Response files must stay
// within rootDir.
func NewResponseRenderer(templates TemplateRenderer, clk ports.Clock, rootDir string) *ResponseRenderer {
	return &ResponseRenderer{templates: templates, clock: clk, rootDir: rootDir}
}

// Render loads and templates the content of b, then applies the performance
// delay. configDir is the directory response files are relative to.
func (r *ResponseRenderer) Render(ctx context.Context, b *behaviour.Behaviour, ex *exchange.Exchange, configDir string) (*RenderedResponse, error) {
	body, err := r.content(b, configDir)
	if err != nil {
		return nil, err
	}

	if b.IsTemplate() && len(body) > 0 {
		if r.templates == nil {
			return nil, fmt.Errorf("template requested but no registry configured")
		}
		out, err := r.templates.Render(ctx, b.Engine, string(body), ex)
		if err != nil {
			return nil, fmt.Errorf("failed to render template: %w", err)
		}
		body = []byte(out)
	}

	headers := make(map[string]string, len(b.Headers)+1)
	for k, v := range b.Headers {
		headers[textproto.CanonicalMIMEHeaderKey(k)] = v
	}
	if _, explicit := headers["Content-Type"]; !explicit && b.Failure != behaviour.FailureEmptyResponse {
		if ct := contentType(b.Content, body); ct != "" {
			headers["Content-Type"] = ct
		}
	}

	resp := &RenderedResponse{
		StatusCode: b.StatusCode,
		Headers:    headers,
		Body:       body,
		Failure:    b.Failure,
		Delay:      delayOf(b.Delay),
	}

	if resp.Delay > 0 {
		if err := r.clock.SleepContext(ctx, resp.Delay); err != nil {
			return nil, fmt.Errorf("performance delay interrupted: %w", err)
		}
	}
	return resp, nil
}

func (r *ResponseRenderer) content(b *behaviour.Behaviour, configDir string) ([]byte, error) {
	switch b.Content.Kind {
	case behaviour.ContentInline:
		return []byte(b.Content.Value), nil
	case behaviour.ContentFile:
		path, err := ResolveContentFile(r.rootDir, configDir, b.Content.Value)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read response file %q: %w", b.Content.Value, err)
		}
		return data, nil
	default:
		return nil, nil
	}
}

// Extensions whose type differs between platform mime tables.
var fileTypes = map[string]string{
	".json": "application/json",
	".xml":  "application/xml",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".html": "text/html",
	".htm":  "text/html",
	".txt":  "text/plain",
	".csv":  "text/csv",
}

// contentType infers the type of a rendered body the behaviour gave no
// Content-Type header for. A response file is typed by its extension. Any
// other body is typed by what it holds, JSON first. An empty body from
// inline or scripted content gets no type.
func contentType(src behaviour.ContentSource, body []byte) string {
	if src.Kind == behaviour.ContentFile {
		ext := strings.ToLower(filepath.Ext(src.Value))
		if t, ok := fileTypes[ext]; ok {
			return t
		}
		if t := mime.TypeByExtension(ext); ext != "" && t != "" {
			return t
		}
		if len(body) == 0 {
			return "application/octet-stream"
		}
	}

	if len(body) == 0 {
		return ""
	}
	if trimmed := strings.TrimSpace(string(body)); (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Valid(body) {
		return "application/json"
	}
	return http.DetectContentType(body)
}

// delayOf picks the exact delay when positive, else a uniform duration in
// [MinMs, MaxMs].
func delayOf(d *behaviour.PerformanceDelay) time.Duration {
	switch {
	case d == nil:
		return 0
	case d.ExactMs > 0:
		return time.Duration(d.ExactMs) * time.Millisecond
	case d.MaxMs > 0:
		return clock.Between(time.Duration(d.MinMs)*time.Millisecond, time.Duration(d.MaxMs)*time.Millisecond)
	default:
		return time.Duration(d.MinMs) * time.Millisecond
	}
}
