package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/expression"
	"github.com/sophialabs/mimic/internal/domain/resource"
	"github.com/sophialabs/mimic/internal/domain/store"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

// CaptureService writes configured key/value pairs into named stores.
type CaptureService struct {
	exprs  *expression.Engine
	query  expression.QueryProvider
	stores store.Provider
	logger ports.Logger
}

// NewCaptureService creates a CaptureService.
func NewCaptureService(exprs *expression.Engine, query expression.QueryProvider, stores store.Provider, logger ports.Logger) *CaptureService {
	return &CaptureService{exprs: exprs, query: query, stores: stores, logger: logger}
}

// Capture runs the definitions of phase in order and returns how many were
// written. A definition whose key or value resolves to nil is skipped.
// Failing definitions do not stop the others; their errors are joined.
func (s *CaptureService) Capture(ctx context.Context, defs []resource.Capture, ex *exchange.Exchange, phase resource.Phase) (int, error) {
	var (
		written int
		errs    []error
	)
	for i, def := range defs {
		if phaseOf(def) != phase {
			continue
		}
		ok, err := s.captureOne(ctx, def, ex, phase)
		if err != nil {
			s.logger.Warn("capture failed", "capture", captureName(def, i), "error", err)
			errs = append(errs, fmt.Errorf("capture %s: %w", captureName(def, i), err))
			continue
		}
		if ok {
			written++
		}
	}
	return written, errors.Join(errs...)
}

func (s *CaptureService) captureOne(ctx context.Context, def resource.Capture, ex *exchange.Exchange, phase resource.Phase) (bool, error) {
	key, err := s.key(ctx, def, ex)
	if err != nil || key == nil {
		return false, err
	}
	value, err := s.value(ctx, def.Value, ex, phase)
	if err != nil || value == nil {
		return false, err
	}

	name, ephemeral := def.Store, false
	if name == "" || name == store.RequestStore {
		name, ephemeral = ex.RequestStoreName(), true
	}
	st, err := s.stores.GetOrCreate(ctx, name, ephemeral)
	if err != nil {
		return false, err
	}
	if err := st.Save(ctx, *key, value); err != nil {
		return false, err
	}
	s.logger.Debug("captured value", "store", name, "key", *key)
	return true, nil
}

func (s *CaptureService) key(ctx context.Context, def resource.Capture, ex *exchange.Exchange) (*string, error) {
	switch {
	case def.Key.Const != nil:
		return def.Key.Const, nil
	case def.Key.Expression != "":
		return s.exprs.EvalNullable(ctx, def.Key.Expression, ex)
	default:
		name := def.Name
		return &name, nil
	}
}

func (s *CaptureService) value(ctx context.Context, src resource.ValueSource, ex *exchange.Exchange, phase resource.Phase) (any, error) {
	switch {
	case src.Const != nil:
		return *src.Const, nil
	case src.Expression != "":
		v, err := s.exprs.EvalNullable(ctx, src.Expression, ex)
		if err != nil || v == nil {
			return nil, err
		}
		return *v, nil
	case src.JSONPath != "":
		return s.extract(ex, src.JSONPath, phase)
	case src.XPath != "":
		return s.extract(ex, xpathQuery(src.XPath), phase)
	default:
		return nil, nil
	}
}

func (s *CaptureService) extract(ex *exchange.Exchange, q string, phase resource.Phase) (any, error) {
	body := ex.Request.Body
	if phase == resource.PhaseResponse {
		if ex.Response == nil {
			return nil, nil
		}
		body = ex.Response.Body
	}
	if len(body) == 0 {
		return nil, nil
	}
	return s.query.Query(body, q)
}

// xpathQuery marks q as XPath so expressions such as count(//a) are not
// mistaken for another query language.
func xpathQuery(q string) string {
	if strings.HasPrefix(q, "/") || strings.HasPrefix(q, "!") {
		return q
	}
	return "!" + q
}

func phaseOf(def resource.Capture) resource.Phase {
	if def.Phase == "" {
		return resource.PhaseRequest
	}
	return def.Phase
}

func captureName(def resource.Capture, i int) string {
	if def.Name != "" {
		return def.Name
	}
	return fmt.Sprintf("#%d", i)
}
