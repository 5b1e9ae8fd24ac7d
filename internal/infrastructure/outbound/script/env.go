package script

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/sophialabs/mimic/internal/domain/expression"
	"github.com/sophialabs/mimic/internal/domain/store"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

// scriptEnv defines the environment available to scripts.
type scriptEnv struct {
	Request  requestEnv                              `expr:"request"`
	Config   map[string]string                       `expr:"config"`
	Env      func(string) string                     `expr:"env"`
	Store    func(string, string) (any, error)       `expr:"store"`
	HasItem  func(string, string) (bool, error)      `expr:"hasItem"`
	Save     func(string, string, any) (bool, error) `expr:"save"`
	UUID     func() string                           `expr:"uuid"`
	JsonPath func(string) (any, error)               `expr:"jsonPath"`
}

type requestEnv struct {
	ID          string              `expr:"id"`
	Method      string              `expr:"method"`
	Path        string              `expr:"path"`
	URI         string              `expr:"uri"`
	Headers     map[string]string   `expr:"headers"`
	QueryParams map[string]string   `expr:"queryParams"`
	PathParams  map[string]string   `expr:"pathParams"`
	FormParams  map[string]string   `expr:"formParams"`
	Body        string              `expr:"body"`
	Header      func(string) string `expr:"header"`
}

func buildEnv(ctx context.Context, ref ports.ScriptRef, b ports.Bindings, query expression.QueryProvider) scriptEnv {
	ex := b.Exchange
	req := ex.Request

	config := map[string]string{"dir": ref.ConfigDir, "resourceId": ref.ResourceID}
	maps.Copy(config, b.Config)

	open := func(name string) (store.Store, error) {
		if b.Stores == nil {
			return nil, fmt.Errorf("no stores available")
		}
		if name == store.RequestStore {
			return b.Stores.GetOrCreate(ctx, ex.RequestStoreName(), true)
		}
		return b.Stores.GetOrCreate(ctx, name, false)
	}

	return scriptEnv{
		Request: requestEnv{
			ID:          ex.ID,
			Method:      req.Method,
			Path:        req.Path,
			URI:         req.URI,
			Headers:     req.Headers,
			QueryParams: req.QueryParams,
			PathParams:  req.PathParams,
			FormParams:  req.FormParams,
			Body:        string(req.Body),
			Header: func(name string) string {
				v, _ := req.Header(name)
				return v
			},
		},
		Config: config,
		Env: func(name string) string {
			if b.Env == nil {
				return ""
			}
			v, _ := b.Env(name)
			return v
		},
		Store: func(name, key string) (any, error) {
			s, err := open(name)
			if err != nil {
				return nil, err
			}
			return s.Load(ctx, key)
		},
		HasItem: func(name, key string) (bool, error) {
			s, err := open(name)
			if err != nil {
				return false, err
			}
			return s.HasItemWithKey(ctx, key)
		},
		Save: func(name, key string, value any) (bool, error) {
			s, err := open(name)
			if err != nil {
				return false, err
			}
			if err := s.Save(ctx, key, value); err != nil {
				return false, err
			}
			return true, nil
		},
		UUID: uuid.NewString,
		JsonPath: func(q string) (any, error) {
			if query == nil || len(req.Body) == 0 {
				return nil, nil
			}
			return query.Query(req.Body, q)
		},
	}
}
