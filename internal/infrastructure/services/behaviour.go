package services

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/sophialabs/mimic/internal/domain/behaviour"
	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/domain/match"
	"github.com/sophialabs/mimic/internal/domain/store"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

// ScriptError reports a failed resource script. It is never defaulted over.
type ScriptError struct {
	ResourceID string
	Err        error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script for resource %q failed: %v", e.ResourceID, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// BehaviourOptions configure a BehaviourResolver.
type BehaviourOptions struct {
	RootDir       string
	DefaultStatus int
	Config        map[string]string
	LookupEnv     func(string) (string, bool)
}

// BehaviourResolver decides how one candidate resource responds: it runs the
// resource script, if any, then fills what the script left unset from the
// resource configuration.
type BehaviourResolver struct {
	scripts ports.ScriptEngine
	stores  store.Provider
	opts    BehaviourOptions
}

// NewBehaviourResolver creates a BehaviourResolver. scripts may be nil when
// no resource declares a script.
func NewBehaviourResolver(scripts ports.ScriptEngine, stores store.Provider, opts BehaviourOptions) *BehaviourResolver {
	if opts.DefaultStatus == 0 {
		opts.DefaultStatus = http.StatusOK
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	return &BehaviourResolver{scripts: scripts, stores: stores, opts: opts}
}

// Resolve returns the merged behaviour of res for ex. The returned behaviour
// always has a resolved type.
func (r *BehaviourResolver) Resolve(ctx context.Context, res *match.CompiledResource, ex *exchange.Exchange) (*behaviour.Behaviour, error) {
	def := res.Definition

	var b *behaviour.Behaviour
	if def.Script != "" {
		out, err := r.runScript(ctx, res, ex)
		if err != nil {
			return nil, &ScriptError{ResourceID: res.ID, Err: err}
		}
		b = out
	}
	if b == nil {
		b = &behaviour.Behaviour{}
	}

	behaviour.ApplyDefaults(b, behaviour.SourceFor(def), r.opts.DefaultStatus)
	return b, nil
}

func (r *BehaviourResolver) runScript(ctx context.Context, res *match.CompiledResource, ex *exchange.Exchange) (*behaviour.Behaviour, error) {
	if r.scripts == nil {
		return nil, fmt.Errorf("no script engine configured")
	}
	ref, err := ScriptRefFor(r.opts.RootDir, res.Definition)
	if err != nil {
		return nil, err
	}
	return r.scripts.Execute(ctx, ref, ports.Bindings{
		Exchange: ex,
		Stores:   r.stores,
		Env:      r.opts.LookupEnv,
		Config:   r.opts.Config,
	})
}
