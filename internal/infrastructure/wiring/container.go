package wiring

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sophialabs/mimic/internal/domain/expression"
	"github.com/sophialabs/mimic/internal/domain/match"
	"github.com/sophialabs/mimic/internal/domain/route"
	"github.com/sophialabs/mimic/internal/domain/trace"
	inboundhttp "github.com/sophialabs/mimic/internal/infrastructure/inbound/http"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/evaluators"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/query"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/ratelimit"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/script"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/store"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/template"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
	"github.com/sophialabs/mimic/internal/infrastructure/services"
	"github.com/sophialabs/mimic/internal/infrastructure/usecases"
)

// Params holds the subset of configuration needed to construct infrastructure components.
type Params struct {
	RootDir        string
	Glob           string
	Port           int
	TraceSize      int
	RegexCacheSize int
	ScriptWorkers  int
	StoreBackend   string // "inmemory" or "file"
	StoreDir       string
	TemplatePolicy string // "ignore" or "nullify"
	DefaultEngine  string // "" = placeholder, "jinja2"
	DefaultStatus  int
	TimeZone       string
	RateLimiterTTL time.Duration
	Config         map[string]string
	Logger         ports.Logger
}

// Container owns the construction and lifecycle of all infrastructure components.
type Container struct {
	logger           ports.Logger
	server           *inboundhttp.Server
	loadUC           *usecases.LoadResourcesUseCase
	stores           *store.Provider
	rateLimiterStore *ratelimit.TokenBucketStore
	traceBuf         *trace.RingBuffer
	closeOnce        sync.Once
}

// New constructs all infrastructure components. Fallible operations (repository,
// compiler, stores) run before goroutine-starting operations (rate limiter
// store) to avoid goroutine leaks on early failure.
func New(p Params) (*Container, error) {
	if _, err := os.Stat(p.RootDir); err != nil {
		return nil, fmt.Errorf("failed to access root directory: %w", err)
	}
	// Every component confining files to the root compares absolute paths.
	rootDir, err := filepath.Abs(p.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}

	repo, err := filesystem.NewYAMLRepository(rootDir, p.Glob)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	policy := expression.Ignore
	if p.TemplatePolicy != "" {
		if policy, err = expression.ParsePolicy(p.TemplatePolicy); err != nil {
			return nil, err
		}
	}

	clk, err := clock.NewIn(p.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone: %w", err)
	}

	stores, err := store.NewProvider(p.StoreBackend, p.StoreDir, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create store provider: %w", err)
	}

	q := query.New()
	exprs := expression.NewEngine(evaluators.Builtins(evaluators.Options{
		Clock:     clk,
		Stores:    stores,
		LookupEnv: os.LookupEnv,
		Port:      p.Port,
		URL:       fmt.Sprintf("http://localhost:%d", p.Port),
	}), q)

	registry := template.NewRegistry(
		template.NewPlaceholderEngine(exprs, policy),
		template.NewJinja2Engine(exprs, q, clk),
	)
	scripts := script.NewPool(script.NewExprEngine(q), p.ScriptWorkers)
	conditions := match.NewConditionMatcher(p.RegexCacheSize)

	compiler, err := services.NewCompiler(services.CompilerDeps{
		RootDir:     rootDir,
		Routes:      route.NewCache(),
		Conditions:  conditions,
		Expressions: exprs,
		Query:       q,
		Templates:   registry,
		Scripts:     scripts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create compiler: %w", err)
	}

	// Start background goroutine only after all fallible ops succeed.
	rateLimiterStore := ratelimit.NewTokenBucketStore(clk, p.RateLimiterTTL)
	traceBuf := trace.NewRingBuffer(p.TraceSize)

	loadUC := usecases.NewLoadResourcesUseCase(repo, compiler, p.Logger)
	if p.DefaultEngine != "" {
		loadUC.SetDefaultEngine(p.DefaultEngine)
	}

	handleReqUC := usecases.NewHandleRequestUseCase(usecases.HandleRequestDeps{
		Resolver: match.NewResolver(conditions),
		Behaviours: services.NewBehaviourResolver(scripts, stores, services.BehaviourOptions{
			RootDir:       rootDir,
			DefaultStatus: p.DefaultStatus,
			Config:        p.Config,
		}),
		Captures:    services.NewCaptureService(exprs, q, stores, p.Logger),
		Renderer:    services.NewResponseRenderer(registry, clk, rootDir),
		Stores:      stores,
		Clock:       clk,
		RateLimiter: rateLimiterStore,
		Logger:      p.Logger,
		Trace:       traceBuf,
	})

	server := inboundhttp.NewServer(handleReqUC, loadUC, stores, traceBuf, p.Logger)

	return &Container{
		logger:           p.Logger,
		server:           server,
		loadUC:           loadUC,
		stores:           stores,
		rateLimiterStore: rateLimiterStore,
		traceBuf:         traceBuf,
	}, nil
}

// Close releases resources held by the container. It is idempotent.
func (c *Container) Close() {
	c.closeOnce.Do(func() {
		c.rateLimiterStore.Stop()
	})
}

// Logger returns the logger passed at construction time.
func (c *Container) Logger() ports.Logger {
	return c.logger
}

// Server returns the HTTP mock server.
func (c *Container) Server() *inboundhttp.Server {
	return c.server
}

// LoadResourcesUseCase returns the use case for loading and compiling resources.
func (c *Container) LoadResourcesUseCase() *usecases.LoadResourcesUseCase {
	return c.loadUC
}

// Stores returns the named store provider.
func (c *Container) Stores() *store.Provider {
	return c.stores
}

// RateLimiterStore returns the token bucket store for rate limiting.
func (c *Container) RateLimiterStore() *ratelimit.TokenBucketStore {
	return c.rateLimiterStore
}

// TraceBuf returns the trace ring buffer.
func (c *Container) TraceBuf() *trace.RingBuffer {
	return c.traceBuf
}
