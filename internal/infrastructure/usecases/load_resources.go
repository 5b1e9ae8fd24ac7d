package usecases

import (
	"context"
	"fmt"

	"github.com/sophialabs/mimic/internal/domain/resource"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
	"github.com/sophialabs/mimic/internal/infrastructure/services"
)

// LoadResourcesUseCase loads all resource definitions, compiles them, and
// builds an index.
type LoadResourcesUseCase struct {
	repo          resource.Repository
	compiler      *services.Compiler
	logger        ports.Logger
	defaultEngine string
}

// NewLoadResourcesUseCase creates a new use case.
func NewLoadResourcesUseCase(repo resource.Repository, compiler *services.Compiler, logger ports.Logger) *LoadResourcesUseCase {
	return &LoadResourcesUseCase{
		repo:     repo,
		compiler: compiler,
		logger:   logger,
	}
}

// SetDefaultEngine sets the template engine applied to responses that do not
// name one.
func (uc *LoadResourcesUseCase) SetDefaultEngine(engine string) {
	uc.defaultEngine = engine
}

// Execute loads and compiles every resource. Any compile error fails the
// whole load so a broken configuration never replaces a working one.
func (uc *LoadResourcesUseCase) Execute(ctx context.Context) (*services.ResourceIndex, error) {
	defs, err := uc.repo.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load resources: %w", err)
	}

	uc.logger.Info("loaded resources from repository", "count", len(defs))

	if uc.defaultEngine != "" {
		for _, d := range defs {
			if d.Response.Engine == "" {
				d.Response.Engine = uc.defaultEngine
			}
		}
	}

	compiled, err := uc.compiler.CompileAll(defs)
	if err != nil {
		uc.logger.Error("failed to compile resources", "error", err)
		return nil, err
	}
	for _, cr := range compiled {
		uc.logger.Debug("compiled resource", "id", cr.ID, "method", cr.Method, "route", cr.Route.Pattern())
	}

	index := services.NewResourceIndex(compiled)
	uc.logger.Info("resource index built", "resources", index.Len(), "routes", index.Summary())

	return index, nil
}
