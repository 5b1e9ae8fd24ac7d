// Package resource holds the configured resource definitions and the
// repository port they are loaded through.
package resource

import (
	"context"
	"errors"
)

// ErrNotFound indicates a resource was not found.
var ErrNotFound = errors.New("resource not found")

// Repository is the port for loading resource definitions.
type Repository interface {
	// LoadAll loads all definitions in configuration order: files in lexical
	// order, resources in declaration order within a file.
	LoadAll(ctx context.Context) ([]*Definition, error)

	// LoadByID loads a single definition by its unique ID.
	// Returns ErrNotFound if no definition with the given ID exists.
	LoadByID(ctx context.Context, id string) (*Definition, error)
}
