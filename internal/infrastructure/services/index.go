package services

import (
	"slices"

	"github.com/sophialabs/mimic/internal/domain/match"
	"github.com/sophialabs/mimic/internal/domain/route"
)

// ResourceIndex holds compiled resources in configuration order. It is never
// mutated after NewResourceIndex returns; a reload builds a new index.
type ResourceIndex struct {
	resources []*match.CompiledResource
	byID      map[string]*match.CompiledResource
}

// NewResourceIndex builds an index over resources, which must already be in
// configuration order.
func NewResourceIndex(resources []*match.CompiledResource) *ResourceIndex {
	idx := &ResourceIndex{
		resources: slices.Clone(resources),
		byID:      make(map[string]*match.CompiledResource, len(resources)),
	}
	for _, r := range idx.resources {
		idx.byID[r.ID] = r
	}
	return idx
}

// All returns the resources in configuration order. Callers must not modify
// the returned slice.
func (idx *ResourceIndex) All() []*match.CompiledResource {
	if idx == nil {
		return nil
	}
	return idx.resources
}

// Lookup returns the resource with the given ID.
func (idx *ResourceIndex) Lookup(id string) (*match.CompiledResource, bool) {
	if idx == nil {
		return nil, false
	}
	r, ok := idx.byID[id]
	return r, ok
}

// Len returns the number of resources.
func (idx *ResourceIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.resources)
}

// Summary counts resources per route kind, for logging.
func (idx *ResourceIndex) Summary() map[string]int {
	out := make(map[string]int)
	for _, r := range idx.All() {
		kind := route.CatchAll.String()
		if r.Route != nil {
			kind = r.Route.Kind().String()
		}
		out[kind]++
	}
	return out
}
