package graph

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Resource is a named counting semaphore with a fixed capacity, declared
// once at specification-load time and shared by every Task that references
// it by name. It outlives every Task (process lifetime).
type Resource struct {
	Name     string
	Capacity int64

	sem *semaphore.Weighted
}

// NewResource creates a Resource with the given capacity. capacity must be
// >= 1.
func NewResource(name string, capacity int64) *Resource {
	return &Resource{
		Name:     name,
		Capacity: capacity,
		sem:      semaphore.NewWeighted(capacity),
	}
}

// acquire blocks until one unit of the resource is available.
func (r *Resource) acquire(ctx context.Context) error {
	return r.sem.Acquire(ctx, 1)
}

// release returns one unit of the resource.
func (r *Resource) release() {
	r.sem.Release(1)
}
