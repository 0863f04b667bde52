// Package repo defines a generic keyed repository and its Neo4j
// implementation.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no entity has the requested id.
var ErrNotFound = errors.New("not found")

// Repository stores entities by id.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Upsert(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls pagination and filtering for List operations. Filter
// matches properties by equality.
type ListOpts struct {
	Offset int
	Limit  int
	Filter map[string]any
}
