package cache

import (
	"context"

	"bulksender/internal/model"
)

// OperationCache holds recent operation snapshots so pollers do not
// hit the database on every request. Misses and cache errors are
// soft: callers always fall back to storage.
type OperationCache interface {
	Store(ctx context.Context, op *model.Operation) error
	Get(ctx context.Context, id string) (*model.Operation, bool)
}

// Noop is used when Redis is not configured.
type Noop struct{}

func (Noop) Store(context.Context, *model.Operation) error        { return nil }
func (Noop) Get(context.Context, string) (*model.Operation, bool) { return nil, false }
