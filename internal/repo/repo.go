package repo

import (
	"context"
	"errors"
	"time"

	"bulksender/internal/model"
)

var ErrOperationNotFound = errors.New("operation not found")

type OperationFilter struct {
	OwnerID  string
	GroupTag string
	Status   model.OperationStatus
}

type Page struct {
	Limit  int
	Offset int
}

func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type OperationRepository interface {
	Create(ctx context.Context, op *model.Operation) error
	Get(ctx context.Context, id string) (*model.Operation, error)
	MarkProcessing(ctx context.Context, id string, at time.Time) error
	UpdateProgress(ctx context.Context, id string, processed, succeeded, failed int) error
	// MarkCompleted and MarkFailed set completed_at exactly once; both
	// are no-ops against an operation that is already terminal.
	MarkCompleted(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string, at time.Time) error
	List(ctx context.Context, f OperationFilter, p Page) ([]model.Operation, int, error)
}

// DispatchUpdate is one outcome applied to a queued dispatch record.
type DispatchUpdate struct {
	ID              string
	Status          model.DispatchStatus
	RemoteMessageID string
	ErrorDetail     string
	RetryCount      int
}

type DispatchRepository interface {
	BulkCreate(ctx context.Context, records []model.DispatchRecord) error
	// BulkUpdate applies all updates in one statement and returns the
	// number of rows touched. Only queued rows are written, so foreign
	// delivery-confirmation updates are never clobbered.
	BulkUpdate(ctx context.Context, updates []DispatchUpdate) (int, error)
	UpdateOne(ctx context.Context, u DispatchUpdate) error
	ListByOperation(ctx context.Context, operationID string, status model.DispatchStatus, p Page) ([]model.DispatchRecord, int, error)
}
