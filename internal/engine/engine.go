package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bulksender/internal/cache"
	"bulksender/internal/model"
	"bulksender/internal/repo"
)

var (
	ErrNoRecipients      = errors.New("operation has no recipients")
	ErrInvalidSpec       = errors.New("invalid message spec")
	ErrOperationTerminal = errors.New("operation already terminal")
)

// Engine owns the lifecycle of bulk-dispatch operations: it creates
// the durable operation record, drives the batch loop, and exposes
// status for polling. Recipient failures become dispatch records, not
// engine errors; only infrastructure faults fail an operation.
type Engine struct {
	ops        repo.OperationRepository
	dispatches repo.DispatchRepository
	pool       *WorkerPool
	snapshots  cache.OperationCache
	log        zerolog.Logger

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

func New(ops repo.OperationRepository, dispatches repo.DispatchRepository, pool *WorkerPool, snapshots cache.OperationCache, log zerolog.Logger) *Engine {
	if snapshots == nil {
		snapshots = cache.Noop{}
	}
	return &Engine{
		ops:        ops,
		dispatches: dispatches,
		pool:       pool,
		snapshots:  snapshots,
		log:        log,
		stopCh:     make(chan struct{}),
	}
}

// Create accepts a pre-validated recipient list and message spec and
// persists the pending operation record.
func (e *Engine) Create(ctx context.Context, ownerID, groupTag string, spec model.MessageSpec, recipients []string) (*model.Operation, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if !spec.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidSpec, spec.Type)
	}
	if spec.Type == model.MessageText && spec.Body == "" {
		return nil, fmt.Errorf("%w: text message needs a body", ErrInvalidSpec)
	}
	if spec.Type != model.MessageText && spec.MediaID == "" {
		return nil, fmt.Errorf("%w: %s message needs a media reference", ErrInvalidSpec, spec.Type)
	}

	op := &model.Operation{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		GroupTag:    groupTag,
		MessageType: spec.Type,
		Body:        spec.Body,
		MediaID:     spec.MediaID,
		Total:       len(recipients),
		Status:      model.OperationPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.ops.Create(ctx, op); err != nil {
		return nil, fmt.Errorf("create operation: %w", err)
	}

	e.log.Info().
		Str("operation", op.ID).
		Str("owner", ownerID).
		Str("group", groupTag).
		Str("type", string(spec.Type)).
		Int("total", op.Total).
		Msg("operation created")
	return op, nil
}

// CreateAndRun creates the operation and starts the dispatch loop on a
// background goroutine, returning the id immediately. The durable
// record is the source of truth for progress; poll GetStatus.
func (e *Engine) CreateAndRun(ctx context.Context, ownerID, groupTag string, spec model.MessageSpec, recipients []string) (string, error) {
	op, err := e.Create(ctx, ownerID, groupTag, spec, recipients)
	if err != nil {
		return "", err
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.Run(context.Background(), op.ID, recipients); err != nil {
			e.log.Error().Err(err).Str("operation", op.ID).Msg("background run failed")
		}
	}()
	return op.ID, nil
}

// Run executes the batch loop for an existing operation. Calling it
// against a terminal operation is a logic error, not a no-op, so that
// accidental reprocessing is caught loudly.
func (e *Engine) Run(ctx context.Context, operationID string, recipients []string) (err error) {
	op, err := e.ops.Get(ctx, operationID)
	if err != nil {
		return err
	}
	if op.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrOperationTerminal, op.ID, op.Status)
	}
	if len(recipients) != op.Total {
		return fmt.Errorf("operation %s expects %d recipients, got %d", op.ID, op.Total, len(recipients))
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
			e.fault(op.ID, err)
		}
	}()

	startedAt := time.Now().UTC()
	if err := e.ops.MarkProcessing(ctx, op.ID, startedAt); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	op.Status = model.OperationProcessing
	op.StartedAt = &startedAt

	plan := PlanFor(op.Total)
	batches := Batches(recipients, plan.BatchSize)
	rec := NewRecorder(e.ops, e.dispatches, e.snapshots, e.log, op)

	e.log.Info().
		Str("operation", op.ID).
		Int("total", op.Total).
		Int("batches", len(batches)).
		Int("batch_size", plan.BatchSize).
		Int("concurrency", plan.Concurrency).
		Dur("batch_delay", plan.BatchDelay).
		Msg("operation processing")

	for i, batch := range batches {
		if stopped := e.stopping(ctx); stopped {
			// Unattempted recipients stay queued and the operation stays
			// processing; reconciliation is external.
			e.log.Warn().Str("operation", op.ID).Int("batch", i).Msg("run interrupted by shutdown")
			return rec.Checkpoint(context.WithoutCancel(ctx))
		}

		records, err := rec.StageBatch(ctx, batch)
		if err != nil {
			e.fault(op.ID, err)
			return err
		}

		results := e.pool.SendBatch(ctx, op.Spec(), batch, plan.Concurrency)

		final := i == len(batches)-1
		if err := rec.RecordBatch(ctx, records, results, final); err != nil {
			e.fault(op.ID, err)
			return err
		}

		if !final {
			sleepCtx(ctx, plan.BatchDelay)
		}
	}

	if err := e.ops.MarkCompleted(ctx, op.ID, time.Now().UTC()); err != nil {
		e.fault(op.ID, err)
		return fmt.Errorf("mark completed: %w", err)
	}

	processed, succeeded, failed := rec.Counters()
	if stored, err := e.ops.Get(ctx, op.ID); err == nil {
		_ = e.snapshots.Store(ctx, stored)
	}

	e.log.Info().
		Str("operation", op.ID).
		Int("processed", processed).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Dur("took", time.Since(startedAt)).
		Msg("operation completed")
	return nil
}

// fault flips the operation to failed. Uses a detached context so a
// canceled run can still record why it died.
func (e *Engine) fault(operationID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e.log.Error().Err(cause).Str("operation", operationID).Msg("engine fault")
	if err := e.ops.MarkFailed(ctx, operationID, cause.Error(), time.Now().UTC()); err != nil {
		e.log.Error().Err(err).Str("operation", operationID).Msg("failed to record engine fault")
	}
}

// GetStatus returns the operation snapshot, from the snapshot cache
// when fresh, otherwise from storage.
func (e *Engine) GetStatus(ctx context.Context, operationID string) (*model.Operation, error) {
	if op, ok := e.snapshots.Get(ctx, operationID); ok {
		return op, nil
	}

	op, err := e.ops.Get(ctx, operationID)
	if err != nil {
		return nil, err
	}
	return op, nil
}

// List pages operations by owner, group and/or status.
func (e *Engine) List(ctx context.Context, f repo.OperationFilter, p repo.Page) ([]model.Operation, int, error) {
	return e.ops.List(ctx, f, p)
}

// ListDispatches pages one operation's dispatch records for drill-down
// next to the aggregate counters.
func (e *Engine) ListDispatches(ctx context.Context, operationID string, status model.DispatchStatus, p repo.Page) ([]model.DispatchRecord, int, error) {
	if _, err := e.ops.Get(ctx, operationID); err != nil {
		return nil, 0, err
	}
	return e.dispatches.ListByOperation(ctx, operationID, status, p)
}

// Close stops accepting shutdown-spanning work and waits for
// background runs to finish their current batch.
func (e *Engine) Close() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

func (e *Engine) stopping(ctx context.Context) bool {
	select {
	case <-e.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
