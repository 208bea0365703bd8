package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bulksender/internal/cache"
	"bulksender/internal/model"
	"bulksender/internal/repo"
)

// checkpointEvery bounds write amplification on the operation row:
// counters are flushed every Nth batch and unconditionally on the
// final one, so pollers see progress within a small lag.
const checkpointEvery = 3

// Recorder is the single writer for one operation's counters. Workers
// hand it result values; it persists dispatch outcomes in bulk and
// checkpoints the aggregate onto the operation record.
type Recorder struct {
	ops        repo.OperationRepository
	dispatches repo.DispatchRepository
	snapshots  cache.OperationCache
	log        zerolog.Logger

	op        model.Operation
	processed int
	succeeded int
	failed    int
	batches   int
}

func NewRecorder(ops repo.OperationRepository, dispatches repo.DispatchRepository, snapshots cache.OperationCache, log zerolog.Logger, op *model.Operation) *Recorder {
	if snapshots == nil {
		snapshots = cache.Noop{}
	}
	return &Recorder{
		ops:        ops,
		dispatches: dispatches,
		snapshots:  snapshots,
		log:        log.With().Str("operation", op.ID).Logger(),
		op:         *op,
	}
}

// StageBatch creates one queued dispatch record per recipient in a
// single bulk insert, before any send happens. A crash mid-batch then
// leaves visible queued rows instead of missing ones. The returned
// records are index-aligned with the batch.
func (r *Recorder) StageBatch(ctx context.Context, batch []string) ([]model.DispatchRecord, error) {
	now := time.Now().UTC()
	records := make([]model.DispatchRecord, len(batch))
	for i, recipient := range batch {
		records[i] = model.DispatchRecord{
			ID:          uuid.NewString(),
			OperationID: r.op.ID,
			Recipient:   recipient,
			MessageType: r.op.MessageType,
			Body:        r.op.Body,
			MediaID:     r.op.MediaID,
			Status:      model.DispatchQueued,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	if err := r.dispatches.BulkCreate(ctx, records); err != nil {
		return nil, fmt.Errorf("stage batch: %w", err)
	}
	return records, nil
}

// RecordBatch persists the outcomes for one staged batch and folds
// them into the running counters. records and results must be
// index-aligned. Set final on the last batch to force a checkpoint.
func (r *Recorder) RecordBatch(ctx context.Context, records []model.DispatchRecord, results []DispatchResult, final bool) error {
	if len(records) != len(results) {
		return fmt.Errorf("record batch: %d records for %d results", len(records), len(results))
	}

	updates := make([]repo.DispatchUpdate, len(results))
	for i, res := range results {
		u := repo.DispatchUpdate{
			ID:         records[i].ID,
			RetryCount: res.RetryCount,
		}
		if res.Sent {
			u.Status = model.DispatchSent
			u.RemoteMessageID = res.RemoteID
			r.succeeded++
		} else {
			u.Status = model.DispatchFailed
			u.ErrorDetail = res.ErrorDetail
			r.failed++
		}
		r.processed++
		updates[i] = u
	}
	r.batches++

	if _, err := r.dispatches.BulkUpdate(ctx, updates); err != nil {
		r.log.Warn().Err(err).Int("count", len(updates)).Msg("bulk outcome update failed, degrading to per-record updates")
		for _, u := range updates {
			if err := r.dispatches.UpdateOne(ctx, u); err != nil {
				// The row stays queued; reconciliation tooling picks it up.
				r.log.Error().Err(err).Str("record", u.ID).Msg("dispatch outcome update failed")
			}
		}
	}

	if final || r.batches%checkpointEvery == 0 {
		if err := r.Checkpoint(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Checkpoint flushes the counters onto the operation record and
// refreshes the poller snapshot.
func (r *Recorder) Checkpoint(ctx context.Context) error {
	if err := r.ops.UpdateProgress(ctx, r.op.ID, r.processed, r.succeeded, r.failed); err != nil {
		return fmt.Errorf("checkpoint operation %s: %w", r.op.ID, err)
	}

	snap := r.Snapshot()
	if err := r.snapshots.Store(ctx, &snap); err != nil {
		r.log.Debug().Err(err).Msg("snapshot cache store failed")
	}

	r.log.Info().
		Int("processed", r.processed).
		Int("succeeded", r.succeeded).
		Int("failed", r.failed).
		Int("total", r.op.Total).
		Msg("progress checkpoint")
	return nil
}

// Counters returns the running aggregate.
func (r *Recorder) Counters() (processed, succeeded, failed int) {
	return r.processed, r.succeeded, r.failed
}

// Snapshot is the operation as of the current counters.
func (r *Recorder) Snapshot() model.Operation {
	snap := r.op
	snap.Status = model.OperationProcessing
	snap.Processed = r.processed
	snap.Succeeded = r.succeeded
	snap.Failed = r.failed
	return snap
}
