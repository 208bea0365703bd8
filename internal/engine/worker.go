package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bulksender/internal/gateway"
	"bulksender/internal/model"
)

// Gateway delivers one message and returns the provider's message id.
type Gateway interface {
	Send(ctx context.Context, recipient string, spec model.MessageSpec) (remoteID string, err error)
}

const (
	// maxRetries counts retries after the first attempt, so each
	// recipient is attempted at most maxRetries+1 times.
	maxRetries = 2

	// chunkPause separates consecutive concurrent chunks within a
	// batch to smooth the burst rate.
	chunkPause = 25 * time.Millisecond
)

// DispatchResult is the outcome of sending to one recipient. Workers
// return these instead of writing storage so the recorder can coalesce
// persistence into bulk writes.
type DispatchResult struct {
	Recipient   string
	Sent        bool
	RemoteID    string
	ErrorDetail string
	RetryCount  int
}

// WorkerPool fans one batch out to the gateway with bounded
// parallelism and per-recipient retry. The limiter is shared across
// all operations in the process so their aggregate send rate stays
// under the provider's limit.
type WorkerPool struct {
	gw      Gateway
	limiter *rate.Limiter
	log     zerolog.Logger

	backoff func(attempt int) time.Duration
}

func NewWorkerPool(gw Gateway, limiter *rate.Limiter, log zerolog.Logger) *WorkerPool {
	return &WorkerPool{
		gw:      gw,
		limiter: limiter,
		log:     log,
		backoff: defaultBackoff,
	}
}

// defaultBackoff waits 2^attempt seconds before retry number attempt.
func defaultBackoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// SendBatch sends to every recipient in the batch and returns one
// result per recipient, index-aligned with the input. Recipients are
// processed in chunks of the given width: chunks run sequentially,
// recipients within a chunk concurrently.
func (p *WorkerPool) SendBatch(ctx context.Context, spec model.MessageSpec, batch []string, width int) []DispatchResult {
	if width <= 0 {
		width = 1
	}

	results := make([]DispatchResult, len(batch))
	for start := 0; start < len(batch); start += width {
		end := start + width
		if end > len(batch) {
			end = len(batch)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = p.sendOne(ctx, batch[i], spec)
			}(i)
		}
		wg.Wait()

		if end < len(batch) {
			sleepCtx(ctx, chunkPause)
		}
	}
	return results
}

func (p *WorkerPool) sendOne(ctx context.Context, recipient string, spec model.MessageSpec) DispatchResult {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.backoff(attempt)
			p.log.Debug().
				Str("recipient", recipient).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Msg("dispatch retry scheduled")
			if !sleepCtx(ctx, delay) {
				break
			}
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}

		remoteID, err := p.gw.Send(ctx, recipient, spec)
		if err == nil && remoteID == "" {
			// Guards Gateway implementations that do not classify this
			// themselves: no delivery identifier is never a success.
			err = &gateway.Error{Detail: "gateway response missing message id"}
		}
		if err == nil {
			return DispatchResult{
				Recipient:  recipient,
				Sent:       true,
				RemoteID:   remoteID,
				RetryCount: attempt,
			}
		}

		lastErr = err
		if !gateway.IsTransient(err) {
			p.log.Warn().Str("recipient", recipient).Err(err).Msg("dispatch failed permanently")
			return DispatchResult{
				Recipient:   recipient,
				ErrorDetail: err.Error(),
				RetryCount:  attempt,
			}
		}
	}

	p.log.Warn().Str("recipient", recipient).Err(lastErr).Msg("dispatch failed after retries")
	return DispatchResult{
		Recipient:   recipient,
		ErrorDetail: lastErr.Error(),
		RetryCount:  maxRetries,
	}
}

// sleepCtx sleeps for d, returning false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-tmr.C:
		return true
	}
}
