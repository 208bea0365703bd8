package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bulksender/internal/gateway"
	"bulksender/internal/model"
	"bulksender/internal/repo"
)

var (
	errTransient = &gateway.Error{StatusCode: 500, Detail: "upstream hiccup", Transient: true}
	errPermanent = &gateway.Error{StatusCode: 400, Detail: "recipient not on platform"}
)

// fakeGateway scripts per-recipient failures: the first len(script)
// attempts return the scripted errors, later attempts succeed. It also
// tracks attempt counts and the peak number of concurrent sends.
type fakeGateway struct {
	mu       sync.Mutex
	scripts  map[string][]error
	attempts map[string]int

	inFlight    int
	maxInFlight int
	perSendWait time.Duration
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		scripts:  map[string][]error{},
		attempts: map[string]int{},
	}
}

func (g *fakeGateway) failWith(recipient string, errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[recipient] = errs
}

func (g *fakeGateway) attemptCount(recipient string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts[recipient]
}

func (g *fakeGateway) Send(ctx context.Context, recipient string, spec model.MessageSpec) (string, error) {
	g.mu.Lock()
	n := g.attempts[recipient]
	g.attempts[recipient] = n + 1
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	script := g.scripts[recipient]
	wait := g.perSendWait
	g.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}

	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()

	if n < len(script) {
		return "", script[n]
	}
	return fmt.Sprintf("remote-%s-%d", recipient, n), nil
}

// fakeOperationRepo is an in-memory OperationRepository.
type fakeOperationRepo struct {
	mu  sync.Mutex
	ops map[string]*model.Operation

	progressCalls int

	failUpdateProgress bool
	failGet            bool
}

func newFakeOperationRepo() *fakeOperationRepo {
	return &fakeOperationRepo{ops: map[string]*model.Operation{}}
}

func (f *fakeOperationRepo) Create(ctx context.Context, op *model.Operation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *op
	f.ops[op.ID] = &cp
	return nil
}

func (f *fakeOperationRepo) Get(ctx context.Context, id string) (*model.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return nil, errors.New("storage unreachable")
	}
	op, ok := f.ops[id]
	if !ok {
		return nil, repo.ErrOperationNotFound
	}
	cp := *op
	return &cp, nil
}

func (f *fakeOperationRepo) MarkProcessing(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.ops[id]
	if !ok {
		return repo.ErrOperationNotFound
	}
	if op.Status != model.OperationPending {
		return fmt.Errorf("operation %s is not pending", id)
	}
	op.Status = model.OperationProcessing
	op.StartedAt = &at
	return nil
}

func (f *fakeOperationRepo) UpdateProgress(ctx context.Context, id string, processed, succeeded, failed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateProgress {
		return errors.New("storage unreachable")
	}
	op, ok := f.ops[id]
	if !ok {
		return repo.ErrOperationNotFound
	}
	f.progressCalls++
	if processed > op.Processed {
		op.Processed = processed
	}
	if succeeded > op.Succeeded {
		op.Succeeded = succeeded
	}
	if failed > op.Failed {
		op.Failed = failed
	}
	return nil
}

func (f *fakeOperationRepo) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.ops[id]
	if !ok {
		return repo.ErrOperationNotFound
	}
	if op.CompletedAt != nil {
		return nil
	}
	op.Status = model.OperationCompleted
	op.CompletedAt = &at
	return nil
}

func (f *fakeOperationRepo) MarkFailed(ctx context.Context, id string, reason string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.ops[id]
	if !ok {
		return repo.ErrOperationNotFound
	}
	if op.CompletedAt != nil {
		return nil
	}
	op.Status = model.OperationFailed
	op.LastError = &reason
	op.CompletedAt = &at
	return nil
}

func (f *fakeOperationRepo) List(ctx context.Context, filter repo.OperationFilter, p repo.Page) ([]model.Operation, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Operation
	for _, op := range f.ops {
		if filter.OwnerID != "" && op.OwnerID != filter.OwnerID {
			continue
		}
		if filter.GroupTag != "" && op.GroupTag != filter.GroupTag {
			continue
		}
		if filter.Status != "" && op.Status != filter.Status {
			continue
		}
		out = append(out, *op)
	}
	return out, len(out), nil
}

// fakeDispatchRepo is an in-memory DispatchRepository.
type fakeDispatchRepo struct {
	mu      sync.Mutex
	records map[string]*model.DispatchRecord

	bulkUpdateCalls int
	updateOneCalls  int

	failBulkCreate bool
	failBulkUpdate bool
	failUpdateOne  map[string]bool // record id -> fail
}

func newFakeDispatchRepo() *fakeDispatchRepo {
	return &fakeDispatchRepo{
		records:       map[string]*model.DispatchRecord{},
		failUpdateOne: map[string]bool{},
	}
}

func (f *fakeDispatchRepo) BulkCreate(ctx context.Context, records []model.DispatchRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBulkCreate {
		return errors.New("storage unreachable")
	}
	for i := range records {
		cp := records[i]
		f.records[cp.ID] = &cp
	}
	return nil
}

func (f *fakeDispatchRepo) apply(u repo.DispatchUpdate) bool {
	rec, ok := f.records[u.ID]
	if !ok || rec.Status != model.DispatchQueued {
		return false
	}
	rec.Status = u.Status
	rec.RetryCount = u.RetryCount
	if u.RemoteMessageID != "" {
		s := u.RemoteMessageID
		rec.RemoteMessageID = &s
	}
	if u.ErrorDetail != "" {
		s := u.ErrorDetail
		rec.LastError = &s
	}
	return true
}

func (f *fakeDispatchRepo) BulkUpdate(ctx context.Context, updates []repo.DispatchUpdate) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkUpdateCalls++
	if f.failBulkUpdate {
		return 0, errors.New("storage unreachable")
	}
	n := 0
	for _, u := range updates {
		if f.apply(u) {
			n++
		}
	}
	return n, nil
}

func (f *fakeDispatchRepo) UpdateOne(ctx context.Context, u repo.DispatchUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateOneCalls++
	if f.failUpdateOne[u.ID] {
		return errors.New("storage unreachable")
	}
	if !f.apply(u) {
		return errors.New("dispatch record missing or not queued")
	}
	return nil
}

func (f *fakeDispatchRepo) ListByOperation(ctx context.Context, operationID string, status model.DispatchStatus, p repo.Page) ([]model.DispatchRecord, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DispatchRecord
	for _, rec := range f.records {
		if rec.OperationID != operationID {
			continue
		}
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, *rec)
	}
	return out, len(out), nil
}

func (f *fakeDispatchRepo) byStatus(operationID string) map[model.DispatchStatus]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[model.DispatchStatus]int{}
	for _, rec := range f.records {
		if rec.OperationID == operationID {
			counts[rec.Status]++
		}
	}
	return counts
}
