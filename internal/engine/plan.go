package engine

import "time"

// Plan is the throughput policy for one operation: how recipients are
// batched, how wide a batch fans out, and how long to pause between
// batches. Computed once per operation from the total recipient count.
type Plan struct {
	BatchSize   int
	Concurrency int
	BatchDelay  time.Duration
}

// PlanFor picks the policy tier for a recipient count. Larger runs get
// bigger batches and more parallelism with a smaller fixed delay;
// small runs pace gently to avoid bursts against the shared account.
func PlanFor(total int) Plan {
	switch {
	case total <= 20:
		return Plan{BatchSize: 5, Concurrency: 2, BatchDelay: 200 * time.Millisecond}
	case total <= 50:
		return Plan{BatchSize: 8, Concurrency: 3, BatchDelay: 150 * time.Millisecond}
	case total <= 200:
		return Plan{BatchSize: 15, Concurrency: 5, BatchDelay: 100 * time.Millisecond}
	case total <= 500:
		return Plan{BatchSize: 25, Concurrency: 8, BatchDelay: 75 * time.Millisecond}
	case total <= 1000:
		return Plan{BatchSize: 40, Concurrency: 10, BatchDelay: 50 * time.Millisecond}
	default:
		return Plan{BatchSize: 60, Concurrency: 12, BatchDelay: 25 * time.Millisecond}
	}
}
