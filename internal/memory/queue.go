package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IndexQueue coalesces indexing work: ids scheduled in a burst are deduplicated
// in a pending set and processed together after a quiet period. Processing
// happens on the timer goroutine; one failing id never blocks the others.
type IndexQueue struct {
	mu       sync.Mutex
	pending  map[string]struct{}
	timer    *time.Timer
	debounce time.Duration
	process  func(ctx context.Context, id string) error
	closed   bool
	flushing sync.WaitGroup
}

// NewIndexQueue creates a queue that invokes process for each pending id
// after the debounce interval elapses without new schedules arming a timer.
func NewIndexQueue(debounce time.Duration, process func(ctx context.Context, id string) error) *IndexQueue {
	if debounce <= 0 {
		debounce = time.Second
	}
	return &IndexQueue{
		pending:  make(map[string]struct{}),
		debounce: debounce,
		process:  process,
	}
}

// Schedule adds an id to the pending set and arms the flush timer if it is
// not already running. Duplicate ids collapse into one unit of work.
func (q *IndexQueue) Schedule(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.pending[id] = struct{}{}

	if q.timer == nil {
		q.timer = time.AfterFunc(q.debounce, func() {
			q.mu.Lock()
			q.timer = nil
			q.mu.Unlock()
			q.Flush(context.Background())
		})
	}
}

// Pending returns the number of ids awaiting processing.
func (q *IndexQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush drains the pending set and processes every drained id synchronously.
// The set is cleared before processing starts, so ids scheduled during a
// flush land in the next batch instead of being lost.
func (q *IndexQueue) Flush(ctx context.Context) {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	q.pending = make(map[string]struct{})
	q.flushing.Add(1)
	q.mu.Unlock()
	defer q.flushing.Done()

	for _, id := range ids {
		if err := q.process(ctx, id); err != nil {
			slog.Error("index queue: processing failed", "id", id, "error", err)
		}
	}
}

// Close stops the timer, rejects further schedules and synchronously flushes
// whatever is still pending.
func (q *IndexQueue) Close(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.mu.Unlock()

	q.Flush(ctx)
	q.flushing.Wait()
}
