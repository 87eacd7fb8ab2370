package state

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/optilist/optilist/pkg/models"
)

// job is one pending history write.
type job struct {
	workflow *models.Workflow
	entry    *models.LedgerEntry
}

// Writer consumes a bounded queue of history writes on a dedicated
// goroutine, so the orchestrator and the cost governor never block on disk.
// Failed writes are retried with a small backoff; a write that exhausts its
// retries is logged and counted, never silently discarded.
type Writer struct {
	db      *DB
	queue   chan job
	retries int
	backoff time.Duration

	// failedCount counts writes lost after exhausting retries.
	failedCount atomic.Uint64
	// droppedCount counts writes rejected because the queue was full.
	droppedCount atomic.Uint64
}

// NewWriter creates a Writer with the given queue capacity and retry policy.
func NewWriter(db *DB, queueSize, retries int, backoff time.Duration) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	if retries < 0 {
		retries = 0
	}
	return &Writer{
		db:      db,
		queue:   make(chan job, queueSize),
		retries: retries,
		backoff: backoff,
	}
}

// EnqueueWorkflow queues one terminal workflow record for persistence.
func (w *Writer) EnqueueWorkflow(workflow models.Workflow) {
	w.enqueue(job{workflow: &workflow})
}

// AppendLedgerEntry queues one ledger row for persistence. This satisfies
// the budget governor's sink interface.
func (w *Writer) AppendLedgerEntry(entry models.LedgerEntry) {
	w.enqueue(job{entry: &entry})
}

// enqueue adds a job, waiting briefly when the queue is full before
// counting the write as dropped.
func (w *Writer) enqueue(j job) {
	select {
	case w.queue <- j:
		return
	default:
	}

	select {
	case w.queue <- j:
	case <-time.After(time.Second):
		count := w.droppedCount.Add(1)
		log.Printf("[state] WARNING: persistence queue full, dropped write (total dropped: %d)", count)
	}
}

// Run consumes the queue until ctx is cancelled, then drains whatever is
// already queued before returning. It always returns nil so an errgroup
// peer shutting down doesn't surface a spurious error.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case j := <-w.queue:
			w.process(j)
		case <-ctx.Done():
			w.drain()
			return nil
		}
	}
}

// drain processes everything already queued without waiting for more.
func (w *Writer) drain() {
	for {
		select {
		case j := <-w.queue:
			w.process(j)
		default:
			return
		}
	}
}

// process performs one write with retries.
func (w *Writer) process(j job) {
	var lastErr error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 && w.backoff > 0 {
			time.Sleep(w.backoff)
		}

		lastErr = w.write(j)
		if lastErr == nil {
			return
		}
	}

	count := w.failedCount.Add(1)
	log.Printf("[state] write failed after %d attempts (total failed: %d): %v", w.retries+1, count, lastErr)
}

// write performs one write attempt.
func (w *Writer) write(j job) error {
	switch {
	case j.workflow != nil:
		return w.db.AppendWorkflow(*j.workflow)
	case j.entry != nil:
		return w.db.AppendLedgerEntry(*j.entry)
	default:
		return nil
	}
}

// FailedCount returns the number of writes lost after exhausting retries.
func (w *Writer) FailedCount() uint64 {
	return w.failedCount.Load()
}

// DroppedCount returns the number of writes rejected by a full queue.
func (w *Writer) DroppedCount() uint64 {
	return w.droppedCount.Load()
}
