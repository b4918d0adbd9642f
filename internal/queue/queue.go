package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned by Enqueue and Dequeue once the queue has been closed.
var ErrClosed = errors.New("queue: closed")

// Job is one URL together with its remaining attempt budget.
// Jobs are passed by value; a retry is a new Job with a smaller budget.
type Job struct {
	// ID identifies one seeded lifecycle. Retries keep the ID of the job
	// they were derived from.
	ID                string
	URL               string
	RemainingAttempts int
}

// NewJob creates a job for url with a fresh lifecycle ID.
func NewJob(url string, attempts int) Job {
	return Job{
		ID:                uuid.NewString(),
		URL:               url,
		RemainingAttempts: attempts,
	}
}

// Retry returns the job to enqueue after a failed attempt.
func (j Job) Retry() Job {
	j.RemainingAttempts--
	return j
}

// Exhausted reports whether the job has no attempts left.
func (j Job) Exhausted() bool {
	return j.RemainingAttempts <= 0
}

// Stats is a snapshot of queue bookkeeping.
type Stats struct {
	Enqueued    int64 // Total jobs ever enqueued, retries included
	Finalized   int64 // Total Finalize calls
	Outstanding int64 // Enqueued - Finalized
	Pending     int   // Jobs waiting to be dequeued
}

// Queue is an unbounded multi-producer, multi-consumer FIFO of jobs that
// tracks outstanding work. Every Enqueue must be matched by exactly one
// Finalize once the dequeued job has been fully handled.
type Queue struct {
	mu          sync.Mutex
	items       []Job
	enqueued    int64
	finalized   int64
	outstanding int64
	closed      bool

	// ready holds at most one wakeup for blocked consumers.
	ready chan struct{}
	// idle is closed while outstanding is zero.
	idle chan struct{}
	done chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		ready: make(chan struct{}, 1),
		idle:  idle,
		done:  make(chan struct{}),
	}
}

// Enqueue appends job to the back of the queue. It never blocks.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, job)
	q.enqueued++
	if q.outstanding == 0 {
		q.idle = make(chan struct{})
	}
	q.outstanding++
	q.mu.Unlock()

	q.wake()
	return nil
}

// Dequeue removes and returns the job at the front of the queue, blocking
// until one is available, the queue is closed, or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (Job, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Job{}, ErrClosed
		}
		if len(q.items) > 0 {
			job := q.items[0]
			q.items[0] = Job{}
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.wake()
			}
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return Job{}, ctx.Err()
		}
	}
}

// Finalize marks one previously enqueued job as fully handled, whatever its
// outcome. It panics if called more often than Enqueue.
func (q *Queue) Finalize() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.outstanding == 0 {
		panic("queue: negative outstanding count")
	}
	q.outstanding--
	q.finalized++
	if q.outstanding == 0 {
		close(q.idle)
	}
}

// AwaitEmpty blocks until every enqueued job has been finalized or ctx is done.
func (q *Queue) AwaitEmpty(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close wakes all blocked consumers and rejects further jobs.
// Pending jobs are dropped; a closed queue is not reused.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
}

// Len returns the number of jobs waiting to be dequeued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns a consistent snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Enqueued:    q.enqueued,
		Finalized:   q.finalized,
		Outstanding: q.outstanding,
		Pending:     len(q.items),
	}
}

func (q *Queue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
