// Package queue provides the in-memory job queue that drives a fetch run.
//
// A [Queue] is an unbounded FIFO shared by many producers and consumers. It
// also counts outstanding work: every [Queue.Enqueue] adds one unit and every
// [Queue.Finalize] removes one. [Queue.AwaitEmpty] returns once the count is
// back to zero, which only happens after all seeded jobs and all of their
// retries have been handled.
//
// # Usage
//
//	q := queue.New()
//	q.Enqueue(queue.NewJob(url, maxRetries))
//
//	// consumer
//	job, err := q.Dequeue(ctx)
//	if err != nil {
//	    return
//	}
//	defer q.Finalize()
//	if failed && !job.Exhausted() {
//	    q.Enqueue(job.Retry()) // before the deferred Finalize runs
//	}
//
//	// coordinator
//	err := q.AwaitEmpty(ctx)
//
// A retry must be enqueued before the current job is finalized; otherwise the
// count can touch zero and release the barrier while work remains.
package queue
