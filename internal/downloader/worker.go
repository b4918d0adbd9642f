package downloader

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/ligustah/picslurp/internal/queue"
)

// Outcome is how a single dequeued job ended.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeSkipped
	OutcomeRetried
	OutcomeGaveUp
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRetried:
		return "retried"
	case OutcomeGaveUp:
		return "gave up"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// worker paces, dequeues and processes jobs until the queue is closed or
// ctx is cancelled.
func (d *Downloader) worker(ctx context.Context, pacer *Pacer, log *logrus.Entry) {
	log.Debug("Worker starting")
	defer log.Debug("Worker finished")

	for {
		if err := pacer.Wait(ctx); err != nil {
			return
		}
		job, err := d.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		d.process(ctx, job, log)
	}
}

// process handles one dequeued job. The queue is finalized exactly once per
// call on every path, including panics; a retry is enqueued before the
// finalize so the outstanding count never touches zero while work remains.
func (d *Downloader) process(ctx context.Context, job queue.Job, workerLog *logrus.Entry) (outcome Outcome) {
	log := workerLog.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"url":       job.URL,
		"remaining": job.RemainingAttempts,
	})
	var size int64

	defer d.queue.Finalize()
	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack_trace", string(debug.Stack())).Errorf("Panic while processing job: %v", r)
			outcome = d.fail(ctx, job, fmt.Errorf("panic: %v", r), log)
		}
		d.record(outcome, size)
	}()

	if d.opts.Progress != nil {
		d.opts.Progress.JobStarted()
	}
	log.WithField("queued", d.queue.Len()).Debug("Job dequeued")

	if job.Exhausted() {
		log.Warn("Giving up, retry budget exhausted")
		return OutcomeGaveUp
	}

	key := d.namer.KeyFor(job.URL)
	log = log.WithField("key", key)

	exists, err := d.namer.Exists(ctx, key)
	if err != nil {
		return d.fail(ctx, job, fmt.Errorf("check %s: %w", key, err), log)
	}
	if exists {
		log.Info("Already stored, skipping")
		return OutcomeSkipped
	}

	d.count.fetches.Add(1)
	body, err := d.fetcher.Fetch(ctx, job.URL)
	if err != nil {
		return d.fail(ctx, job, err, log)
	}

	if err := d.persister.Write(ctx, key, body); err != nil {
		return d.fail(ctx, job, fmt.Errorf("write %s: %w", key, err), log)
	}

	size = int64(len(body))
	log.WithField("bytes", size).Info("Saved")
	return OutcomeSucceeded
}

// fail re-enqueues job with one attempt fewer. Nothing is re-enqueued once
// the run is cancelled.
func (d *Downloader) fail(ctx context.Context, job queue.Job, err error, log *logrus.Entry) Outcome {
	if ctx.Err() != nil {
		log.WithError(err).Debug("Run cancelled, abandoning job")
		return OutcomeAbandoned
	}

	next := job.Retry()
	if qerr := d.queue.Enqueue(next); qerr != nil {
		log.WithError(qerr).Warn("Could not requeue job")
		return OutcomeAbandoned
	}

	log.WithError(err).WithFields(logrus.Fields{
		"retry":       d.opts.MaxRetries - next.RemainingAttempts,
		"max_retries": d.opts.MaxRetries,
	}).Warnf("Fetch failed, retry %d of %d", d.opts.MaxRetries-next.RemainingAttempts, d.opts.MaxRetries)
	return OutcomeRetried
}

func (d *Downloader) record(outcome Outcome, size int64) {
	p := d.opts.Progress

	switch outcome {
	case OutcomeSucceeded:
		d.count.succeeded.Add(1)
		d.count.bytes.Add(size)
		if p != nil {
			p.JobSucceeded(size)
		}
	case OutcomeSkipped:
		d.count.skipped.Add(1)
		if p != nil {
			p.JobSkipped()
		}
	case OutcomeRetried:
		d.count.retries.Add(1)
		if p != nil {
			p.JobRetried()
		}
	case OutcomeGaveUp:
		d.count.gaveUp.Add(1)
		if p != nil {
			p.JobGaveUp()
		}
	case OutcomeAbandoned:
		d.count.abandoned.Add(1)
		if p != nil {
			p.JobAbandoned()
		}
	}
}
