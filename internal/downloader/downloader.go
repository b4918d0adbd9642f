package downloader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ligustah/picslurp/internal/progress"
	"github.com/ligustah/picslurp/internal/queue"
)

// ErrCancelled is returned by Run when the context is cancelled before all
// jobs have been finalized. It wraps the context error.
var ErrCancelled = errors.New("downloader: cancelled")

// ErrAlreadyRun is returned by Run and Seed once a Downloader has been run.
var ErrAlreadyRun = errors.New("downloader: already run")

// Fetcher returns the body for a URL. Any error is treated as transient.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Namer maps a URL to its storage key and reports whether the key exists.
type Namer interface {
	KeyFor(url string) string
	Exists(ctx context.Context, key string) (bool, error)
}

// Persister stores fetched bytes under a key.
type Persister interface {
	Write(ctx context.Context, key string, data []byte) error
}

// Options configures the downloader.
type Options struct {
	// Workers is the number of concurrent worker loops.
	// Default: 16
	Workers int

	// MaxRetries is the attempt budget each seeded job starts with. It is
	// used as given: a budget of zero or less gives every job up without
	// fetching it.
	MaxRetries int

	// Delay is the pacing interval shared by all workers: at most one job is
	// dequeued per Delay across the whole pool. Zero disables pacing.
	Delay time.Duration

	// Progress is an optional progress reporter.
	Progress *progress.Reporter

	// Logger receives structured logs. Default: logrus.StandardLogger().
	Logger *logrus.Logger
}

// Summary describes a finished or cancelled run.
type Summary struct {
	Jobs      int // Seeded jobs
	Succeeded int
	Skipped   int
	GaveUp    int
	Retries   int
	Abandoned int // Jobs dropped because the run was cancelled
	Fetches   int // Fetcher invocations
	Bytes     int64
	Duration  time.Duration
	Queue     queue.Stats
}

// Downloader seeds a job queue from a URL list and drains it with a fixed
// pool of workers until every job, retries included, has been finalized.
type Downloader struct {
	fetcher   Fetcher
	namer     Namer
	persister Persister
	opts      Options
	log       *logrus.Logger
	queue     *queue.Queue

	mu    sync.Mutex
	jobs  int
	ran   bool
	count counters
}

type counters struct {
	succeeded atomic.Int64
	skipped   atomic.Int64
	gaveUp    atomic.Int64
	retries   atomic.Int64
	abandoned atomic.Int64
	fetches   atomic.Int64
	bytes     atomic.Int64
}

// New creates a Downloader. Storage is usually one value implementing both
// Namer and Persister.
func New(fetcher Fetcher, namer Namer, persister Persister, opts Options) *Downloader {
	if opts.Workers <= 0 {
		opts.Workers = 16
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Downloader{
		fetcher:   fetcher,
		namer:     namer,
		persister: persister,
		opts:      opts,
		log:       opts.Logger,
		queue:     queue.New(),
	}
}

// Seed enqueues one job per URL with a full attempt budget. Duplicate URLs
// become independent jobs.
func (d *Downloader) Seed(urls []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ran {
		return ErrAlreadyRun
	}
	for _, u := range urls {
		if err := d.queue.Enqueue(queue.NewJob(u, d.opts.MaxRetries)); err != nil {
			return fmt.Errorf("seed %s: %w", u, err)
		}
		d.jobs++
	}
	return nil
}

// QueueLen returns the number of jobs waiting to be dequeued.
func (d *Downloader) QueueLen() int {
	return d.queue.Len()
}

// Run starts the workers and blocks until all seeded jobs and their retries
// have been finalized. If ctx is cancelled first, Run stops the workers and
// returns an error wrapping ErrCancelled. A Downloader can be run once.
func (d *Downloader) Run(ctx context.Context) (Summary, error) {
	d.mu.Lock()
	if d.ran {
		d.mu.Unlock()
		return Summary{}, ErrAlreadyRun
	}
	d.ran = true
	jobs := d.jobs
	d.mu.Unlock()

	start := time.Now()
	d.log.WithFields(logrus.Fields{
		"jobs":        jobs,
		"workers":     d.opts.Workers,
		"max_retries": d.opts.MaxRetries,
		"delay":       d.opts.Delay,
	}).Info("Run starting")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pacer := NewPacer(d.opts.Delay)
	defer pacer.Stop()

	var wg sync.WaitGroup
	for i := 1; i <= d.opts.Workers; i++ {
		wg.Add(1)
		workerLog := d.log.WithField("worker_id", i)
		go func() {
			defer wg.Done()
			d.worker(runCtx, pacer, workerLog)
		}()
	}

	waitErr := d.queue.AwaitEmpty(ctx)

	cancel()
	d.queue.Close()
	wg.Wait()

	summary := d.summary(jobs, time.Since(start))
	fields := logrus.Fields{
		"succeeded": summary.Succeeded,
		"skipped":   summary.Skipped,
		"gave_up":   summary.GaveUp,
		"retries":   summary.Retries,
		"fetches":   summary.Fetches,
		"duration":  summary.Duration,
	}

	if waitErr != nil {
		d.log.WithFields(fields).WithField("outstanding", summary.Queue.Outstanding).Warn("Run cancelled")
		return summary, fmt.Errorf("%w: %w", ErrCancelled, waitErr)
	}

	d.log.WithFields(fields).Info("Run finished")
	return summary, nil
}

func (d *Downloader) summary(jobs int, elapsed time.Duration) Summary {
	return Summary{
		Jobs:      jobs,
		Succeeded: int(d.count.succeeded.Load()),
		Skipped:   int(d.count.skipped.Load()),
		GaveUp:    int(d.count.gaveUp.Load()),
		Retries:   int(d.count.retries.Load()),
		Abandoned: int(d.count.abandoned.Load()),
		Fetches:   int(d.count.fetches.Load()),
		Bytes:     d.count.bytes.Load(),
		Duration:  elapsed,
		Queue:     d.queue.Stats(),
	}
}
