package progress

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalJobs is the number of seeded jobs (retries not included).
	TotalJobs int

	// Workers is the number of parallel workers.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Source names the URL list being fetched (for display).
	Source string

	// QueueLen reports the number of jobs waiting in the queue. Optional.
	QueueLen func() int
}

// Reporter outputs human-readable progress information.
// All counting methods are safe for concurrent use.
type Reporter struct {
	opts Options

	mu             sync.Mutex
	completedBytes atomic.Int64
	succeeded      atomic.Int32
	skipped        atomic.Int32
	gaveUp         atomic.Int32
	retries        atomic.Int32
	inProgress     atomic.Int32
	startTime      time.Time
	lastUpdate     time.Time
	lastBytes      int64
	stopCh         chan struct{}
	doneCh         chan struct{}
	started        bool
	stopped        bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[picslurp] Fetching: %s\n", r.opts.Source)
	fmt.Fprintf(r.opts.Output, "[picslurp] Jobs: %d | Workers: %d\n", r.opts.TotalJobs, r.opts.Workers)

	go r.updateLoop()
}

// Stop stops the reporter and prints the final status. It waits for the
// final status to be written.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	close(r.stopCh)
	if started {
		<-r.doneCh
	}
}

// JobStarted marks a dequeued job as in progress.
func (r *Reporter) JobStarted() {
	r.inProgress.Add(1)
}

// JobSucceeded marks a job as fetched and persisted.
func (r *Reporter) JobSucceeded(size int64) {
	r.completedBytes.Add(size)
	r.succeeded.Add(1)
	r.inProgress.Add(-1)
}

// JobSkipped marks a job whose target already existed.
func (r *Reporter) JobSkipped() {
	r.skipped.Add(1)
	r.inProgress.Add(-1)
}

// JobRetried marks a failed attempt that was queued again.
func (r *Reporter) JobRetried() {
	r.retries.Add(1)
	r.inProgress.Add(-1)
}

// JobGaveUp marks a job whose attempts are exhausted.
func (r *Reporter) JobGaveUp() {
	r.gaveUp.Add(1)
	r.inProgress.Add(-1)
}

// JobAbandoned marks a job dropped because the run was cancelled.
func (r *Reporter) JobAbandoned() {
	r.inProgress.Add(-1)
}

// Done returns the number of jobs that reached a final state.
func (r *Reporter) Done() int {
	return int(r.succeeded.Load() + r.skipped.Load() + r.gaveUp.Load())
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	completed := r.completedBytes.Load()
	done := r.Done()

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(completed-r.lastBytes) / elapsed

	r.lastUpdate = now
	r.lastBytes = completed

	var percent float64
	if r.opts.TotalJobs > 0 {
		percent = float64(done) / float64(r.opts.TotalJobs) * 100
	}

	queued := "-"
	if r.opts.QueueLen != nil {
		queued = strconv.Itoa(r.opts.QueueLen())
	}

	fmt.Fprintf(r.opts.Output, "\r[picslurp] Progress: %.1f%% | %d/%d jobs | %d in-progress | %s queued | %s at %s/s    ",
		percent,
		done,
		r.opts.TotalJobs,
		r.inProgress.Load(),
		queued,
		formatBytes(completed),
		formatBytes(int64(speed)),
	)
	fmt.Fprintf(r.opts.Output, "\n[picslurp] Jobs: %d fetched | %d skipped | %d retries | %d given up    \033[A",
		r.succeeded.Load(),
		r.skipped.Load(),
		r.retries.Load(),
		r.gaveUp.Load(),
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	completed := r.completedBytes.Load()
	duration := time.Since(r.startTime)
	var avgSpeed float64
	if s := duration.Seconds(); s > 0 {
		avgSpeed = float64(completed) / s
	}

	fmt.Fprintf(r.opts.Output, "\r[picslurp] Progress: %d/%d jobs | %s                    \n",
		r.Done(),
		r.opts.TotalJobs,
		formatBytes(completed),
	)
	fmt.Fprintf(r.opts.Output, "[picslurp] Jobs: %d fetched | %d skipped | %d retries | %d given up    \n",
		r.succeeded.Load(),
		r.skipped.Load(),
		r.retries.Load(),
		r.gaveUp.Load(),
	)
	fmt.Fprintf(r.opts.Output, "[picslurp] Total time: %s | Average speed: %s/s\n",
		formatDuration(duration),
		formatBytes(int64(avgSpeed)),
	)
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}

// ParseBytes parses a human-readable byte string (e.g., "32MB").
// Units are binary: 1KB and 1KiB are both 1024 bytes.
func ParseBytes(s string) (int64, error) {
	var multiplier int64 = 1
	s = strings.TrimSpace(s)

	units := []struct {
		suffix string
		mult   int64
	}{
		{"TiB", 1 << 40}, {"GiB", 1 << 30}, {"MiB", 1 << 20}, {"KiB", 1 << 10},
		{"TB", 1 << 40}, {"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte string: %s", s)
	}

	return int64(value * float64(multiplier)), nil
}
