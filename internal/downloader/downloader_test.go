package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	picshttp "github.com/ligustah/picslurp/internal/http"
	"github.com/ligustah/picslurp/internal/progress"
	"github.com/ligustah/picslurp/internal/storage"
)

var errTransient = errors.New("transient")

// fakeFetcher counts calls per URL and delegates the result to fn.
type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, url string, call int) ([]byte, error)
}

func newFakeFetcher(fn func(ctx context.Context, url string, call int) ([]byte, error)) *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), fn: fn}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	call := f.calls[url]
	f.mu.Unlock()
	return f.fn(ctx, url, call)
}

func (f *fakeFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })
	return storage.New(bucket, storage.DefaultOptions())
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func run(t *testing.T, f Fetcher, store *storage.Store, opts Options, urls []string) Summary {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	d := New(f, store, store, opts)
	require.NoError(t, d.Seed(urls))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	summary, err := d.Run(ctx)
	require.NoError(t, err)
	return summary
}

func TestRunMixedOutcomes(t *testing.T) {
	const (
		bad  = "http://h.example/a/x"
		good = "http://h.example/a/y"
	)
	f := newFakeFetcher(func(_ context.Context, url string, _ int) ([]byte, error) {
		if url == bad {
			return nil, errTransient
		}
		return []byte("Y"), nil
	})
	store := newStore(t)

	summary := run(t, f, store, Options{Workers: 4, MaxRetries: 2}, []string{bad, good, bad})

	// Two independent jobs for the failing URL, two fetches each.
	assert.Equal(t, 4, f.Calls(bad))
	assert.Equal(t, 1, f.Calls(good))
	assert.Equal(t, 5, summary.Fetches)

	assert.Equal(t, 3, summary.Jobs)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.GaveUp)
	assert.Equal(t, 4, summary.Retries)
	assert.Equal(t, int64(1), summary.Bytes)

	assert.Equal(t, int64(7), summary.Queue.Enqueued)
	assert.Equal(t, int64(7), summary.Queue.Finalized)
	assert.Zero(t, summary.Queue.Outstanding)
	assert.Zero(t, summary.Queue.Pending)

	ctx := context.Background()
	ok, err := store.Exists(ctx, store.KeyFor(good))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, store.KeyFor(bad))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunRetryBudget(t *testing.T) {
	for _, retries := range []int{1, 3, 5} {
		t.Run(fmt.Sprintf("max_retries=%d", retries), func(t *testing.T) {
			f := newFakeFetcher(func(context.Context, string, int) ([]byte, error) {
				return nil, errTransient
			})

			summary := run(t, f, newStore(t), Options{Workers: 2, MaxRetries: retries}, []string{"http://h.example/1"})

			assert.Equal(t, retries, f.Total())
			assert.Equal(t, 1, summary.GaveUp)
			assert.Equal(t, int64(retries+1), summary.Queue.Enqueued)
		})
	}
}

func TestRunZeroBudget(t *testing.T) {
	for _, retries := range []int{0, -1} {
		t.Run(fmt.Sprintf("max_retries=%d", retries), func(t *testing.T) {
			f := newFakeFetcher(func(context.Context, string, int) ([]byte, error) {
				return []byte("ok"), nil
			})

			summary := run(t, f, newStore(t), Options{Workers: 2, MaxRetries: retries}, []string{"http://h.example/1"})

			assert.Zero(t, f.Total())
			assert.Equal(t, 1, summary.GaveUp)
			assert.Equal(t, int64(1), summary.Queue.Enqueued)
		})
	}
}

func TestRunEventualSuccess(t *testing.T) {
	f := newFakeFetcher(func(_ context.Context, _ string, call int) ([]byte, error) {
		if call < 3 {
			return nil, errTransient
		}
		return []byte("third time"), nil
	})

	summary := run(t, f, newStore(t), Options{Workers: 3, MaxRetries: 5}, []string{"http://h.example/flaky"})

	assert.Equal(t, 3, f.Total())
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Retries)
	assert.Zero(t, summary.GaveUp)
}

func TestRunIdempotent(t *testing.T) {
	urls := []string{"http://h.example/1", "http://h.example/2", "http://h.example/3"}
	store := newStore(t)

	first := newFakeFetcher(func(_ context.Context, url string, _ int) ([]byte, error) {
		return []byte(url), nil
	})
	summary := run(t, first, store, Options{Workers: 2, MaxRetries: 5}, urls)
	assert.Equal(t, 3, summary.Succeeded)

	second := newFakeFetcher(func(context.Context, string, int) ([]byte, error) {
		t.Error("fetch must not be called for stored keys")
		return nil, errTransient
	})
	summary = run(t, second, store, Options{Workers: 2, MaxRetries: 5}, urls)
	assert.Zero(t, second.Total())
	assert.Equal(t, 3, summary.Skipped)
	assert.Zero(t, summary.Fetches)
}

func TestRunSkipsPreexistingKey(t *testing.T) {
	const url = "http://h.example/existing.jpg"
	store := newStore(t)
	require.NoError(t, store.Write(context.Background(), store.KeyFor(url), []byte("old")))

	f := newFakeFetcher(func(context.Context, string, int) ([]byte, error) {
		return []byte("new"), nil
	})
	summary := run(t, f, store, Options{Workers: 1, MaxRetries: 5}, []string{url})

	assert.Zero(t, f.Total())
	assert.Equal(t, 1, summary.Skipped)
}

func TestRunDuplicateURLs(t *testing.T) {
	const url = "http://h.example/dup.jpg"
	f := newFakeFetcher(func(context.Context, string, int) ([]byte, error) {
		return []byte("x"), nil
	})

	summary := run(t, f, newStore(t), Options{Workers: 1, MaxRetries: 5}, []string{url, url})

	// With a single worker the second job sees the stored key.
	assert.Equal(t, 1, f.Total())
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)
}

func TestRunWorkerAndJobCounts(t *testing.T) {
	tests := []struct {
		workers int
		jobs    int
	}{
		{1, 0},
		{1, 1},
		{1, 20},
		{4, 1},
		{64, 3},
		{8, 200},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("workers=%d/jobs=%d", tt.workers, tt.jobs), func(t *testing.T) {
			urls := make([]string, tt.jobs)
			for i := range urls {
				urls[i] = fmt.Sprintf("http://h.example/%d.jpg", i)
			}
			f := newFakeFetcher(func(context.Context, string, int) ([]byte, error) {
				return []byte("ok"), nil
			})

			summary := run(t, f, newStore(t), Options{Workers: tt.workers, MaxRetries: 5}, urls)

			assert.Equal(t, tt.jobs, summary.Succeeded)
			assert.Equal(t, int64(tt.jobs), summary.Queue.Finalized)
			assert.Zero(t, summary.Queue.Outstanding)
		})
	}
}

func TestRunCancel(t *testing.T) {
	const delay = 50 * time.Millisecond
	var started atomic.Int32
	f := newFakeFetcher(func(ctx context.Context, _ string, _ int) ([]byte, error) {
		started.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	store := newStore(t)

	d := New(f, store, store, Options{Workers: 4, MaxRetries: 5, Delay: delay, Logger: quietLogger()})
	urls := make([]string, 100)
	for i := range urls {
		urls[i] = fmt.Sprintf("http://h.example/%d.jpg", i)
	}
	require.NoError(t, d.Seed(urls))

	ctx, cancel := context.WithCancel(context.Background())
	cancelledAt := make(chan time.Time, 1)
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancelledAt <- time.Now()
		cancel()
	}()

	summary, err := d.Run(ctx)
	returned := time.Now()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	// Run must return within one pacing interval of the cancellation.
	assert.Less(t, returned.Sub(<-cancelledAt), delay+25*time.Millisecond)
	assert.Positive(t, started.Load())
	assert.Zero(t, summary.Retries, "cancelled fetches must not be retried")
	assert.GreaterOrEqual(t, summary.Abandoned, int(started.Load()))
	assert.Positive(t, summary.Queue.Outstanding)
}

func TestRunRecoversPanic(t *testing.T) {
	f := newFakeFetcher(func(_ context.Context, _ string, call int) ([]byte, error) {
		if call == 1 {
			panic("boom")
		}
		return []byte("after panic"), nil
	})

	summary := run(t, f, newStore(t), Options{Workers: 2, MaxRetries: 3}, []string{"http://h.example/p.jpg"})

	assert.Equal(t, 2, f.Total())
	assert.Equal(t, 1, summary.Retries)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, int64(2), summary.Queue.Finalized)
}

// flakyStore fails the first Exists call for every key.
type flakyStore struct {
	*storage.Store
	mu   sync.Mutex
	seen map[string]bool
}

func (s *flakyStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	first := !s.seen[key]
	s.seen[key] = true
	s.mu.Unlock()
	if first {
		return false, errors.New("storage unavailable")
	}
	return s.Store.Exists(ctx, key)
}

func TestRunRetriesStorageErrors(t *testing.T) {
	store := &flakyStore{Store: newStore(t), seen: make(map[string]bool)}
	f := newFakeFetcher(func(context.Context, string, int) ([]byte, error) {
		return []byte("ok"), nil
	})

	d := New(f, store, store, Options{Workers: 2, MaxRetries: 2, Logger: quietLogger()})
	require.NoError(t, d.Seed([]string{"http://h.example/s.jpg"}))
	summary, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.Total())
	assert.Equal(t, 1, summary.Retries)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestRunPacing(t *testing.T) {
	f := newFakeFetcher(func(context.Context, string, int) ([]byte, error) {
		return []byte("ok"), nil
	})
	urls := make([]string, 5)
	for i := range urls {
		urls[i] = fmt.Sprintf("http://h.example/%d.jpg", i)
	}

	start := time.Now()
	summary := run(t, f, newStore(t), Options{Workers: 8, MaxRetries: 5, Delay: 30 * time.Millisecond}, urls)
	elapsed := time.Since(start)

	assert.Equal(t, 5, summary.Succeeded)
	// The shared pacer admits one job per tick regardless of worker count.
	assert.GreaterOrEqual(t, elapsed, 5*30*time.Millisecond)
}

func TestRunOnce(t *testing.T) {
	f := newFakeFetcher(func(context.Context, string, int) ([]byte, error) {
		return []byte("ok"), nil
	})
	store := newStore(t)
	d := New(f, store, store, Options{MaxRetries: 1, Logger: quietLogger()})
	require.NoError(t, d.Seed([]string{"http://h.example/a.jpg"}))

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	_, err = d.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
	assert.ErrorIs(t, d.Seed([]string{"http://h.example/b.jpg"}), ErrAlreadyRun)
}

func TestRunWithProgress(t *testing.T) {
	f := newFakeFetcher(func(_ context.Context, url string, _ int) ([]byte, error) {
		if url == "http://h.example/bad" {
			return nil, errTransient
		}
		return []byte("12345"), nil
	})
	reporter := progress.NewReporter(progress.Options{TotalJobs: 2, Workers: 2, Output: io.Discard})
	reporter.Start()

	run(t, f, newStore(t), Options{Workers: 2, MaxRetries: 2, Progress: reporter},
		[]string{"http://h.example/good", "http://h.example/bad"})
	reporter.Stop()

	assert.Equal(t, 2, reporter.Done())
}

func TestRunHTTPEndToEnd(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Referer") != "http://www.example.com" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/missing.jpg":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Write([]byte("\xff\xd8\xff\xe0 jpeg"))
		}
	}))
	defer server.Close()

	client := picshttp.NewClient(picshttp.Options{
		Timeout:       time.Second,
		MaxConcurrent: 4,
		Headers: picshttp.HeaderRules{
			Rules: []picshttp.HeaderRule{{
				Prefix:  server.URL + "/",
				Headers: map[string]string{"Referer": "http://www.example.com"},
			}},
		},
	})
	store := newStore(t)

	urls := []string{server.URL + "/a.jpg", server.URL + "/b.jpg", server.URL + "/missing.jpg"}
	summary := run(t, client, store, Options{Workers: 4, MaxRetries: 2}, urls)

	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.GaveUp)
	assert.Equal(t, int32(4), hits.Load())

	data, err := store.Bucket().ReadAll(context.Background(), store.KeyFor(urls[0]))
	require.NoError(t, err)
	assert.Equal(t, "\xff\xd8\xff\xe0 jpeg", string(data))
}
