// Package downloader drains a queue of image URLs into storage with a fixed
// pool of workers.
//
// # Usage
//
//	d := downloader.New(client, store, store, downloader.Options{
//	    Workers:    16,
//	    MaxRetries: 5,
//	    Delay:      250 * time.Millisecond,
//	})
//	if err := d.Seed(urls); err != nil {
//	    return err
//	}
//	summary, err := d.Run(ctx)
//
// # Jobs and retries
//
// Each URL becomes a job carrying an attempt budget of MaxRetries. A worker
// that dequeues a job with no budget left drops it. Otherwise it derives the
// storage key, skips the job if the key already exists, and fetches and
// writes the body. Any failure, a recovered panic included, enqueues a copy
// of the job with one attempt fewer. A job is therefore fetched at most
// MaxRetries times.
//
// # Completion
//
// Run returns once every enqueued job has been finalized. Workers are
// paced by a single ticker shared by the pool, so at most one job is
// dequeued per Delay. Cancelling the context stops the pool within one
// pacing interval and leaves in-flight jobs unfinished.
package downloader
