// Package progress provides progress reporting for fetch runs.
//
// This package outputs human-readable progress information to stderr,
// including completed jobs, retries, queue depth and transfer speed.
//
// # Usage
//
//	reporter := progress.NewReporter(Options{
//	    TotalJobs: len(urls),
//	    Workers:   16,
//	    Source:    "data.txt",
//	    QueueLen:  q.Len,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	// Exactly one outcome call per JobStarted
//	reporter.JobStarted()
//	reporter.JobSucceeded(len(body))
//
// # Output Format
//
//	[picslurp] Fetching: data.txt
//	[picslurp] Jobs: 400 | Workers: 16
//	[picslurp] Progress: 45.2% | 181/400 jobs | 16 in-progress | 203 queued | 21.40 MB at 1.20 MB/s
//	[picslurp] Jobs: 170 fetched | 9 skipped | 12 retries | 2 given up
package progress
