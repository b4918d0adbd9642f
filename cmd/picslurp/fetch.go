package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ligustah/picslurp/internal/config"
	"github.com/ligustah/picslurp/internal/downloader"
	picshttp "github.com/ligustah/picslurp/internal/http"
	"github.com/ligustah/picslurp/internal/progress"
	"github.com/ligustah/picslurp/internal/urllist"
)

var errInvalidArgs = errors.New("invalid arguments")

// fetchFlags are the flags of the fetch command.
type fetchFlags struct {
	common       *commonFlags
	workers      *int
	poolSize     *int
	delay        *time.Duration
	timeout      *time.Duration
	maxRetries   *int
	maxBodySize  *string
	showProgress *bool
}

func addFetchFlags(fs *flag.FlagSet) *fetchFlags {
	return &fetchFlags{
		common:       addCommonFlags(fs),
		workers:      fs.Int("workers", 0, "Number of worker loops (default 16)"),
		poolSize:     fs.Int("pool-size", 0, "Maximum concurrent HTTP requests (default 512)"),
		delay:        fs.Duration("delay", 0, "Pacing interval shared by all workers, 0 disables (default 250ms)"),
		timeout:      fs.Duration("timeout", 0, "Per-request timeout (default 8s)"),
		maxRetries:   fs.Int("max-retries", 0, "Attempt budget per URL (default 5)"),
		maxBodySize:  fs.String("max-body-size", "", "Largest accepted image (default 32MB)"),
		showProgress: fs.Bool("progress", false, "Show progress output"),
	}
}

// load resolves the fetch configuration. -delay and -progress have
// meaningful zero values, so they apply whenever they are given explicitly.
func (f *fetchFlags) load() (config.Config, error) {
	override := config.Config{
		Workers:    *f.workers,
		PoolSize:   *f.poolSize,
		Timeout:    *f.timeout,
		MaxRetries: *f.maxRetries,
	}
	if *f.maxBodySize != "" {
		size, err := progress.ParseBytes(*f.maxBodySize)
		if err != nil {
			return config.Config{}, fmt.Errorf("%w: max body size: %w", errInvalidArgs, err)
		}
		override.MaxBodySize = size
	}

	cfg, err := f.common.load(override)
	if err != nil {
		return config.Config{}, err
	}
	if f.common.isSet("delay") {
		if *f.delay < 0 {
			return config.Config{}, errors.New("config: delay must not be negative")
		}
		cfg.Delay = *f.delay
	}
	if f.common.isSet("progress") {
		cfg.Progress = *f.showProgress
	}
	return cfg, nil
}

// runFetch downloads every URL in the input list into the output directory
// or bucket. URLs whose image is already stored are skipped, so a run can be
// repeated until everything is in place.
func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	flags := addFetchFlags(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: picslurp fetch [options]

Download every image in a URL list. Images are stored under a name derived
from a hash of their URL, and images already stored are skipped.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg, err := flags.load()
	if errors.Is(err, errInvalidArgs) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if err != nil {
		return configError(err)
	}

	ctx, cancel := signalContext(func() {
		fmt.Fprintln(os.Stderr, "\n[picslurp] Received interrupt, shutting down...")
	})
	defer cancel()

	return fetch(ctx, cfg)
}

// fetch runs one download pass. Cancelling ctx stops it with ExitCancelled.
func fetch(ctx context.Context, cfg config.Config) int {
	log := newLogger(cfg.LogLevel)

	urls, err := urllist.Load(cfg.Input)
	if err != nil {
		return configError(err)
	}

	store, closeStore, err := openStore(ctx, cfg, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
		return ExitStorageError
	}
	defer closeStore()

	client := picshttp.NewClient(picshttp.Options{
		MaxIdleConnsPerHost: cfg.Workers * 2,
		Timeout:             cfg.Timeout,
		MaxConcurrent:       cfg.PoolSize,
		MaxBodySize:         cfg.MaxBodySize,
		Headers:             cfg.HeaderRules(),
	})

	var reporter *progress.Reporter
	var d *downloader.Downloader
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalJobs:      len(urls),
			Workers:        cfg.Workers,
			UpdateInterval: time.Second,
			Source:         cfg.Input,
			QueueLen:       func() int { return d.QueueLen() },
		})
	}

	d = downloader.New(client, store, store, downloader.Options{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Delay:      cfg.Delay,
		Progress:   reporter,
		Logger:     log,
	})

	if err := d.Seed(urls); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	fmt.Fprintf(os.Stderr, "[picslurp] Fetching %d URLs from %s into %s\n", len(urls), cfg.Input, destination(cfg))
	if reporter != nil {
		reporter.Start()
	}

	summary, err := d.Run(ctx)
	if reporter != nil {
		reporter.Stop()
	}
	if err != nil {
		if errors.Is(err, downloader.ErrCancelled) {
			fmt.Fprintln(os.Stderr, "[picslurp] You have canceled all jobs.")
			return ExitCancelled
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	printSummary(summary)
	return ExitSuccess
}

func printSummary(s downloader.Summary) {
	fmt.Fprintf(os.Stderr, "[picslurp] Done: %d fetched, %d already stored, %d given up (%d retries, %d requests)\n",
		s.Succeeded, s.Skipped, s.GaveUp, s.Retries, s.Fetches)
	fmt.Fprintf(os.Stderr, "[picslurp] Stored %s in %s\n",
		progress.FormatBytes(s.Bytes), s.Duration.Round(time.Millisecond))
}
