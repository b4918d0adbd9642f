package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ligustah/picslurp/internal/config"
	"github.com/ligustah/picslurp/internal/storage"
	"github.com/ligustah/picslurp/internal/urllist"
)

// StatusResult counts stored and missing URLs in a list.
type StatusResult struct {
	Total   int
	Stored  int
	Missing []string
}

// runStatus reports how many URLs of the input list are already stored,
// without fetching anything.
func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	common := addCommonFlags(fs)
	verbose := fs.Bool("v", false, "List missing URLs")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: picslurp status [options]

Report which URLs in a list already have a stored image.
Does not contact the image servers.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := common.load(config.Config{})
	if err != nil {
		return configError(err)
	}

	urls, err := urllist.Load(cfg.Input)
	if err != nil {
		return configError(err)
	}

	ctx, cancel := signalContext(nil)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
		return ExitStorageError
	}
	defer closeStore()

	result, err := checkStatus(ctx, store, urls)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	printStatus(os.Stdout, cfg, result, *verbose)
	return ExitSuccess
}

func checkStatus(ctx context.Context, store *storage.Store, urls []string) (StatusResult, error) {
	result := StatusResult{Total: len(urls)}
	for _, u := range urls {
		ok, err := store.Exists(ctx, store.KeyFor(u))
		if err != nil {
			return result, err
		}
		if ok {
			result.Stored++
		} else {
			result.Missing = append(result.Missing, u)
		}
	}
	return result, nil
}

func printStatus(w io.Writer, cfg config.Config, result StatusResult, verbose bool) {
	fmt.Fprintf(w, "List: %s\n", cfg.Input)
	fmt.Fprintf(w, "Storage: %s\n", destination(cfg))
	fmt.Fprintf(w, "URLs: %d\n", result.Total)
	fmt.Fprintf(w, "Stored: %d\n", result.Stored)
	fmt.Fprintf(w, "Missing: %d\n", len(result.Missing))

	if verbose && len(result.Missing) > 0 {
		fmt.Fprintln(w, "\nMissing URLs:")
		for _, u := range result.Missing {
			fmt.Fprintf(w, "  - %s\n", u)
		}
	}
}
