package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ligustah/picslurp/internal/config"
	"github.com/ligustah/picslurp/internal/storage"
	"github.com/ligustah/picslurp/internal/urllist"
)

// runDelete removes the stored image of every URL in the input list.
// By default prompts for confirmation unless -force is specified.
func runDelete(args []string) int {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	common := addCommonFlags(fs)
	force := fs.Bool("force", false, "Skip confirmation prompt")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: picslurp delete [options]

Remove the stored image of every URL in a list.

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

	if !*force && !confirm(os.Stdin, fmt.Sprintf("Delete stored images for %d URLs from %s?", len(urls), destination(cfg))) {
		fmt.Fprintln(os.Stderr, "Cancelled")
		return ExitSuccess
	}

	ctx, cancel := signalContext(nil)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
		return ExitStorageError
	}
	defer closeStore()

	n, err := deleteAll(ctx, store, urls)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Fprintf(os.Stderr, "[picslurp] Deleted stored images for %d URLs from %s\n", n, destination(cfg))
	return ExitSuccess
}

// deleteAll removes the key of every URL and returns how many keys it
// processed. Duplicate URLs are deleted once.
func deleteAll(ctx context.Context, store *storage.Store, urls []string) (int, error) {
	seen := make(map[string]bool)
	for _, u := range urls {
		key := store.KeyFor(u)
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := store.Delete(ctx, key); err != nil {
			return len(seen) - 1, err
		}
	}
	return len(seen), nil
}

func confirm(in io.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	response, _ := bufio.NewReader(in).ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
