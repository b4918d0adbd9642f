// Package urllist reads newline-delimited URL lists.
package urllist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Load reads the URL list at path.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("urllist: open: %w", err)
	}
	defer f.Close()

	urls, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("urllist: read %s: %w", path, err)
	}
	return urls, nil
}

// Parse returns one URL per line, trimmed of surrounding whitespace.
// Blank lines and lines starting with '#' are skipped. Duplicates are kept.
func Parse(r io.Reader) ([]string, error) {
	var urls []string

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}
