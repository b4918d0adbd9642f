package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

// Options configures how keys are derived from URLs.
type Options struct {
	// Prefix is prepended to every key, e.g. "pics/". Optional.
	Prefix string

	// FilenameLength is the number of hex digits of the URL hash kept.
	// Default: 16
	FilenameLength int

	// Extension is appended to every key.
	// Default: ".jpg"
	Extension string
}

// DefaultOptions returns options matching the historical file layout.
func DefaultOptions() Options {
	return Options{
		FilenameLength: 16,
		Extension:      ".jpg",
	}
}

// Store maps URLs to content-addressed keys in a bucket and persists
// fetched bytes under them. It is safe for concurrent use.
type Store struct {
	bucket *blob.Bucket
	opts   Options

	mu      sync.Mutex
	written map[string]struct{}
}

// New creates a Store on top of bucket. The caller keeps ownership of the
// bucket and must close it.
func New(bucket *blob.Bucket, opts Options) *Store {
	def := DefaultOptions()
	if opts.FilenameLength <= 0 || opts.FilenameLength > sha256.Size224*2 {
		opts.FilenameLength = def.FilenameLength
	}
	return &Store{
		bucket:  bucket,
		opts:    opts,
		written: make(map[string]struct{}),
	}
}

// KeyFor returns the storage key for url: a truncated hex SHA-224 of the
// URL plus the configured extension.
func (s *Store) KeyFor(url string) string {
	sum := sha256.Sum224([]byte(url))
	name := hex.EncodeToString(sum[:])[:s.opts.FilenameLength]
	return s.opts.Prefix + name + s.opts.Extension
}

// Exists reports whether key has already been persisted, either earlier in
// this process or by a previous run.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	_, ok := s.written[key]
	s.mu.Unlock()
	if ok {
		return true, nil
	}

	exists, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("storage: check %s: %w", key, err)
	}
	if exists {
		s.markWritten(key)
	}
	return exists, nil
}

// Write stores data under key. The content type is sniffed from the data.
func (s *Store) Write(ctx context.Context, key string, data []byte) error {
	opts := &blob.WriterOptions{
		ContentType: http.DetectContentType(data),
	}
	if err := s.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	s.markWritten(key)
	return nil
}

// Delete removes key. A missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.written, key)
	s.mu.Unlock()

	if err := s.bucket.Delete(ctx, key); err != nil && !isNotExist(err) {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

// Bucket returns the underlying bucket.
func (s *Store) Bucket() *blob.Bucket {
	return s.bucket
}

func (s *Store) markWritten(key string) {
	s.mu.Lock()
	s.written[key] = struct{}{}
	s.mu.Unlock()
}

// OpenBucket opens the output bucket. A non-empty bucketURL is opened with
// blob.OpenBucket and needs its driver registered by the caller; otherwise
// dir is created if missing and opened as a local file bucket.
func OpenBucket(ctx context.Context, bucketURL, dir string) (*blob.Bucket, error) {
	return openBucket(ctx, bucketURL, dir, true)
}

// OpenExistingBucket is OpenBucket for commands that only inspect or remove
// stored images: a missing output directory is an error and is not created.
func OpenExistingBucket(ctx context.Context, bucketURL, dir string) (*blob.Bucket, error) {
	return openBucket(ctx, bucketURL, dir, false)
}

func openBucket(ctx context.Context, bucketURL, dir string, create bool) (*blob.Bucket, error) {
	if bucketURL != "" {
		b, err := blob.OpenBucket(ctx, bucketURL)
		if err != nil {
			return nil, fmt.Errorf("storage: open bucket %s: %w", bucketURL, err)
		}
		return b, nil
	}

	if dir == "" {
		return nil, errors.New("storage: output directory or bucket URL is required")
	}
	if create {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("storage: create output dir: %w", err)
		}
	} else if fi, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("storage: output dir: %w", err)
	} else if !fi.IsDir() {
		return nil, fmt.Errorf("storage: output dir %s is not a directory", dir)
	}

	// Images only; no .attrs sidecar next to every file.
	b, err := fileblob.OpenBucket(dir, &fileblob.Options{Metadata: fileblob.MetadataDontWrite})
	if err != nil {
		return nil, fmt.Errorf("storage: open output dir %s: %w", dir, err)
	}
	return b, nil
}

func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
