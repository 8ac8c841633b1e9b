package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/filescout/filescout/internal/parser"
)

// ScanResult is one candidate file found during a bulk scan.
type ScanResult struct {
	Path string
	Size int64
}

// Scanner walks a directory tree and streams indexable files: supported
// extensions, not ignored, under the size cap.
type Scanner struct {
	maxFileSize int64
}

// NewScanner creates a scanner; zero maxFileSize means the parser default.
func NewScanner(maxFileSize int64) *Scanner {
	if maxFileSize <= 0 {
		maxFileSize = parser.DefaultMaxFileSize
	}
	return &Scanner{maxFileSize: maxFileSize}
}

// Scan walks root and sends candidates to the returned channel. The
// channel closes when the walk finishes; the returned error function
// reports the walk outcome after the channel is drained.
func (s *Scanner) Scan(ctx context.Context, root string) (<-chan ScanResult, func() error) {
	results := make(chan ScanResult, 256)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(results)
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// Unreadable entries are skipped, not fatal.
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if d.IsDir() {
				if path != root && IgnoredDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}

			if IgnoredFile(path) || !parser.Supported(path) {
				return nil
			}

			info, err := d.Info()
			if err != nil || info.Size() > s.maxFileSize {
				return nil
			}

			select {
			case results <- ScanResult{Path: path, Size: info.Size()}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	})

	return results, g.Wait
}

// CountFiles walks root and returns the candidate count without
// streaming, for quick pre-index estimates.
func (s *Scanner) CountFiles(ctx context.Context, root string) (int, error) {
	results, wait := s.Scan(ctx, root)
	count := 0
	for range results {
		count++
	}
	return count, wait()
}

// Exists reports whether root is an existing directory.
func Exists(root string) bool {
	info, err := os.Stat(root)
	return err == nil && info.IsDir()
}
