// Package watcher turns filesystem activity into debounced index events
// and provides the directory scanner used for bulk indexing.
package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents one debounced file system event.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow is the time to wait before emitting coalesced
	// events. Default: 500ms.
	DebounceWindow time.Duration

	// EventBufferSize is the size of the event channel buffer.
	// Default: 1000.
	EventBufferSize int
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow == 0 {
		o.DebounceWindow = 500 * time.Millisecond
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = 1000
	}
	return o
}

// ignoreDirs are directory names never watched or scanned.
var ignoreDirs = map[string]bool{
	".git": true, "__pycache__": true, "node_modules": true,
	"venv": true, ".venv": true, "env": true,
	"dist": true, "build": true, ".cache": true,
	".pytest_cache": true, ".mypy_cache": true,
	".idea": true, ".vscode": true, ".vs": true,
	"bin": true, "obj": true, "target": true,
}

// ignoreFiles are file names never indexed.
var ignoreFiles = map[string]bool{
	".DS_Store": true, "Thumbs.db": true,
	".gitignore": true, ".gitattributes": true,
}

// IgnoredDir reports whether a directory name is excluded from watching
// and scanning. Dot-prefixed directories are excluded wholesale.
func IgnoredDir(name string) bool {
	if strings.HasPrefix(name, ".") && name != "." && name != ".." {
		return true
	}
	return ignoreDirs[name]
}

// IgnoredFile reports whether a file should never be indexed.
func IgnoredFile(path string) bool {
	name := filepath.Base(path)
	if ignoreFiles[name] {
		return true
	}
	// Dot files are skipped except .env, which is on the parser
	// allowlist.
	if strings.HasPrefix(name, ".") && name != ".env" {
		return true
	}
	return false
}
