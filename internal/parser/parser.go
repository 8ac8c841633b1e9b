// Package parser extracts plain text from files on the indexing
// allowlist. Anything outside the allowlist, or over the size cap, is
// rejected with a typed error so callers can skip it cleanly.
package parser

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	scouterr "github.com/filescout/filescout/internal/errors"
)

// DefaultMaxFileSize caps text extraction at 10 MiB.
const DefaultMaxFileSize = 10 * 1024 * 1024

// supportedExtensions is the indexing allowlist, grouped by family.
var supportedExtensions = map[string]bool{
	// Documents
	".txt": true, ".md": true, ".rst": true, ".log": true,
	// Code
	".py": true, ".go": true, ".js": true, ".ts": true, ".java": true,
	".c": true, ".cpp": true, ".h": true, ".hpp": true, ".cs": true,
	".rb": true, ".rs": true, ".php": true, ".swift": true, ".kt": true,
	".scala": true, ".sh": true, ".bat": true, ".ps1": true, ".sql": true,
	".r": true, ".m": true, ".lua": true, ".pl": true,
	// Web and config
	".html": true, ".css": true, ".json": true, ".xml": true,
	".yaml": true, ".yml": true, ".toml": true, ".ini": true,
	".cfg": true, ".conf": true, ".env": true, ".properties": true,
}

// Parser extracts text from supported files.
type Parser struct {
	maxFileSize int64
}

// New creates a parser with the given size cap; zero means the default.
func New(maxFileSize int64) *Parser {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Parser{maxFileSize: maxFileSize}
}

// Supported reports whether the path's extension is on the allowlist.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return supportedExtensions[ext]
}

// Parse reads and decodes the file at path. It returns KindNotFound for
// missing files, KindUnsupported for extensions off the allowlist or
// files with no indexable text, and KindTooLarge past the size cap.
func (p *Parser) Parse(path string) (string, error) {
	if !Supported(path) {
		return "", scouterr.E(scouterr.KindUnsupported, "parser.Parse",
			"unsupported file type: %s", filepath.Ext(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", scouterr.E(scouterr.KindNotFound, "parser.Parse", "file not found: %s", path)
		}
		return "", scouterr.Wrap(scouterr.KindStorage, "parser.Parse", err, "stat failed")
	}
	if info.IsDir() {
		return "", scouterr.E(scouterr.KindUnsupported, "parser.Parse", "path is a directory: %s", path)
	}
	if info.Size() > p.maxFileSize {
		return "", scouterr.E(scouterr.KindTooLarge, "parser.Parse",
			"file exceeds %d byte limit: %s", p.maxFileSize, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", scouterr.E(scouterr.KindNotFound, "parser.Parse", "file not found: %s", path)
		}
		return "", scouterr.Wrap(scouterr.KindStorage, "parser.Parse", err, "read failed")
	}

	text := decode(data)
	if strings.TrimSpace(text) == "" {
		return "", scouterr.E(scouterr.KindUnsupported, "parser.Parse",
			"file has no indexable text: %s", path)
	}
	return text, nil
}

// decode interprets bytes as UTF-8, falling back to a Latin-1 transcode
// when the content is not valid UTF-8. NUL bytes are stripped either way
// so binary-ish config files don't poison the index.
func decode(data []byte) string {
	data = bytes.ReplaceAll(data, []byte{0}, nil)
	if utf8.Valid(data) {
		return string(data)
	}

	// Latin-1: every byte maps to the rune with the same value.
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		b.WriteRune(rune(c))
	}
	return b.String()
}
