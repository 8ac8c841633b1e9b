// Package chunk splits extracted file text into overlapping windows for
// embedding and keyword indexing.
package chunk

import (
	"fmt"
	"strings"
)

// Default splitter geometry. A 600-char window with 100-char overlap keeps
// chunks inside typical embedding model context while preserving continuity
// across boundaries.
const (
	DefaultChunkSize    = 600
	DefaultChunkOverlap = 100
)

// defaultSeparators is ordered from strongest to weakest boundary. The
// empty string is the terminal fallback: split at any character.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter performs recursive character splitting.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewSplitter creates a splitter with the given window and overlap.
// Invalid values fall back to the defaults.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultChunkOverlap
		if overlap >= chunkSize {
			overlap = chunkSize / 6
		}
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// Split divides text into chunks of at most chunkSize characters with
// overlap characters shared between consecutive chunks. Splitting prefers
// the strongest separator that produces pieces under the window. The
// output is deterministic for a given input.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= s.chunkSize {
		return []string{text}
	}

	pieces := s.splitRecursive(text, s.separators)
	return s.merge(pieces)
}

// splitRecursive breaks text into pieces no longer than chunkSize using
// the first separator that appears in the text, recursing with weaker
// separators on oversized pieces.
func (s *Splitter) splitRecursive(text string, separators []string) []string {
	if len(text) <= s.chunkSize {
		return []string{text}
	}

	sep := separators[len(separators)-1]
	rest := separators
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var parts []string
	if sep == "" {
		// Hard split on the window boundary.
		for start := 0; start < len(text); start += s.chunkSize {
			end := start + s.chunkSize
			if end > len(text) {
				end = len(text)
			}
			parts = append(parts, text[start:end])
		}
		return parts
	}

	for _, piece := range strings.SplitAfter(text, sep) {
		if piece == "" {
			continue
		}
		if len(piece) > s.chunkSize {
			parts = append(parts, s.splitRecursive(piece, rest)...)
		} else {
			parts = append(parts, piece)
		}
	}
	return parts
}

// merge greedily packs pieces into windows. Each new window is seeded
// with the tail of the previous one so consecutive chunks share overlap
// characters; the seed is trimmed when needed so no chunk exceeds the
// window.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var current strings.Builder

	flush := func(next string) {
		chunk := strings.TrimSpace(current.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		seed := current.String()
		if len(seed) > s.overlap {
			seed = seed[len(seed)-s.overlap:]
		}
		if len(seed)+len(next) > s.chunkSize {
			keep := s.chunkSize - len(next)
			if keep < 0 {
				keep = 0
			}
			seed = seed[len(seed)-keep:]
		}
		current.Reset()
		if s.overlap > 0 {
			current.WriteString(seed)
		}
	}

	for _, piece := range pieces {
		if current.Len() > 0 && current.Len()+len(piece) > s.chunkSize {
			flush(piece)
		}
		current.WriteString(piece)
	}
	if chunk := strings.TrimSpace(current.String()); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// ID forms the canonical chunk identifier for a source path and ordinal.
func ID(path string, ordinal int) string {
	return fmt.Sprintf("%s:chunk:%d", path, ordinal)
}
