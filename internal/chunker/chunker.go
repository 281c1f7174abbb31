// Package chunker splits raw document text into ordered, bounded,
// overlapping chunks for embedding.
package chunker

import (
	"errors"
	"strings"
)

// Default window parameters, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// ErrInvalidOverlap is returned when chunk_overlap >= chunk_size, which
// would make the window never advance.
var ErrInvalidOverlap = errors.New("chunk overlap must be smaller than chunk size")

// Chunker produces overlapping text chunks, preferring to cut at
// paragraph or sentence boundaries.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// New creates a Chunker. A non-positive size and a negative overlap
// fall back to the defaults; an overlap >= size is a configuration
// error.
func New(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		return nil, ErrInvalidOverlap
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Split chunks text into ordered, trimmed, non-empty pieces.
//
// A window of chunkSize characters is proposed from the current start.
// If the window ends before the text does, the cut is moved back to the
// last paragraph break ("\n\n"), or failing that the last sentence
// break (". ", "! ", "? "), provided the break lies past the midpoint
// of the window. The next window starts overlap characters before the
// previous cut. All offsets are measured in runes, so a hard cut never
// lands inside a multi-byte character.
func (c *Chunker) Split(text string) []string {
	var chunks []string
	runes := []rune(text)

	start := 0
	for start < len(runes) {
		end := start + c.chunkSize
		if end < len(runes) {
			end = c.findBreak(runes, start, end)
		} else {
			end = len(runes)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}
		// A boundary cut close behind start together with a large
		// overlap could stall the window; always move forward.
		next := end - c.chunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// findBreak moves the proposed cut back to a natural boundary when one
// exists past the half-window point.
func (c *Chunker) findBreak(runes []rune, start, end int) int {
	half := start + c.chunkSize/2

	if p := lastPair(runes[start:end], '\n', '\n'); p != -1 && start+p > half {
		return start + p + 2
	}

	sentence := -1
	for _, sep := range [][2]rune{{'.', ' '}, {'!', ' '}, {'?', ' '}} {
		if p := lastPair(runes[start:end], sep[0], sep[1]); p > sentence {
			sentence = p
		}
	}
	if sentence != -1 && start+sentence > half {
		return start + sentence + 2
	}

	return end
}

// lastPair is strings.LastIndex for a two-rune separator over a rune
// window.
func lastPair(window []rune, a, b rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		if window[i] == a && window[i+1] == b {
			return i
		}
	}
	return -1
}
