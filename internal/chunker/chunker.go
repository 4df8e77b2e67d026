// Package chunker splits document text into overlapping, sentence-aware
// segments suitable for independent embedding and retrieval.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig indicates invalid chunking parameters.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// sentenceTerminals are the characters treated as sentence boundaries.
const sentenceTerminals = ".!?"

// Chunker splits normalized text into overlapping chunks. The output is a
// pure function of the input text and the configured size and overlap.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker with the given target chunk size and overlap, both in
// characters. Overlap must be smaller than size; the sliding window cannot
// advance otherwise.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap cannot be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured target chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Normalize collapses whitespace runs to single spaces and trims the ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Split divides text into ordered, non-empty chunks covering the normalized
// input with no gaps. Each window prefers to end at the nearest sentence
// terminal within the last overlap-sized span; otherwise it cuts at the
// target size. Consecutive chunks share the configured overlap.
func (c *Chunker) Split(text string) []string {
	text = Normalize(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		// Scan backward from the tentative end for a sentence terminal, but
		// no further back than size-overlap positions.
		cut := end
		for i := end; i > start+c.size-c.overlap; i-- {
			if strings.IndexByte(sentenceTerminals, text[i]) >= 0 {
				cut = i + 1
				break
			}
		}

		chunks = append(chunks, text[start:cut])

		next := cut - c.overlap
		if next < 0 {
			next = 0
		}
		// The window must always advance, even for degenerate size/overlap
		// combinations that survive construction.
		if next <= start {
			next = cut
		}
		start = next
	}

	out := chunks[:0]
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk != "" {
			out = append(out, chunk)
		}
	}
	return out
}
