// Package chunker splits extracted document text into overlapping, sentence-aware chunks.
package chunker

import "strings"

// Default chunking parameters, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunker holds the window size and overlap. It is immutable and safe for concurrent use.
type Chunker struct {
	chunkSize int
	overlap   int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the target chunk size. Non-positive values are ignored.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets how many characters consecutive chunks share. Negative values are ignored.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker. An overlap that is not smaller than the chunk size
// is replaced by a quarter of the chunk size.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// ChunkSize returns the configured window size.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Normalize collapses whitespace runs to single spaces and trims the ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Split normalizes text and cuts it into chunks.
//
// Windows span [start, start+size). When a window ends inside the text its right edge
// is pulled back to the last '.' located after start+size/2, so chunks tend to end on
// a sentence boundary without becoming tiny. The next window starts overlap characters
// before the previous end. Empty input yields no chunks.
func (c *Chunker) Split(text string) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	n := len(runes)
	if n <= c.chunkSize {
		return []string{normalized}
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + c.chunkSize
		if end < n {
			if dot := lastDot(runes, start, end); dot > start+c.chunkSize/2 {
				end = dot + 1
			}
		}

		chunk := strings.TrimSpace(string(runes[start:min(end, n)]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - c.overlap
		if next <= start {
			// a short sentence pullback can leave no room for the overlap
			next = end
		}
		start = next
	}

	return chunks
}

// lastDot returns the index of the last '.' in runes[from:to], or -1.
func lastDot(runes []rune, from, to int) int {
	for i := to - 1; i >= from; i-- {
		if runes[i] == '.' {
			return i
		}
	}
	return -1
}
