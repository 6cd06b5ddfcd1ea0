// Package chunker splits plain text into overlapping character windows with
// 1-based inclusive line ranges.
package chunker

import (
	"fmt"
	"sort"

	"github.com/hyperjump/kotae/internal/models"
)

// Options controls window size and overlap, both in characters.
type Options struct {
	Size    int
	Overlap int
}

// Chunk splits source into fixed-size windows of opts.Size characters,
// advancing by opts.Size-opts.Overlap per step. Each chunk carries the
// 1-based inclusive line range its window spans. A zero-length source yields
// zero chunks. Size must be positive and Overlap must be in [0, Size); an
// overlap >= size would stall the window, so it is rejected outright.
func Chunk(source string, opts Options) ([]models.TextChunk, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", opts.Size)
	}
	if opts.Overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must be non-negative, got %d", opts.Overlap)
	}
	if opts.Overlap >= opts.Size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", opts.Overlap, opts.Size)
	}
	if len(source) == 0 {
		return nil, nil
	}

	offsets := lineOffsets(source)
	chunks := make([]models.TextChunk, 0, len(source)/opts.Size+1)
	start := 0
	for index := 0; ; index++ {
		end := start + opts.Size
		if end > len(source) {
			end = len(source)
		}
		chunks = append(chunks, models.TextChunk{
			Content:   source[start:end],
			StartLine: lineForOffset(offsets, start),
			EndLine:   lineForOffset(offsets, end),
			Index:     index,
		})
		if end == len(source) {
			break
		}
		next := start + opts.Size - opts.Overlap
		if next <= start {
			// Guard against stalling; validation above should make this unreachable.
			next = start + 1
		}
		start = next
	}
	return chunks, nil
}

// lineOffsets returns the sorted character offsets at which each line begins.
// Offset 0 is the start of line 1; every newline starts a new line, so an
// empty line between two newlines still counts as one line.
func lineOffsets(source string) []int {
	offsets := []int{0}
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' && i+1 < len(source) {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// lineForOffset returns the 1-based line number for a character offset: the
// count of line starts at or before it. A window boundary falling exactly on
// a newline keeps the newline's content in the earlier chunk while the range
// extends to the line the boundary opens.
func lineForOffset(offsets []int, pos int) int {
	// First index with offset > pos; that count is the line number.
	return sort.Search(len(offsets), func(i int) bool { return offsets[i] > pos })
}
