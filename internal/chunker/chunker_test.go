package chunker

import (
	"strings"
	"testing"
)

func TestChunk_LineRanges(t *testing.T) {
	source := "Line one\nLine two\nLine three"
	chunks, err := Chunk(source, Options{Size: 9, Overlap: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	first := chunks[0]
	if first.Content != "Line one\n" {
		t.Errorf("first content: got %q", first.Content)
	}
	if first.StartLine != 1 || first.EndLine != 2 {
		t.Errorf("first range: got [%d,%d], want [1,2]", first.StartLine, first.EndLine)
	}
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(source, last.Content) {
		t.Errorf("last chunk %q must end exactly at source end", last.Content)
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d Index=%d", i, ch.Index)
		}
		if ch.StartLine < 1 || ch.EndLine < ch.StartLine {
			t.Errorf("chunk %d has invalid range [%d,%d]", i, ch.StartLine, ch.EndLine)
		}
	}
}

// Concatenating chunk contents with the overlap removed must reconstruct the
// source exactly.
func TestChunk_Reconstruction(t *testing.T) {
	cases := []struct {
		name    string
		source  string
		size    int
		overlap int
	}{
		{"three lines", "Line one\nLine two\nLine three", 9, 2},
		{"no overlap", "abcdefghij", 3, 0},
		{"single line", "no newlines at all in this text", 7, 3},
		{"empty lines", "a\n\n\nb\n\nc", 4, 1},
		{"size exceeds source", "short", 100, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks, err := Chunk(tc.source, Options{Size: tc.size, Overlap: tc.overlap})
			if err != nil {
				t.Fatal(err)
			}
			var b strings.Builder
			for i, ch := range chunks {
				content := ch.Content
				if i > 0 {
					content = content[tc.overlap:]
				}
				b.WriteString(content)
			}
			if b.String() != tc.source {
				t.Errorf("reconstructed %q, want %q", b.String(), tc.source)
			}
		})
	}
}

func TestChunk_SingleLineFile(t *testing.T) {
	chunks, err := Chunk("one single line without newline", Options{Size: 10, Overlap: 2})
	if err != nil {
		t.Fatal(err)
	}
	for i, ch := range chunks {
		if ch.StartLine != 1 || ch.EndLine != 1 {
			t.Errorf("chunk %d range [%d,%d], want [1,1]", i, ch.StartLine, ch.EndLine)
		}
	}
}

func TestChunk_EmptySource(t *testing.T) {
	chunks, err := Chunk("", Options{Size: 10, Overlap: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Errorf("empty source should yield zero chunks, got %d", len(chunks))
	}
}

func TestChunk_InvalidOptions(t *testing.T) {
	if _, err := Chunk("text", Options{Size: 0, Overlap: 0}); err == nil {
		t.Error("size 0 should fail")
	}
	if _, err := Chunk("text", Options{Size: -5, Overlap: 0}); err == nil {
		t.Error("negative size should fail")
	}
	if _, err := Chunk("text", Options{Size: 4, Overlap: 4}); err == nil {
		t.Error("overlap == size should fail")
	}
	if _, err := Chunk("text", Options{Size: 4, Overlap: 9}); err == nil {
		t.Error("overlap > size should fail")
	}
	if _, err := Chunk("text", Options{Size: 4, Overlap: -1}); err == nil {
		t.Error("negative overlap should fail")
	}
}

func TestChunk_TrailingNewline(t *testing.T) {
	chunks, err := Chunk("a\n", Options{Size: 10, Overlap: 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].StartLine != 1 || chunks[0].EndLine != 1 {
		t.Errorf("range [%d,%d], want [1,1]", chunks[0].StartLine, chunks[0].EndLine)
	}
}
