package chunker

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

// TestNew_RejectsBadOverlap verifies the fail-fast configuration check.
func TestNew_RejectsBadOverlap(t *testing.T) {
	if _, err := New(100, 100); !errors.Is(err, ErrInvalidOverlap) {
		t.Errorf("overlap == size: expected ErrInvalidOverlap, got %v", err)
	}
	if _, err := New(100, 150); !errors.Is(err, ErrInvalidOverlap) {
		t.Errorf("overlap > size: expected ErrInvalidOverlap, got %v", err)
	}
	if _, err := New(100, 20); err != nil {
		t.Errorf("valid config: unexpected error %v", err)
	}
}

// TestSplit_ShortText verifies text shorter than the window yields one chunk.
func TestSplit_ShortText(t *testing.T) {
	c, err := New(1000, 200)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	chunks := c.Split("A short philosophical remark.")
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "A short philosophical remark." {
		t.Errorf("Chunk altered: %q", chunks[0])
	}
}

// TestSplit_EmptyText verifies whitespace-only input yields no chunks.
func TestSplit_EmptyText(t *testing.T) {
	c, _ := New(100, 20)

	if chunks := c.Split(""); len(chunks) != 0 {
		t.Errorf("Empty text: expected 0 chunks, got %d", len(chunks))
	}
	if chunks := c.Split("   \n\n  "); len(chunks) != 0 {
		t.Errorf("Whitespace text: expected 0 chunks, got %d", len(chunks))
	}
}

// TestSplit_ParagraphBoundary verifies chunks prefer paragraph breaks
// past the half-window point.
func TestSplit_ParagraphBoundary(t *testing.T) {
	para1 := strings.Repeat("Erster Gedanke. ", 5) // 80 chars
	para2 := strings.Repeat("Zweiter Gedanke. ", 5)
	text := para1 + "\n\n" + para2

	c, _ := New(100, 10)
	chunks := c.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("Expected at least 2 chunks, got %d", len(chunks))
	}
	// First cut should land on the paragraph break (position 80 > 50).
	if !strings.HasSuffix(chunks[0], "Erster Gedanke.") {
		t.Errorf("Chunk 0 should end at the paragraph break, got %q", chunks[0])
	}
}

// TestSplit_SentenceBoundary verifies the sentence-break fallback when
// no paragraph break exists.
func TestSplit_SentenceBoundary(t *testing.T) {
	text := strings.Repeat("Das Denken bestimmt das Sein der Dinge klar. ", 10)

	c, _ := New(200, 40)
	chunks := c.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(chunk, ".") {
			t.Errorf("Chunk %d should end at a sentence break, got suffix %q",
				i, chunk[len(chunk)-10:])
		}
	}
}

// TestSplit_CoverageAndBounds chunks a 5000-char prose text with
// size=1000/overlap=200 and checks chunk count, chunk bounds, and that
// the chunks jointly cover the text.
func TestSplit_CoverageAndBounds(t *testing.T) {
	var sb strings.Builder
	for sb.Len() < 5000 {
		sb.WriteString("Die Welt ist die Gesamtheit der Tatsachen und nicht der Dinge. ")
		if sb.Len()%7 == 0 {
			sb.WriteString("\n\n")
		}
	}
	text := sb.String()

	c, _ := New(1000, 200)
	chunks := c.Split(text)

	if len(chunks) < 5 || len(chunks) > 8 {
		t.Errorf("Expected 5-8 chunks for ~5000 chars, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 1200 {
			t.Errorf("Chunk %d exceeds bounded slack: %d chars", i, len(chunk))
		}
	}
	// Overlapping windows must cover the full text: every sentence
	// fragment sampled from the source appears in some chunk.
	for probe := 0; probe+40 < len(text); probe += 900 {
		fragment := strings.TrimSpace(text[probe : probe+40])
		if fragment == "" {
			continue
		}
		found := false
		for _, chunk := range chunks {
			if strings.Contains(chunk, fragment) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Fragment at offset %d not covered by any chunk", probe)
		}
	}
}

// TestSplit_HardCut verifies an unbreakable run is cut exactly at the
// window size.
func TestSplit_HardCut(t *testing.T) {
	text := strings.Repeat("x", 250)

	c, _ := New(100, 20)
	chunks := c.Split(text)

	if len(chunks) < 3 {
		t.Fatalf("Expected at least 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 100 {
		t.Errorf("Chunk 0: expected hard cut at 100, got %d", len(chunks[0]))
	}
}

// TestSplit_MultiByteHardCut verifies hard cuts on an unbreakable run of
// multi-byte characters land on rune boundaries and yield valid UTF-8.
func TestSplit_MultiByteHardCut(t *testing.T) {
	text := strings.Repeat("ä", 200)

	c, _ := New(101, 20)
	chunks := c.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("Expected at least 2 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Errorf("Chunk %d contains invalid UTF-8", i)
		}
		if n := utf8.RuneCountInString(chunk); n > 101 {
			t.Errorf("Chunk %d: %d runes exceeds the window", i, n)
		}
	}
	if n := utf8.RuneCountInString(chunks[0]); n != 101 {
		t.Errorf("Chunk 0: expected hard cut at 101 runes, got %d", n)
	}
}
