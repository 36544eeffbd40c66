package chunking

import (
	"strings"
	"testing"
)

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(100, 20)
	chunks := s.Split("The quarterly filing shows steady growth.")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestSplitEmptyText(t *testing.T) {
	s := NewSplitter(100, 20)
	if chunks := s.Split(""); chunks != nil {
		t.Fatalf("expected nil, got %v", chunks)
	}
}

func TestSplitOverlappingWindows(t *testing.T) {
	sentence := "Net interest income rose again this quarter. "
	text := strings.Repeat(sentence, 20)

	s := NewSplitter(200, 50)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len([]rune(chunk)) > 200 {
			t.Fatalf("chunk %d exceeds window: %d runes", i, len([]rune(chunk)))
		}
	}

	// Overlap means the tail of one chunk reappears at the head of the next.
	tail := chunks[0][len(chunks[0])-20:]
	if !strings.Contains(chunks[1], strings.TrimSpace(tail)) {
		t.Fatalf("expected overlap between chunks, tail %q not in %q", tail, chunks[1][:60])
	}
}

func TestSplitSnapsToSentenceBoundary(t *testing.T) {
	text := "First sentence here. Second sentence follows on. " + strings.Repeat("x", 300)
	s := NewSplitter(60, 10)

	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], ".") {
		t.Fatalf("expected first chunk to end on a sentence, got %q", chunks[0])
	}
}

func TestSplitUnbrokenTextStillCuts(t *testing.T) {
	text := strings.Repeat("a", 500)
	s := NewSplitter(100, 0)

	chunks := s.Split(text)
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(chunks))
	}
}

func TestNewSplitterNormalizesBadConfig(t *testing.T) {
	s := NewSplitter(0, -5)
	if s.ChunkSize != 900 || s.Overlap != 0 {
		t.Fatalf("unexpected defaults: %+v", s)
	}

	s = NewSplitter(100, 150)
	if s.Overlap != 25 {
		t.Fatalf("expected clamped overlap, got %d", s.Overlap)
	}
}
