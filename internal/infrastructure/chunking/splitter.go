package chunking

import "strings"

// Splitter cuts page text into overlapping rune windows. Window ends snap
// back to the nearest paragraph, sentence or space boundary when one falls in
// the tail of the window, so passages do not split mid-sentence.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/s.ChunkSize+1)
	start := 0
	for start < len(runes) {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = s.snapToBoundary(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

// snapToBoundary scans backwards from end for a natural break, but never past
// the last fifth of the window: a wall of unbroken text still gets cut.
func (s *Splitter) snapToBoundary(runes []rune, start, end int) int {
	limit := end - s.ChunkSize/5
	if limit < start+1 {
		limit = start + 1
	}

	bestSentence := -1
	bestSpace := -1
	for i := end - 1; i >= limit; i-- {
		switch runes[i] {
		case '\n':
			return i + 1
		case '.', '!', '?':
			if bestSentence < 0 && i+1 < end && isSpaceRune(runes[i+1]) {
				bestSentence = i + 2
			}
		case ' ', '\t':
			if bestSpace < 0 {
				bestSpace = i + 1
			}
		}
	}
	if bestSentence > 0 {
		return bestSentence
	}
	if bestSpace > 0 {
		return bestSpace
	}
	return end
}

func isSpaceRune(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}
