package chunker

import (
	"strings"

	"github.com/entrena-ai/coursefeed/internal/domain"
)

// separators ordered from best to worst break point, same preference
// the recursive splitters use.
var separators = []string{"\n\n", "\n", ". ", " "}

// Splitter cuts normalized text into overlapping fragments. maxSize and
// overlap are rune counts; overlap < maxSize is enforced by config
// validation before a Splitter ever exists.
type Splitter struct {
	maxSize int
	overlap int
}

func New(maxSize, overlap int) *Splitter {
	return &Splitter{maxSize: maxSize, overlap: overlap}
}

// Split produces the chunk sequence for one document version. Chunks
// are exact substrings of the input: chunk i+1 starts `overlap` runes
// before chunk i ends, so stripping each chunk's leading overlap and
// concatenating reconstructs the input. Deterministic for identical
// inputs, which keeps chunk fingerprints stable.
func (s *Splitter) Split(norm domain.NormalizedText) []domain.Chunk {
	runes := []rune(norm.Text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []domain.Chunk
	start := 0
	for {
		end := start + s.maxSize
		if end >= n {
			end = n
		} else {
			end = s.snapToBoundary(runes, start, end)
		}

		overlap := 0
		if start > 0 {
			overlap = s.overlap
		}
		idx := len(chunks)
		text := string(runes[start:end])
		chunks = append(chunks, domain.Chunk{
			DocumentID:      norm.DocumentID,
			CourseID:        norm.CourseID,
			Index:           idx,
			Text:            text,
			Length:          end - start,
			OverlapWithPrev: overlap,
			Fingerprint:     domain.ChunkFingerprint(norm.Fingerprint, idx),
		})

		if end >= n {
			return chunks
		}
		start = end - s.overlap
	}
}

// snapToBoundary moves the cut back to the nearest paragraph, line,
// sentence, or word break inside a small window before the hard limit.
// The cut never retreats past start+overlap+1: the next chunk must
// begin strictly after this one, or the splitter would stall.
func (s *Splitter) snapToBoundary(runes []rune, start, end int) int {
	slack := s.maxSize / 5
	floor := end - slack
	if min := start + s.overlap + 1; floor < min {
		floor = min
	}
	if floor >= end {
		return end
	}

	window := string(runes[floor:end])
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i >= 0 {
			// cut after the separator so it stays with the earlier chunk
			return floor + len([]rune(window[:i])) + len([]rune(sep))
		}
	}
	return end
}
