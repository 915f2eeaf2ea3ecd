package chunker

import (
	"strings"
	"testing"

	"github.com/entrena-ai/coursefeed/internal/domain"
)

func normText(text string) domain.NormalizedText {
	return domain.NormalizedText{
		DocumentID:  "doc-1",
		CourseID:    "42",
		Text:        text,
		Fingerprint: domain.Fingerprint([]byte(text)),
	}
}

func reconstruct(chunks []domain.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		runes := []rune(c.Text)
		b.WriteString(string(runes[c.OverlapWithPrev:]))
	}
	return b.String()
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	s := New(1000, 200)
	chunks := s.Split(normText("a short syllabus entry"))

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 || chunks[0].OverlapWithPrev != 0 {
		t.Errorf("single chunk must be index 0 with no overlap, got %+v", chunks[0])
	}
	if chunks[0].Text != "a short syllabus entry" {
		t.Errorf("chunk text altered: %q", chunks[0].Text)
	}
}

func TestSplit_EmptyText(t *testing.T) {
	if chunks := New(1000, 200).Split(normText("")); chunks != nil {
		t.Errorf("empty text should yield no chunks, got %d", len(chunks))
	}
}

func TestSplit_SyllabusScenario(t *testing.T) {
	// 2400 characters, size 1000, overlap 200: spans [0,1000), [800,1800), [1600,2400)
	text := strings.Repeat("x", 2400)
	s := New(1000, 200)
	chunks := s.Split(normText(text))

	if len(chunks) != 3 {
		t.Fatalf("expected exactly 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
	}

	// identical bytes produce identical fingerprints
	again := s.Split(normText(text))
	for i := range chunks {
		if chunks[i].Fingerprint != again[i].Fingerprint {
			t.Errorf("chunk %d fingerprint not stable across runs", i)
		}
	}
}

func TestSplit_ReconstructionExact(t *testing.T) {
	texts := []string{
		strings.Repeat("palabra ", 700),
		strings.Repeat("Una frase corta. ", 300),
		strings.Repeat("párrafo con acentos y ñ\n\n", 150),
		strings.Repeat("z", 5001),
	}

	s := New(1000, 200)
	for _, text := range texts {
		chunks := s.Split(normText(text))
		if got := reconstruct(chunks); got != text {
			t.Errorf("reconstruction mismatch for text of %d runes (%d chunks)", len([]rune(text)), len(chunks))
		}
	}
}

func TestSplit_ContiguousIndices(t *testing.T) {
	chunks := New(300, 50).Split(normText(strings.Repeat("line of course notes\n", 200)))
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("indices not contiguous: position %d holds index %d", i, c.Index)
		}
		if c.Length > 300 {
			t.Errorf("chunk %d exceeds max size: %d", i, c.Length)
		}
		if i > 0 && c.OverlapWithPrev != 50 {
			t.Errorf("chunk %d overlap = %d; want 50", i, c.OverlapWithPrev)
		}
	}
}

func TestSplit_PrefersParagraphBreaks(t *testing.T) {
	para := strings.Repeat("a", 850) + "\n\n" + strings.Repeat("b", 900)
	chunks := New(1000, 100).Split(normText(para))

	if len(chunks) < 2 {
		t.Fatalf("expected a split, got %d chunks", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Text, "\n\n") {
		t.Errorf("first chunk should end at the paragraph break, ends with %q", chunks[0].Text[len(chunks[0].Text)-5:])
	}
}
