package normalize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/entrena-ai/coursefeed/internal/config"
	"github.com/entrena-ai/coursefeed/internal/domain"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

func newTestNormalizer() *Normalizer {
	logging.Init(false)
	return &Normalizer{
		maxRawTextBytes: config.DefaultMaxRawTextBytes,
		minTextLen:      config.MinExtractedTextLen,
		logger:          logging.NewLogger("normalizer-test"),
	}
}

func TestNormalize_PlainText(t *testing.T) {
	n := newTestNormalizer()
	got, err := n.Normalize(context.Background(), domain.DocumentRecord{
		ID:          "d1",
		CourseID:    "7",
		Text:        "Tema 1: Introducción.\r\n\r\nContenido del curso.",
		ContentType: domain.ContentText,
	})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	want := "Tema 1: Introducción.\n\nContenido del curso."
	if got.Text != want {
		t.Errorf("cleaned text = %q; want %q", got.Text, want)
	}
	if got.Fingerprint != domain.Fingerprint([]byte(want)) {
		t.Error("fingerprint must hash the cleaned text")
	}
	if got.CourseID != "7" || got.DocumentID != "d1" {
		t.Errorf("identity fields lost: %+v", got)
	}
}

func TestNormalize_EmptyAfterCleaning(t *testing.T) {
	n := newTestNormalizer()
	_, err := n.Normalize(context.Background(), domain.DocumentRecord{
		ID:          "d2",
		Text:        "\x00\x01   \n\n  ",
		ContentType: domain.ContentText,
	})

	var extraction *domain.ExtractionError
	if !errors.As(err, &extraction) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if extraction.DocumentID != "d2" {
		t.Errorf("error carries wrong document id: %s", extraction.DocumentID)
	}
}

func TestNormalize_UnsupportedFormat(t *testing.T) {
	n := newTestNormalizer()
	_, err := n.Normalize(context.Background(), domain.DocumentRecord{
		ID:          "d3",
		Content:     []byte{0x4d, 0x5a},
		ContentType: "exe",
	})

	var unsupported *domain.UnsupportedFormatError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedFormatError, got %v", err)
	}
}

func TestNormalize_TruncatesOversizedText(t *testing.T) {
	n := newTestNormalizer()
	n.maxRawTextBytes = 100

	got, err := n.Normalize(context.Background(), domain.DocumentRecord{
		ID:          "d4",
		Text:        strings.Repeat("ñ", 200),
		ContentType: domain.ContentText,
	})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(got.Text) > 100 {
		t.Errorf("text not truncated: %d bytes", len(got.Text))
	}
	// truncation must not split a rune
	for _, r := range got.Text {
		if r != 'ñ' {
			t.Fatalf("broken rune %q after truncation", r)
		}
	}
}

func TestClean_ControlCharsAndWhitespace(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"tab collapsed", "a\tb", "a b"},
		{"zero width removed", "ho​la", "hola"},
		{"space runs collapsed", "a    b\t\tc", "a b c"},
		{"blank runs collapsed", "a\n\n\n\n\nb", "a\n\nb"},
		{"bell stripped", "a\ab", "ab"},
		{"trimmed", "  hola  \n", "hola"},
	}

	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("%s: Clean(%q) = %q; want %q", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestStripHTML(t *testing.T) {
	src := `<html><head><style>p{color:red}</style></head>
<body><h1>Curso</h1><p>Primer párrafo.</p><script>alert(1)</script><p>Segundo.</p></body></html>`

	text, err := stripHTML(src)
	if err != nil {
		t.Fatalf("stripHTML failed: %v", err)
	}
	cleaned := Clean(text)

	if strings.Contains(cleaned, "alert") || strings.Contains(cleaned, "color:red") {
		t.Errorf("script/style content leaked: %q", cleaned)
	}
	if !strings.Contains(cleaned, "Curso\n\nPrimer párrafo.") {
		t.Errorf("block boundaries lost: %q", cleaned)
	}
}

func TestNormalize_PDFWithoutTextAndNoOCR(t *testing.T) {
	n := newTestNormalizer()
	_, err := n.Normalize(context.Background(), domain.DocumentRecord{
		ID:          "d5",
		Content:     []byte("not a pdf at all"),
		ContentType: domain.ContentPDF,
	})
	var extraction *domain.ExtractionError
	if !errors.As(err, &extraction) {
		t.Fatalf("expected ExtractionError for unparseable pdf, got %v", err)
	}
}
