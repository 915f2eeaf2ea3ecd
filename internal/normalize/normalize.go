package normalize

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/entrena-ai/coursefeed/internal/config"
	"github.com/entrena-ai/coursefeed/internal/domain"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

// Normalizer turns raw document content into clean, embeddable text.
// Strategies are fixed per content type; anything unmatched fails with
// UnsupportedFormatError rather than best-effort parsing.
type Normalizer struct {
	ocr             *OCRClient // nil when no OCR service is configured
	maxRawTextBytes int
	minTextLen      int
	logger          *logging.Logger
}

func New(cfg config.Config, ocr *OCRClient) *Normalizer {
	return &Normalizer{
		ocr:             ocr,
		maxRawTextBytes: cfg.MaxRawTextBytes,
		minTextLen:      config.MinExtractedTextLen,
		logger:          logging.NewLogger("normalizer"),
	}
}

func (n *Normalizer) Normalize(ctx context.Context, doc domain.DocumentRecord) (domain.NormalizedText, error) {
	raw, err := n.extract(ctx, doc)
	if err != nil {
		return domain.NormalizedText{}, err
	}

	if len(raw) > n.maxRawTextBytes {
		n.logger.Warn("truncating oversized document text",
			"documentId", doc.ID, "bytes", len(raw), "limit", n.maxRawTextBytes)
		raw = truncateRunes(raw, n.maxRawTextBytes)
	}

	cleaned := Clean(raw)
	if cleaned == "" {
		return domain.NormalizedText{}, &domain.ExtractionError{DocumentID: doc.ID}
	}

	return domain.NormalizedText{
		DocumentID:  doc.ID,
		CourseID:    doc.CourseID,
		Text:        cleaned,
		Fingerprint: domain.Fingerprint([]byte(cleaned)),
	}, nil
}

func (n *Normalizer) extract(ctx context.Context, doc domain.DocumentRecord) (string, error) {
	switch doc.ContentType {
	case domain.ContentPDF:
		return n.extractPDF(ctx, doc)
	case domain.ContentDocx, domain.ContentOdt, domain.ContentRtf:
		return extractOffice(doc)
	case domain.ContentHTML:
		return stripHTML(rawString(doc))
	case domain.ContentText, domain.ContentMarkdown:
		return rawString(doc), nil
	default:
		return "", &domain.UnsupportedFormatError{ContentType: doc.ContentType}
	}
}

// extractPDF pulls text page by page, falling back to the recognition
// service when the result is suspiciously short. Scanned, image-only
// documents extract as empty or near-empty text.
func (n *Normalizer) extractPDF(ctx context.Context, doc domain.DocumentRecord) (string, error) {
	text, err := extractPDFText(doc.Content)
	if err != nil {
		n.logger.Debug("pdf text extraction failed", "documentId", doc.ID, "error", err)
	}

	if len(strings.TrimSpace(text)) >= n.minTextLen {
		return text, nil
	}
	if n.ocr == nil {
		if err != nil {
			return "", &domain.ExtractionError{DocumentID: doc.ID, Err: err}
		}
		return text, nil
	}

	n.logger.Info("falling back to text recognition", "documentId", doc.ID, "extractedLen", len(text))
	recognized, ocrErr := n.ocr.Recognize(ctx, doc.Content)
	if ocrErr != nil {
		return "", ocrErr
	}
	return recognized, nil
}

func rawString(doc domain.DocumentRecord) string {
	if doc.Text != "" {
		return doc.Text
	}
	return string(doc.Content)
}

// Clean applies NFC normalization, strips control characters, and
// collapses whitespace while keeping paragraph breaks for the chunker.
func Clean(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "​", "")
	text = strings.ReplaceAll(text, " ", " ")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}

	lines := strings.Split(b.String(), "\n")
	blankRun := 0
	var out []string
	for _, line := range lines {
		line = collapseSpaces(line)
		if line == "" {
			blankRun++
			if blankRun > 1 {
				continue
			}
		} else {
			blankRun = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func collapseSpaces(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// back up to a rune boundary
	for limit > 0 && (s[limit]&0xc0) == 0x80 {
		limit--
	}
	return s[:limit]
}
