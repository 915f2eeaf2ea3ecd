package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dslipak/pdf"
	"github.com/lu4p/cat"

	"github.com/entrena-ai/coursefeed/internal/domain"
)

// a single malformed page can hang the parser, so each page gets its
// own deadline
const pageExtractTimeout = 10 * time.Second

func extractPDFText(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var pages []string
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := extractPageGuarded(page)
		if err != nil {
			// keep going, a partially extracted document beats none
			continue
		}
		pages = append(pages, text)
	}

	if len(pages) == 0 && numPages > 0 {
		return "", errors.New("no extractable text in any page")
	}
	return strings.Join(pages, "\n\n"), nil
}

func extractPageGuarded(page pdf.Page) (string, error) {
	type result struct {
		text string
		err  error
	}
	resChan := make(chan result, 1)

	go func() {
		text, err := page.GetPlainText(nil)
		resChan <- result{text, err}
	}()

	select {
	case r := <-resChan:
		return r.text, r.err
	case <-time.After(pageExtractTimeout):
		return "", errors.New("page extraction timed out")
	}
}

// extractOffice handles docx, odt, rtf and plain text through one
// extractor.
func extractOffice(doc domain.DocumentRecord) (string, error) {
	text, err := cat.FromBytes(doc.Content)
	if err != nil {
		return "", &domain.ExtractionError{DocumentID: doc.ID, Err: err}
	}
	return text, nil
}
