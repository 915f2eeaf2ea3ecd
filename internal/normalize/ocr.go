package normalize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/entrena-ai/coursefeed/internal/config"
	"github.com/entrena-ai/coursefeed/internal/domain"
	"github.com/entrena-ai/coursefeed/internal/httpclient"
)

// OCRClient talks to the external text-recognition service: document
// bytes in, plain text out. Recognition is far slower than regular
// extraction, so concurrent calls are capped with a semaphore instead
// of letting every worker pile onto the service at once.
type OCRClient struct {
	url    string
	client *http.Client
	sem    chan struct{}
}

func NewOCRClient(serviceURL string) *OCRClient {
	if serviceURL == "" {
		return nil
	}
	return &OCRClient{
		url:    serviceURL,
		client: httpclient.NewPooled(config.OCRRequestTimeout),
		sem:    make(chan struct{}, config.MaxConcurrentOCR),
	}
}

func (c *OCRClient) Recognize(ctx context.Context, content []byte) (string, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return "", &domain.TransientError{Op: "ocr", Err: ctx.Err()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(content))
	if err != nil {
		return "", &domain.TransientError{Op: "ocr", Err: err}
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &domain.TransientError{Op: "ocr", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", &domain.TransientError{Op: "ocr", Err: fmt.Errorf("service returned %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr service rejected request: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.TransientError{Op: "ocr", Err: err}
	}
	return string(body), nil
}
