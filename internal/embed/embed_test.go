package embed

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/time/rate"

	"github.com/entrena-ai/coursefeed/internal/config"
	"github.com/entrena-ai/coursefeed/internal/domain"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

type mockProvider struct {
	embedFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	return m.embedFunc(ctx, texts)
}

func newTestService(p provider) *Service {
	logging.Init(false)
	return &Service{
		provider: p,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		model:    "test-model",
		logger:   logging.NewLogger("embedder-test"),
	}
}

func TestEmbedBatch_AlignedVectors(t *testing.T) {
	s := newTestService(&mockProvider{
		embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{float32(i)}
			}
			return out, nil
		},
	})

	vectors, err := s.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	for i, v := range vectors {
		if v[0] != float32(i) {
			t.Errorf("vector %d out of order: %v", i, v)
		}
	}
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	s := newTestService(&mockProvider{
		embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			t.Fatal("provider must not be called for an empty batch")
			return nil, nil
		},
	})
	if vectors, err := s.EmbedBatch(context.Background(), nil); err != nil || vectors != nil {
		t.Fatalf("empty batch should be a no-op, got %v, %v", vectors, err)
	}
}

func TestEmbedBatch_ProviderFailureIsTyped(t *testing.T) {
	s := newTestService(&mockProvider{
		embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, errors.New("quota exceeded")
		},
	})

	_, err := s.EmbedBatch(context.Background(), []string{"a"})
	var svcErr *domain.EmbeddingServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected EmbeddingServiceError, got %v", err)
	}
	if svcErr.Model != "test-model" {
		t.Errorf("error names wrong model: %s", svcErr.Model)
	}
}

func TestEmbedBatch_MisalignmentFailsWholeBatch(t *testing.T) {
	s := newTestService(&mockProvider{
		embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1}}, nil // one short
		},
	})

	_, err := s.EmbedBatch(context.Background(), []string{"a", "b"})
	var svcErr *domain.EmbeddingServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected EmbeddingServiceError on misaligned response, got %v", err)
	}
}

func TestEmbedBatch_RejectsOversizedBatch(t *testing.T) {
	s := newTestService(&mockProvider{
		embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			t.Fatal("oversized batch must be rejected before the provider")
			return nil, nil
		},
	})

	texts := make([]string, config.EmbeddingBatchSize+1)
	if _, err := s.EmbedBatch(context.Background(), texts); err == nil {
		t.Fatal("expected error for oversized batch")
	}
}
