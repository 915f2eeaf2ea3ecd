package embed

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/entrena-ai/coursefeed/internal/config"
	"github.com/entrena-ai/coursefeed/internal/domain"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

// Embedder is what the pipeline sees: a batch of chunk texts in, a
// vector per text out, in the same order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// provider is one concrete embedding backend.
type provider interface {
	embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Service wraps a provider with rate limiting, alignment checks, and
// the typed failure the dispatcher routes on. A failure on any item
// fails the whole batch; partial-batch semantics are not assumed from
// any backend.
type Service struct {
	provider provider
	limiter  *rate.Limiter
	model    string
	logger   *logging.Logger
}

func NewService(ctx context.Context, cfg config.Config) (*Service, error) {
	var p provider
	var err error
	switch cfg.EmbeddingProvider {
	case "google":
		p, err = newGoogleProvider(ctx, cfg.EmbeddingModel, cfg.EmbeddingAPIKey, int32(cfg.EmbeddingDimension))
	case "openai":
		p, err = newOpenAIProvider(cfg.EmbeddingModel, cfg.EmbeddingAPIKey, cfg.EmbeddingDimension)
	default:
		err = fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
	if err != nil {
		return nil, err
	}

	return &Service{
		provider: p,
		limiter:  rate.NewLimiter(rate.Limit(config.EmbeddingRequestsPerSec), config.EmbeddingRequestsPerSec),
		model:    cfg.EmbeddingModel,
		logger:   logging.NewLogger("embedder"),
	}, nil
}

func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > config.EmbeddingBatchSize {
		return nil, &domain.EmbeddingServiceError{
			Model: s.model,
			Err:   fmt.Errorf("batch of %d exceeds limit %d", len(texts), config.EmbeddingBatchSize),
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &domain.TransientError{Op: "embed rate wait", Err: err}
	}

	vectors, err := s.provider.embed(ctx, texts)
	if err != nil {
		return nil, &domain.EmbeddingServiceError{Model: s.model, Err: err}
	}
	if len(vectors) != len(texts) {
		return nil, &domain.EmbeddingServiceError{
			Model: s.model,
			Err:   fmt.Errorf("got %d vectors for %d texts", len(vectors), len(texts)),
		}
	}

	s.logger.Debug("embedded batch", "texts", len(texts), "model", s.model)
	return vectors, nil
}
