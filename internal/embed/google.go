package embed

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

type googleProvider struct {
	client    *genai.Client
	model     string
	dimension int32
}

func newGoogleProvider(ctx context.Context, model, apiKey string, dimension int32) (*googleProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("creating google embedding client: %w", err)
	}
	return &googleProvider{client: client, model: model, dimension: dimension}, nil
}

func (p *googleProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	result, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &p.dimension,
		TaskType:             "RETRIEVAL_DOCUMENT",
	})
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, e := range result.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}
