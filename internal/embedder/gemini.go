package embedder

import (
	"context"
	"fmt"
	"strings"

	"github.com/carlosvictorodrigues/ratio/internal/gemini"
)

const (
	// DefaultModel is the default embedding model.
	DefaultModel = "gemini-embedding-001"

	// DefaultDimension matches the dimension the corpus was ingested with.
	DefaultDimension = 768

	// queryTaskType tells the API the text is a retrieval query, which
	// produces vectors comparable with RETRIEVAL_DOCUMENT ingest vectors.
	queryTaskType = "RETRIEVAL_QUERY"
)

// GeminiEmbedder implements the Embedder interface using the Gemini API.
type GeminiEmbedder struct {
	client    *gemini.Client
	model     string
	dimension int
}

// GeminiConfig holds configuration for the Gemini embedder.
type GeminiConfig struct {
	// Model is the embedding model to use (default: gemini-embedding-001).
	Model string

	// Dimension is the requested output dimensionality (default: 768).
	Dimension int
}

// NewGeminiEmbedder creates an embedder backed by the shared Gemini client.
func NewGeminiEmbedder(client *gemini.Client, cfg GeminiConfig) *GeminiEmbedder {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	return &GeminiEmbedder{
		client:    client,
		model:     model,
		dimension: dimension,
	}
}

type embedRequest struct {
	Content              embedContent `json:"content"`
	TaskType             string       `json:"taskType"`
	OutputDimensionality int          `json:"outputDimensionality"`
}

type embedContent struct {
	Parts []embedPart `json:"parts"`
}

type embedPart struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Embed generates an embedding vector for a single text input.
// It is a single best-effort call; retries belong to the orchestrator.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("embed: empty input text")
	}

	req := embedRequest{
		Content:              embedContent{Parts: []embedPart{{Text: trimmed}}},
		TaskType:             queryTaskType,
		OutputDimensionality: e.dimension,
	}

	var resp embedResponse
	if err := e.client.Post(ctx, e.model, "embedContent", req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embedding.Values) == 0 {
		return nil, &gemini.Error{Kind: gemini.KindUnknown, Message: "empty embedding returned"}
	}
	if len(resp.Embedding.Values) != e.dimension {
		return nil, fmt.Errorf("embed: expected %d dimensions, got %d", e.dimension, len(resp.Embedding.Values))
	}

	return resp.Embedding.Values, nil
}

// Dimension returns the dimensionality of the embedding vectors.
func (e *GeminiEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns the name of the embedding model being used.
func (e *GeminiEmbedder) ModelName() string {
	return e.model
}

// Ensure GeminiEmbedder implements Embedder interface.
var _ Embedder = (*GeminiEmbedder)(nil)
