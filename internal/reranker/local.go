package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carlosvictorodrigues/ratio/internal/ranking"
)

const (
	// DefaultLocalURL is the default cross-encoder inference endpoint.
	DefaultLocalURL = "http://localhost:8580"

	// DefaultLocalModel is the default cross-encoder model.
	DefaultLocalModel = "BAAI/bge-reranker-v2-m3"
)

// LocalBackend scores pairs against a locally hosted cross-encoder
// inference server speaking the text-embeddings-inference rerank API.
type LocalBackend struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// LocalOption is a functional option for configuring LocalBackend.
type LocalOption func(*LocalBackend)

// WithLocalURL sets a custom inference server URL.
func WithLocalURL(url string) LocalOption {
	return func(b *LocalBackend) {
		b.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithLocalModel sets the cross-encoder model name.
func WithLocalModel(model string) LocalOption {
	return func(b *LocalBackend) {
		b.model = model
	}
}

// WithLocalHTTPClient sets a custom HTTP client.
func WithLocalHTTPClient(client *http.Client) LocalOption {
	return func(b *LocalBackend) {
		b.httpClient = client
	}
}

// NewLocalBackend creates a cross-encoder backend.
func NewLocalBackend(opts ...LocalOption) *LocalBackend {
	b := &LocalBackend{
		baseURL: DefaultLocalURL,
		model:   DefaultLocalModel,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name identifies the backend in result metadata.
func (b *LocalBackend) Name() string {
	return "local"
}

type localRerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

type localRerankItem struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Scores sends all query-document pairs in one request and maps the
// returned items back to input order.
func (b *LocalBackend) Scores(ctx context.Context, query string, docs []*ranking.Document) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = ranking.CleanRetrievedText(doc.SearchText)
	}

	body, err := json.Marshal(localRerankRequest{Query: query, Texts: texts, Model: b.model})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var items []localRerankItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	scores := make([]float64, len(docs))
	assigned := 0
	for _, item := range items {
		if item.Index < 0 || item.Index >= len(docs) {
			continue
		}
		scores[item.Index] = item.Score
		assigned++
	}
	if assigned < len(docs) {
		return nil, fmt.Errorf("rerank server scored %d of %d documents", assigned, len(docs))
	}

	return scores, nil
}

var _ Backend = (*LocalBackend)(nil)
