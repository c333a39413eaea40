package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/carlosvictorodrigues/ratio/internal/config"
	"github.com/carlosvictorodrigues/ratio/internal/gemini"
	"github.com/carlosvictorodrigues/ratio/internal/generator"
	"github.com/carlosvictorodrigues/ratio/internal/llm"
	"github.com/carlosvictorodrigues/ratio/internal/pipeline"
	"github.com/carlosvictorodrigues/ratio/internal/ranking"
	"github.com/carlosvictorodrigues/ratio/internal/reranker"
	"github.com/carlosvictorodrigues/ratio/internal/resilience"
	"github.com/carlosvictorodrigues/ratio/internal/retriever"
	"github.com/carlosvictorodrigues/ratio/internal/vectorstore"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.5, 0.5}, nil
}
func (stubEmbedder) Dimension() int    { return 2 }
func (stubEmbedder) ModelName() string { return "stub" }

type stubStore struct{}

func (stubStore) Search(ctx context.Context, source vectorstore.Source, req vectorstore.SearchRequest) ([]vectorstore.Row, error) {
	return []vectorstore.Row{
		{DocID: "d1", Type: "acordao", Court: "STF", SourceID: source.ID, SourceKind: source.Kind,
			SearchText: "Ementa sobre responsabilidade civil do Estado."},
	}, nil
}
func (stubStore) Close() error { return nil }

type stubBackend struct{}

func (stubBackend) Scores(ctx context.Context, query string, docs []*ranking.Document) ([]float64, error) {
	scores := make([]float64, len(docs))
	for i := range scores {
		scores[i] = 0.9
	}
	return scores, nil
}
func (stubBackend) Name() string { return "stub" }

type stubLLM struct{}

func (stubLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (llm.Result, error) {
	return llm.Result{
		Text:         "O Estado responde objetivamente pelos danos causados por seus agentes, conforme o precedente examinado [DOC. 1].",
		FinishReason: "STOP",
	}, nil
}

func testTuning() config.Tuning {
	return config.Tuning{
		TopKHybrid:                20,
		TopKRerank:                5,
		HybridRRFK:                60,
		SemanticWeight:            0.45,
		LexicalWeight:             0.20,
		ContextMaxPassagesPerDoc:  5,
		ContextMaxPassageChars:    1000,
		ContextMaxDocChars:        2500,
		ContextMaxTotalChars:      12000,
		ParagraphCitationMinChars: 120,
		GenerationModel:           "primary",
		GenerationMaxOutputToken:  3600,
	}
}

func testHandler() *queryHandler {
	tuning := testTuning()
	p := pipeline.New(pipeline.Options{
		Embedder:  stubEmbedder{},
		Retriever: retriever.New(stubStore{}, []vectorstore.Source{{ID: "corpus", Kind: "corpus", Collection: "c"}}, nil),
		Reranker:  reranker.New(stubBackend{}, nil),
		Generator: generator.New(stubLLM{}, nil),
		Executor:  resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 1}),
		Tuning:    tuning,
		Timeouts: pipeline.Timeouts{
			Embedding:  time.Second,
			Retrieval:  time.Second,
			Rerank:     time.Second,
			Generation: time.Second,
		},
	})
	return &queryHandler{
		pipeline: p,
		tuning:   tuning,
		logger:   slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil)),
	}
}

func TestQueryEndpoint(t *testing.T) {
	h := testHandler()
	body := `{"query": "responsabilidade civil do estado"}`
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.query(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Answer == "" {
		t.Error("expected a non-empty answer")
	}
	if len(result.Docs) == 0 {
		t.Error("expected serialized docs")
	}
}

func TestQueryEndpoint_BadRequests(t *testing.T) {
	h := testHandler()
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"query": `},
		{"missing query", `{}`},
		{"blank query", `{"query": "   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.query(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestQueryStream_NDJSON(t *testing.T) {
	h := testHandler()
	body := `{"query": "responsabilidade civil do estado"}`
	req := httptest.NewRequest(http.MethodPost, "/api/query/stream", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.queryStream(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}

	var lines []streamLine
	scanner := bufio.NewScanner(rec.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var line streamLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("bad NDJSON line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, line)
	}
	if len(lines) < 2 {
		t.Fatalf("expected at least started + result lines, got %d", len(lines))
	}
	if lines[0].Event != "started" {
		t.Errorf("first event = %q, want started", lines[0].Event)
	}
	last := lines[len(lines)-1]
	if last.Event != "result" || last.Result == nil {
		t.Fatalf("last event = %q, want result", last.Event)
	}
	if last.Result.Answer == "" {
		t.Error("result line must carry the answer")
	}
	sawStage := false
	for _, line := range lines {
		if line.Event == "stage" && line.Stage != nil {
			sawStage = true
		}
	}
	if !sawStage {
		t.Error("expected at least one stage event line")
	}
}

func TestRagConfigEndpoint(t *testing.T) {
	h := testHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/rag-config", nil)
	rec := httptest.NewRecorder()

	h.ragConfig(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload struct {
		Defaults config.Tuning         `json:"defaults"`
		Bounds   map[string][2]float64 `json:"bounds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Defaults.TopKRerank != 5 {
		t.Errorf("defaults not exposed, got %+v", payload.Defaults)
	}
	if b, ok := payload.Bounds["topk_rerank"]; !ok || b[0] != 2 || b[1] != 80 {
		t.Errorf("bounds not exposed, got %v", payload.Bounds["topk_rerank"])
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"all sources failed", retriever.ErrAllSourcesFailed, http.StatusBadGateway},
		{"invalid key", &gemini.Error{Kind: gemini.KindInvalidKey}, http.StatusUnauthorized},
		{"missing key", &gemini.Error{Kind: gemini.KindMissingKey}, http.StatusUnauthorized},
		{"rate limited", &gemini.Error{Kind: gemini.KindRateLimited}, http.StatusTooManyRequests},
		{"quota", &gemini.Error{Kind: gemini.KindQuotaExhausted}, http.StatusTooManyRequests},
		{"unavailable", &gemini.Error{Kind: gemini.KindUnavailable}, http.StatusServiceUnavailable},
		{"model unavailable", &gemini.Error{Kind: gemini.KindModelUnavailable}, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"wrapped deadline", errors.Join(errors.New("stage"), context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"generic", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorBody_Kind(t *testing.T) {
	resp := errorBody(&gemini.Error{Kind: gemini.KindRateLimited, Message: "slow down"})
	if resp.Kind != string(gemini.KindRateLimited) {
		t.Errorf("kind = %q", resp.Kind)
	}
	if resp.Error == "" {
		t.Error("error message must not be empty")
	}

	plain := errorBody(errors.New("boom"))
	if plain.Kind != "" {
		t.Errorf("plain errors carry no kind, got %q", plain.Kind)
	}
}
