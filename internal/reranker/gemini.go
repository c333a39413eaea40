package reranker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carlosvictorodrigues/ratio/internal/gemini"
	"github.com/carlosvictorodrigues/ratio/internal/llm"
	"github.com/carlosvictorodrigues/ratio/internal/ranking"
)

// GeminiConfig bounds the remote judging work.
type GeminiConfig struct {
	Model        string
	BatchSize    int
	ExcerptChars int
	Passes       int
	RefineTop    int
	RefineWeight float64
	MaxWorkers   int
	MaxRetries   int
	RetryBase    time.Duration
	RetryMax     time.Duration
}

// GeminiBackend scores candidates with a Gemini model acting as a
// batch relevance judge. Batches are retried and run concurrently;
// items the model fails to score fall back to lexical overlap so a
// partial response never sinks the whole ranking, but a run where no
// batch yields a usable score is reported as an error.
type GeminiBackend struct {
	client *gemini.Client
	cfg    GeminiConfig
}

// NewGeminiBackend creates a Gemini judge backend.
func NewGeminiBackend(client *gemini.Client, cfg GeminiConfig) *GeminiBackend {
	if cfg.Model == "" {
		cfg.Model = "gemini-3-pro-preview"
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 8
	}
	if cfg.ExcerptChars < 200 {
		cfg.ExcerptChars = 1600
	}
	if cfg.Passes < 1 {
		cfg.Passes = 1
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 1500 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 20 * time.Second
	}
	if cfg.RefineWeight < 0 {
		cfg.RefineWeight = 0
	}
	if cfg.RefineWeight > 1 {
		cfg.RefineWeight = 1
	}
	return &GeminiBackend{client: client, cfg: cfg}
}

// Name identifies the backend in result metadata.
func (b *GeminiBackend) Name() string {
	return "gemini:" + b.cfg.Model
}

// WithModel returns a copy of the backend pointed at another judge
// model. The copy shares the underlying API client.
func (b *GeminiBackend) WithModel(model string) Backend {
	if model == "" || model == b.cfg.Model {
		return b
	}
	clone := *b
	clone.cfg.Model = model
	return &clone
}

type batchItem struct {
	index int
	doc   *ranking.Document
}

// Scores judges all documents in rotated batches, averages the passes
// with a dispersion penalty and recalibrates the leading candidates in
// a refinement round.
func (b *GeminiBackend) Scores(ctx context.Context, query string, docs []*ranking.Document) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if !b.client.HasKey() {
		return nil, &gemini.Error{Kind: gemini.KindMissingKey, Message: "rerank requires an API key"}
	}

	baseBatches := make([][]batchItem, 0, (len(docs)+b.cfg.BatchSize-1)/b.cfg.BatchSize)
	for start := 0; start < len(docs); start += b.cfg.BatchSize {
		end := start + b.cfg.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := make([]batchItem, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, batchItem{index: i, doc: docs[i]})
		}
		baseBatches = append(baseBatches, batch)
	}

	// Each pass rotates the batch so positional bias averages out.
	jobs := make([][]batchItem, 0, len(baseBatches)*b.cfg.Passes)
	for _, base := range baseBatches {
		for pass := 0; pass < b.cfg.Passes; pass++ {
			if len(base) > 1 {
				shift := pass % len(base)
				rotated := append(append([]batchItem{}, base[shift:]...), base[:shift]...)
				jobs = append(jobs, rotated)
			} else {
				jobs = append(jobs, base)
			}
		}
	}

	var mu sync.Mutex
	buckets := make([][]float64, len(docs))
	judged := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.MaxWorkers)
	for _, job := range jobs {
		g.Go(func() error {
			scores, err := b.scoreBatch(gctx, query, job)
			if err != nil {
				if gemini.IsFatal(err) {
					return err
				}
				scores = make(map[int]float64, len(job))
				for _, item := range job {
					scores[item.index] = fallbackScore(query, item.doc)
				}
			}
			mu.Lock()
			if err == nil {
				judged++
			}
			for idx, score := range scores {
				buckets[idx] = append(buckets[idx], ranking.Clip01(score))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// If the judge never produced a usable score the caller should use
	// its fallback backend instead of lexical stand-in values.
	if judged == 0 {
		return nil, fmt.Errorf("%s: %w", b.Name(), errNoScores)
	}

	scores := make([]float64, len(docs))
	for i, bucket := range buckets {
		if len(bucket) == 0 {
			scores[i] = fallbackScore(query, docs[i])
			continue
		}
		mean := 0.0
		for _, v := range bucket {
			mean += v
		}
		mean /= float64(len(bucket))
		variance := 0.0
		for _, v := range bucket {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(bucket))
		// Penalize unstable scores slightly.
		scores[i] = ranking.Clip01(mean - 0.08*math.Sqrt(variance))
	}

	b.refine(ctx, query, docs, scores)
	return scores, nil
}

func (b *GeminiBackend) scoreBatch(ctx context.Context, query string, batch []batchItem) (map[int]float64, error) {
	prompt := b.buildBatchPrompt(query, batch)
	text, err := b.generateWithRetry(ctx, prompt, 0.1)
	if err != nil {
		return nil, err
	}

	parsed := extractJSONArray(text)
	scores := make(map[int]float64, len(batch))
	assigned := make(map[int]struct{}, len(batch))
	for _, item := range parsed {
		localID, ok := asInt(item["id"])
		if !ok || localID < 1 || localID > len(batch) {
			continue
		}
		score, ok := scoreFromItem(item)
		if !ok {
			continue
		}
		scores[batch[localID-1].index] = score
		assigned[localID] = struct{}{}
	}
	if len(assigned) == 0 {
		return nil, errNoScores
	}

	for localID, item := range batch {
		if _, ok := assigned[localID+1]; !ok {
			scores[item.index] = fallbackScore(query, item.doc)
		}
	}
	return scores, nil
}

// refine asks the model to recalibrate the current leaders and blends
// the answer into the base scores. Errors leave the base scores as is.
func (b *GeminiBackend) refine(ctx context.Context, query string, docs []*ranking.Document, scores []float64) {
	refineTop := b.cfg.RefineTop
	if refineTop > len(docs) {
		refineTop = len(docs)
	}
	if refineTop < 4 {
		return
	}

	pool := make([]int, len(docs))
	for i := range pool {
		pool[i] = i
	}
	sort.SliceStable(pool, func(i, j int) bool { return scores[pool[i]] > scores[pool[j]] })
	pool = pool[:refineTop]

	var sb strings.Builder
	sb.WriteString("Voce vai recalibrar o ranking global dos melhores candidatos juridicos.\n")
	sb.WriteString("Retorne SOMENTE JSON valido no formato:\n")
	sb.WriteString("[{\"id\": 1, \"score\": 0.0}]\n")
	sb.WriteString("Regras:\n- score entre 0.0 e 1.0\n- use todos os IDs\n- sem texto extra\n\n")
	sb.WriteString("PERGUNTA:\n")
	sb.WriteString(query)
	sb.WriteString("\n\nCANDIDATOS:\n")
	for localID, globalIdx := range pool {
		fmt.Fprintf(&sb, "ID=%d\nBaseScore=%.4f\n%s\n\n", localID+1, scores[globalIdx], b.excerpt(docs[globalIdx], 1200))
	}

	text, err := b.generateWithRetry(ctx, sb.String(), 0.0)
	if err != nil {
		return
	}
	parsed := extractJSONArray(text)
	if parsed == nil {
		return
	}

	blend := b.cfg.RefineWeight
	for _, item := range parsed {
		localID, ok := asInt(item["id"])
		if !ok || localID < 1 || localID > len(pool) {
			continue
		}
		refined, ok := asFloat(item["score"])
		if !ok {
			continue
		}
		globalIdx := pool[localID-1]
		scores[globalIdx] = ranking.Clip01((1-blend)*scores[globalIdx] + blend*ranking.Clip01(refined))
	}
}

func (b *GeminiBackend) buildBatchPrompt(query string, batch []batchItem) string {
	var sb strings.Builder
	sb.WriteString("Voce e um reranker juridico senior para pesquisa STF/STJ.\n")
	sb.WriteString("Pontue CADA documento com rigor tecnico para responder a pergunta.\n")
	sb.WriteString("Rubrica de qualidade:\n")
	sb.WriteString("- relevancia juridica direta ao pedido;\n")
	sb.WriteString("- densidade de tese (nao apenas obice processual);\n")
	sb.WriteString("- alinhamento com forca normativa indicada;\n")
	sb.WriteString("- aplicabilidade pratica.\n")
	sb.WriteString("Penalize textos perifericos e excesso de processualismo quando nao for foco da pergunta.\n")
	sb.WriteString("Retorne SOMENTE JSON valido no formato:\n")
	sb.WriteString("[{\"id\": 1, \"score\": 0.0, \"relevance\": 0.0, \"thesis_density\": 0.0, ")
	sb.WriteString("\"authority_alignment\": 0.0, \"procedural_noise\": 0.0}]\n")
	sb.WriteString("Regras:\n- score e sub-scores entre 0.0 e 1.0\n- use todos os IDs recebidos\n- sem markdown, sem texto extra\n\n")
	sb.WriteString("PERGUNTA:\n")
	sb.WriteString(query)
	sb.WriteString("\n\nDOCUMENTOS:\n")
	for localID, item := range batch {
		fmt.Fprintf(&sb, "ID=%d\n%s\n\n", localID+1, b.excerpt(item.doc, b.cfg.ExcerptChars))
	}
	return sb.String()
}

// excerpt renders the judge's view of one document: provenance header,
// inferred normative force and compacted text.
func (b *GeminiBackend) excerpt(doc *ranking.Document, maxChars int) string {
	processo := doc.Process
	if processo == "" {
		processo = doc.DocID
	}
	if processo == "" {
		processo = "-"
	}
	tribunal := doc.Court
	if tribunal == "" {
		tribunal = "-"
	}
	date := "-"
	if !doc.JudgmentDate.IsZero() {
		date = doc.JudgmentDate.Format("2006-01-02")
	}
	auth := ranking.Classify(doc)

	text := fmt.Sprintf(
		"Tribunal: %s\nTipo: %s\nProcesso: %s\nData: %s\nForca normativa inferida: Nivel %s (%s) | score=%.2f\nMotivo de hierarquia: %s\n\nResumo:\n%s\n\nTrecho:\n%s",
		tribunal,
		ranking.TypeLabel(doc.Type),
		processo,
		date,
		auth.Level,
		auth.Level.Label(),
		auth.Score,
		auth.Reason,
		ranking.CleanRetrievedText(doc.SearchText),
		ranking.CleanRetrievedText(doc.FullText),
	)
	return ranking.TruncateText(ranking.CompactWhitespace(text), maxChars)
}

func (b *GeminiBackend) generateWithRetry(ctx context.Context, prompt string, temperature float32) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= b.cfg.MaxRetries; attempt++ {
		result, err := b.generate(ctx, prompt, temperature)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !gemini.IsRetryable(err) || attempt == b.cfg.MaxRetries {
			return "", err
		}

		delay := time.Duration(float64(b.cfg.RetryBase) * math.Pow(2, float64(attempt-1)))
		delay += time.Duration(rand.Int63n(int64(500 * time.Millisecond)))
		if delay > b.cfg.RetryMax {
			delay = b.cfg.RetryMax
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", lastErr
}

func (b *GeminiBackend) generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	client := llm.NewGeminiClient(b.client, llm.WithModel(b.cfg.Model))
	result, err := client.Generate(ctx, prompt, llm.GenerateOptions{
		Temperature:    temperature,
		ThinkingBudget: -1,
	})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// errNoScores reports a reply that contained no parseable score item.
var errNoScores = errors.New("judge returned no parseable scores")

var jsonArrayRe = regexp.MustCompile(`\[[\s\S]*\]`)

// extractJSONArray parses a JSON array of objects out of model text,
// tolerating code fences and prose around the payload.
func extractJSONArray(raw string) []map[string]any {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}

	var parsed []map[string]any
	if err := json.Unmarshal([]byte(value), &parsed); err == nil {
		return parsed
	}

	match := jsonArrayRe.FindString(value)
	if match == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return nil
	}
	return parsed
}

// scoreFromItem takes the direct score when present, otherwise blends
// the rubric sub-scores.
func scoreFromItem(item map[string]any) (float64, bool) {
	if score, ok := asFloat(item["score"]); ok {
		return ranking.Clip01(score), true
	}
	rel, okRel := asFloat(item["relevance"])
	thesis, _ := asFloat(item["thesis_density"])
	authority, _ := asFloat(item["authority_alignment"])
	noise, _ := asFloat(item["procedural_noise"])
	if !okRel {
		return 0, false
	}
	return ranking.Clip01(0.50*rel + 0.25*thesis + 0.20*authority - 0.15*noise), true
}

func fallbackScore(query string, doc *ranking.Document) float64 {
	text := ranking.CleanRetrievedText(doc.SearchText)
	return ranking.Clip01(ranking.LexicalOverlap(query, text))
}

func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func asInt(raw any) (int, bool) {
	f, ok := asFloat(raw)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

var _ Backend = (*GeminiBackend)(nil)
var _ ModelSelector = (*GeminiBackend)(nil)
