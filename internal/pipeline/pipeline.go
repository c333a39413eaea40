// Package pipeline orchestrates a query end to end: embed the
// question, retrieve hybrid candidates, rerank, assemble context,
// generate the cited answer and audit it. Stages run in a fixed
// order with individual timeouts; non-fatal trouble is accumulated as
// warnings on the result instead of failing the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/carlosvictorodrigues/ratio/internal/assembler"
	"github.com/carlosvictorodrigues/ratio/internal/auditor"
	"github.com/carlosvictorodrigues/ratio/internal/config"
	"github.com/carlosvictorodrigues/ratio/internal/embedder"
	"github.com/carlosvictorodrigues/ratio/internal/gemini"
	"github.com/carlosvictorodrigues/ratio/internal/generator"
	"github.com/carlosvictorodrigues/ratio/internal/metrics"
	"github.com/carlosvictorodrigues/ratio/internal/ranking"
	"github.com/carlosvictorodrigues/ratio/internal/repository"
	"github.com/carlosvictorodrigues/ratio/internal/reranker"
	"github.com/carlosvictorodrigues/ratio/internal/resilience"
	"github.com/carlosvictorodrigues/ratio/internal/retriever"
	"github.com/carlosvictorodrigues/ratio/internal/vectorstore"
)

// NoResultsAnswer is returned when retrieval finds nothing.
const NoResultsAnswer = "Nao encontrei documentos relevantes no acervo."

// RefusalAnswer replaces model refusals with a stable phrasing.
const RefusalAnswer = "Não encontrei documentos relevantes no acervo para estruturar uma resposta."

// Stage names, in execution order.
const (
	StageEmbedding  = "embedding"
	StageRetrieval  = "retrieval"
	StageRerank     = "rerank"
	StageGeneration = "generation"
	StageValidation = "validation"
)

// Warning codes attached to result metadata.
const (
	WarnPartialSourceFailure = "partial_source_failure"
	WarnDegradedRerank       = "degraded_rerank"
	WarnValidation           = "validation"
	WarnHydration            = "hydration_failed"
)

// Request is one query to answer.
type Request struct {
	Query string `json:"query"`

	Courts             []string `json:"tribunais,omitempty"`
	Types              []string `json:"tipos,omitempty"`
	Branches           []string `json:"ramos,omitempty"`
	Organs             []string `json:"orgaos,omitempty"`
	RapporteurContains string   `json:"relator_contains,omitempty"`
	DateFrom           string   `json:"date_from,omitempty"`
	DateTo             string   `json:"date_to,omitempty"`
	Sources            []string `json:"sources,omitempty"`

	PreferRecent      *bool `json:"prefer_recent,omitempty"`
	PreferUserSources *bool `json:"prefer_user_sources,omitempty"`

	RAGConfig map[string]any `json:"rag_config,omitempty"`
}

// Warning is one non-fatal problem encountered during a run.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StageEvent reports pipeline progress. Events are delivered
// best-effort; a slow consumer never stalls the pipeline.
type StageEvent struct {
	Stage        string             `json:"stage"`
	Timings      map[string]float64 `json:"timings"`
	Candidates   int                `json:"candidates,omitempty"`
	ReturnedDocs int                `json:"returned_docs,omitempty"`
}

// Meta summarizes one run.
type Meta struct {
	RunID             string                `json:"run_id"`
	Timings           map[string]float64    `json:"timings"`
	TotalSeconds      float64               `json:"total_seconds"`
	Candidates        int                   `json:"candidates"`
	ReturnedDocs      int                   `json:"returned_docs"`
	PreferRecent      bool                  `json:"prefer_recent"`
	PreferUserSources bool                  `json:"prefer_user_sources"`
	Sources           []string              `json:"sources"`
	RerankerBackend   string                `json:"reranker_backend"`
	Weights           config.Tuning         `json:"weights"`
	Generation        generator.Diagnostics `json:"generation"`
	GenerationWarning *generator.Notice     `json:"generation_warning,omitempty"`
	Warnings          []Warning             `json:"warnings,omitempty"`
}

// Result is the final outcome of a run.
type Result struct {
	Answer string          `json:"answer"`
	Docs   []SerializedDoc `json:"docs"`
	Meta   Meta            `json:"meta"`
}

// Timeouts bound each stage.
type Timeouts struct {
	Embedding  time.Duration
	Retrieval  time.Duration
	Rerank     time.Duration
	Generation time.Duration
}

// Pipeline wires the stages together.
type Pipeline struct {
	embedder  embedder.Embedder
	retriever *retriever.Retriever
	reranker  *reranker.Reranker
	generator *generator.Generator
	opinions  repository.OpinionRepository
	executor  *resilience.Executor
	metrics   *metrics.Metrics
	logger    *slog.Logger

	tuning   config.Tuning
	timeouts Timeouts

	preferRecentDefault bool
}

// Options configure a Pipeline.
type Options struct {
	Embedder  embedder.Embedder
	Retriever *retriever.Retriever
	Reranker  *reranker.Reranker
	Generator *generator.Generator

	// Opinions is optional; without it full texts are never hydrated
	// from PostgreSQL.
	Opinions repository.OpinionRepository

	Executor *resilience.Executor
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	Tuning              config.Tuning
	Timeouts            Timeouts
	PreferRecentDefault bool
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	executor := opts.Executor
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Pipeline{
		embedder:            opts.Embedder,
		retriever:           opts.Retriever,
		reranker:            opts.Reranker,
		generator:           opts.Generator,
		opinions:            opts.Opinions,
		executor:            executor,
		metrics:             opts.Metrics,
		logger:              logger,
		tuning:              opts.Tuning,
		timeouts:            opts.Timeouts,
		preferRecentDefault: opts.PreferRecentDefault,
	}
}

// Query runs the full pipeline. The events channel may be nil; when
// set, stage events are sent without blocking.
func (p *Pipeline) Query(ctx context.Context, req Request, events chan<- StageEvent) (*Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("pipeline: empty query")
	}

	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	started := time.Now()

	tuning := p.tuning.Resolve(req.RAGConfig)
	prefs := reranker.Preferences{
		PreferRecent:      p.preferRecentDefault,
		PreferUserSources: true,
	}
	if req.PreferRecent != nil {
		prefs.PreferRecent = *req.PreferRecent
	}
	if req.PreferUserSources != nil {
		prefs.PreferUserSources = *req.PreferUserSources
	}

	run := &runState{
		timings: make(map[string]float64, 6),
		events:  events,
	}
	meta := Meta{
		RunID:             runID,
		Timings:           run.timings,
		PreferRecent:      prefs.PreferRecent,
		PreferUserSources: prefs.PreferUserSources,
		Sources:           req.Sources,
		Weights:           tuning,
	}

	logger.Info("query started", "query_chars", len(query), "sources", req.Sources)

	// Embedding
	run.emit(StageEmbedding + "_start")
	vector, err := p.embedQuery(ctx, query)
	run.finishStage(p.metrics, StageEmbedding)
	if err != nil {
		p.countFailure(StageEmbedding, err)
		run.emit("failed")
		return nil, fmt.Errorf("embedding stage: %w", err)
	}
	run.emit(StageEmbedding + "_done")

	// Retrieval
	run.emit(StageRetrieval + "_start")
	docs, failures, err := p.retrieve(ctx, query, vector, req, tuning)
	run.finishStage(p.metrics, StageRetrieval)
	if err != nil {
		p.countFailure(StageRetrieval, err)
		run.emit("failed")
		return nil, fmt.Errorf("retrieval stage: %w", err)
	}
	for _, failure := range failures {
		run.warn(p.metrics, WarnPartialSourceFailure, failure.String())
	}
	run.candidates = len(docs)
	run.emitCounts(StageRetrieval + "_done")
	meta.Candidates = len(docs)
	logger.Info("retrieval done", "candidates", len(docs), "failed_legs", len(failures))

	if len(docs) == 0 {
		meta.Warnings = run.warnings
		meta.TotalSeconds = time.Since(started).Seconds()
		run.emit("done")
		if p.metrics != nil {
			p.metrics.QueryCompleted("empty", 0)
		}
		return &Result{Answer: NoResultsAnswer, Docs: []SerializedDoc{}, Meta: meta}, nil
	}

	// Rerank
	run.emitCounts(StageRerank + "_start")
	top, outcome := p.rerank(ctx, query, docs, tuning, prefs)
	run.finishStage(p.metrics, StageRerank)
	if outcome.Degraded {
		run.warn(p.metrics, WarnDegradedRerank, outcome.DegradedReason)
	}
	meta.RerankerBackend = outcome.Backend
	run.returnedDocs = len(top)
	run.emitCounts(StageRerank + "_done")
	logger.Info("rerank done", "backend", outcome.Backend, "returned_docs", len(top))

	p.hydrate(ctx, top, run)

	// Generation
	run.emit(StageGeneration + "_start")
	contextBlock := assembler.Render(top, query, assembler.Budgets{
		MaxPassagesPerDoc: tuning.ContextMaxPassagesPerDoc,
		MaxPassageChars:   tuning.ContextMaxPassageChars,
		MaxDocChars:       tuning.ContextMaxDocChars,
		MaxTotalChars:     tuning.ContextMaxTotalChars,
	})
	answer, diag, err := p.generate(ctx, query, contextBlock, tuning)
	run.finishStage(p.metrics, StageGeneration)
	meta.Generation = diag
	if err != nil {
		p.countFailure(StageGeneration, err)
		run.emit("failed")
		return nil, fmt.Errorf("generation stage: %w", err)
	}
	run.emit(StageGeneration + "_done")

	// Validation
	run.emit(StageValidation + "_start")
	if auditor.IsRefusal(answer) {
		answer = RefusalAnswer
	}
	report := auditor.Audit(answer, len(top), auditor.Config{
		ParagraphMinChars: tuning.ParagraphCitationMinChars,
	})
	answer = report.Answer
	for _, finding := range report.Findings {
		run.warn(p.metrics, WarnValidation, string(finding.Kind)+": "+finding.Message)
	}
	if notice := generator.BuildNotice(diag); notice.Code != "" {
		meta.GenerationWarning = &notice
		run.warn(p.metrics, notice.Code, notice.Message)
		answer = strings.TrimRight(answer, "\n ") + "\n\n[AVISO DE CONFIGURACAO] " + notice.Message
	}
	run.finishStage(p.metrics, StageValidation)

	meta.ReturnedDocs = len(top)
	meta.Warnings = run.warnings
	meta.TotalSeconds = time.Since(started).Seconds()
	run.timings["total"] = meta.TotalSeconds
	run.emitCounts("done")

	if p.metrics != nil {
		p.metrics.QueryCompleted("ok", len(top))
	}
	logger.Info("query done",
		"total_seconds", meta.TotalSeconds,
		"returned_docs", len(top),
		"warnings", len(run.warnings))

	return &Result{
		Answer: answer,
		Docs:   SerializeDocs(top),
		Meta:   meta,
	}, nil
}

func (p *Pipeline) embedQuery(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := stageContext(ctx, p.timeouts.Embedding)
	defer cancel()

	var vector []float32
	err := p.executor.Execute(ctx, "gemini_embed", func(ctx context.Context) error {
		var err error
		vector, err = p.embedder.Embed(ctx, query)
		return err
	}, resilience.GeminiClassifier)
	return vector, err
}

func (p *Pipeline) retrieve(ctx context.Context, query string, vector []float32, req Request, tuning config.Tuning) ([]*ranking.Document, []retriever.SourceFailure, error) {
	ctx, cancel := stageContext(ctx, p.timeouts.Retrieval)
	defer cancel()

	filter := vectorstore.Filter{
		Courts:             req.Courts,
		Types:              req.Types,
		Branches:           req.Branches,
		Organs:             req.Organs,
		RapporteurContains: req.RapporteurContains,
	}
	if from, err := time.Parse("2006-01-02", req.DateFrom); err == nil {
		filter.DateFrom = from
	}
	if to, err := time.Parse("2006-01-02", req.DateTo); err == nil {
		filter.DateTo = to
	}

	return p.retriever.Retrieve(ctx, query, vector, retriever.Options{
		TopK:    tuning.TopKHybrid,
		RRFK:    tuning.HybridRRFK,
		Sources: req.Sources,
		Filter:  filter,
	})
}

func (p *Pipeline) rerank(ctx context.Context, query string, docs []*ranking.Document, tuning config.Tuning, prefs reranker.Preferences) ([]*ranking.Document, reranker.Outcome) {
	ctx, cancel := stageContext(ctx, p.timeouts.Rerank)
	defer cancel()
	return p.reranker.Rank(ctx, query, docs, tuning, prefs)
}

func (p *Pipeline) generate(ctx context.Context, query, contextBlock string, tuning config.Tuning) (string, generator.Diagnostics, error) {
	ctx, cancel := stageContext(ctx, p.timeouts.Generation)
	defer cancel()
	return p.generator.Generate(ctx, query, contextBlock, tuning)
}

// hydrate fills missing full texts from PostgreSQL for the documents
// that made the final cut. Failures degrade to the payload excerpt.
func (p *Pipeline) hydrate(ctx context.Context, docs []*ranking.Document, run *runState) {
	if p.opinions == nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, doc := range docs {
		if doc.FullText != "" || doc.DocID == "" || doc.SourceKind == "user" {
			continue
		}
		g.Go(func() error {
			op, err := p.opinions.GetOpinion(gctx, doc.SourceID, doc.DocID)
			if err != nil {
				if !errors.Is(err, repository.ErrNotFound) {
					run.warn(p.metrics, WarnHydration, fmt.Sprintf("%s/%s: %v", doc.SourceID, doc.DocID, err))
				}
				return nil
			}
			doc.FullText = op.FullText
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) countFailure(stage string, err error) {
	if p.metrics == nil {
		return
	}
	p.metrics.QueryCompleted("failed", 0)
	p.metrics.UpstreamError(stage, errorKind(err))
}

func errorKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var apiErr *gemini.Error
	if errors.As(err, &apiErr) {
		return string(apiErr.Kind)
	}
	return "unknown"
}

func stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// runState tracks the mutable bits of one run. warn may be called
// from hydration goroutines, so warnings are guarded.
type runState struct {
	timings      map[string]float64
	stageStarted time.Time
	candidates   int
	returnedDocs int
	events       chan<- StageEvent

	mu       sync.Mutex
	warnings []Warning
}

func (r *runState) emit(stage string) {
	r.stageStartIfNeeded(stage)
	r.send(StageEvent{Stage: stage, Timings: copyTimings(r.timings)})
}

func (r *runState) emitCounts(stage string) {
	r.stageStartIfNeeded(stage)
	r.send(StageEvent{
		Stage:        stage,
		Timings:      copyTimings(r.timings),
		Candidates:   r.candidates,
		ReturnedDocs: r.returnedDocs,
	})
}

func (r *runState) stageStartIfNeeded(stage string) {
	if strings.HasSuffix(stage, "_start") {
		r.stageStarted = time.Now()
	}
}

func (r *runState) finishStage(m *metrics.Metrics, stage string) {
	elapsed := time.Since(r.stageStarted)
	r.timings[stage] = elapsed.Seconds()
	if m != nil {
		m.ObserveStage(stage, elapsed)
	}
}

func (r *runState) warn(m *metrics.Metrics, code, message string) {
	r.mu.Lock()
	r.warnings = append(r.warnings, Warning{Code: code, Message: message})
	r.mu.Unlock()
	if m != nil {
		m.Warning(code)
	}
}

func (r *runState) send(ev StageEvent) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- ev:
	default:
	}
}

func copyTimings(src map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
