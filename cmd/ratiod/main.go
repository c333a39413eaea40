package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlosvictorodrigues/ratio/internal/auth"
	"github.com/carlosvictorodrigues/ratio/internal/config"
	"github.com/carlosvictorodrigues/ratio/internal/embedder"
	"github.com/carlosvictorodrigues/ratio/internal/gemini"
	"github.com/carlosvictorodrigues/ratio/internal/generator"
	"github.com/carlosvictorodrigues/ratio/internal/llm"
	"github.com/carlosvictorodrigues/ratio/internal/metrics"
	"github.com/carlosvictorodrigues/ratio/internal/pipeline"
	"github.com/carlosvictorodrigues/ratio/internal/repository"
	"github.com/carlosvictorodrigues/ratio/internal/repository/postgres"
	"github.com/carlosvictorodrigues/ratio/internal/reranker"
	"github.com/carlosvictorodrigues/ratio/internal/resilience"
	"github.com/carlosvictorodrigues/ratio/internal/retriever"
	"github.com/carlosvictorodrigues/ratio/internal/server"
	"github.com/carlosvictorodrigues/ratio/internal/vectorstore"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting query service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
		"reranker_backend", cfg.RerankerBackend,
	)

	// PostgreSQL holds the long-form opinion texts. Optional: without
	// it the pipeline serves Qdrant payload excerpts only.
	var opinions repository.OpinionRepository
	db, err := postgres.Connect(ctx, cfg.DatabaseURL,
		postgres.WithMaxConns(cfg.DatabaseMaxConns),
		postgres.WithPingTimeout(cfg.DatabasePingTimeout),
	)
	if err != nil {
		slog.Warn("PostgreSQL unavailable, full texts will not be hydrated", "error", err)
	} else {
		defer db.Close()
		opinions = postgres.NewOpinionRepository(db)
		slog.Info("connected to PostgreSQL")
	}

	vectorStore, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer vectorStore.Close()
	slog.Info("connected to Qdrant")

	geminiClient := gemini.NewClient(cfg.GeminiAPIKey,
		gemini.WithBaseURL(cfg.GeminiBaseURL),
		gemini.WithHTTPClient(&http.Client{Timeout: cfg.GeminiTimeout}),
		gemini.WithRateLimit(cfg.GeminiRequestsPerSec, 1),
	)

	embed := embedder.NewGeminiEmbedder(geminiClient, embedder.GeminiConfig{
		Model:     cfg.EmbeddingModel,
		Dimension: cfg.EmbeddingDimension,
	})
	slog.Info("initialized embedder", "model", cfg.EmbeddingModel, "dimension", cfg.EmbeddingDimension)

	llmClient := llm.NewGeminiClient(geminiClient)

	sources := []vectorstore.Source{
		{ID: "corpus", Label: "Acervo de jurisprudencia", Kind: "corpus", Collection: cfg.CorpusCollection},
		{ID: "user", Label: "Meu acervo", Kind: "user", Collection: cfg.UserCollection},
	}
	retrieve := retriever.New(vectorStore, sources, slog.Default())

	rerank := buildReranker(cfg, geminiClient)

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	promMetrics := metrics.New()

	pipe := pipeline.New(pipeline.Options{
		Embedder:  embed,
		Retriever: retrieve,
		Reranker:  rerank,
		Generator: generator.New(llmClient, slog.Default(), generator.WithExecutor(executor)),
		Opinions:  opinions,
		Executor:  executor,
		Metrics:   promMetrics,
		Logger:    slog.Default(),
		Tuning:    cfg.Tuning,
		Timeouts: pipeline.Timeouts{
			Embedding:  cfg.EmbeddingTimeout,
			Retrieval:  cfg.RetrievalTimeout,
			Rerank:     cfg.RerankTimeout,
			Generation: cfg.GenerationTimeout,
		},
		PreferRecentDefault: cfg.PreferRecentDefault,
	})

	authConfig := auth.DefaultConfig(cfg.JWTSecret)
	authConfig.Expiry = cfg.JWTExpiry
	authManager := auth.NewManager(authConfig)

	httpServer, err := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		Logger:         slog.Default(),
		AllowedOrigins: []string{"*"},
		Pipeline:       pipe,
		Tuning:         cfg.Tuning,
		Metrics:        promMetrics,
		Auth:           authManager,
		AuthDisabled:   cfg.AuthOff,
		AuthServiceKey: cfg.AuthServiceKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// buildReranker wires the configured semantic backend as primary and
// the other one as fallback.
func buildReranker(cfg *config.Config, geminiClient *gemini.Client) *reranker.Reranker {
	local := reranker.NewLocalBackend(
		reranker.WithLocalURL(cfg.RerankerURL),
		reranker.WithLocalModel(cfg.RerankerModel),
		reranker.WithLocalHTTPClient(&http.Client{Timeout: cfg.RerankerTimeout}),
	)
	judge := reranker.NewGeminiBackend(geminiClient, reranker.GeminiConfig{
		Model:        cfg.Tuning.GeminiRerankModel,
		BatchSize:    cfg.RerankBatchSize,
		ExcerptChars: cfg.RerankExcerptChars,
		Passes:       cfg.RerankPasses,
		RefineTop:    cfg.RerankRefineTop,
		RefineWeight: cfg.RerankRefineWeight,
		MaxWorkers:   cfg.RerankMaxWorkers,
		MaxRetries:   cfg.RerankMaxRetries,
		RetryBase:    cfg.RerankRetryBase,
		RetryMax:     cfg.RerankRetryMax,
	})

	if cfg.RerankerBackend == "gemini" {
		return reranker.New(judge, slog.Default(), reranker.WithFallback(local))
	}
	return reranker.New(local, slog.Default(), reranker.WithFallback(judge))
}
