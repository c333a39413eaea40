// Package generator produces the cited answer from the assembled
// context. A primary model is tried first; empty or token-capped
// responses roll over to a fallback model, and whichever non-empty
// text survives is returned together with diagnostics so callers can
// surface configuration notices.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/carlosvictorodrigues/ratio/internal/config"
	"github.com/carlosvictorodrigues/ratio/internal/gemini"
	"github.com/carlosvictorodrigues/ratio/internal/llm"
	"github.com/carlosvictorodrigues/ratio/internal/resilience"
)

// EmptyAnswer is returned when no model produced text.
const EmptyAnswer = "Nao foi possivel gerar resposta."

// errEmptyResponse marks a call that succeeded upstream but carried no
// text. Treated as retryable without feeding the circuit breaker.
var errEmptyResponse = errors.New("generation: empty response")

// systemPromptHeader carries the citation contract: answers must
// ground every legal claim in the numbered context block.
const systemPromptHeader = "Voce e um assistente juridico especialista na jurisprudencia do STF e STJ.\n" +
	"REGRA 1: Escreva uma narrativa fluida integrando a explicacao e a fundamentacao em um unico texto.\n" +
	"REGRA 2: Responda com base EXCLUSIVA nos [DOCS] recuperados no acervo.\n" +
	"REGRA 3: Diferencie claramente (a) precedentes que definem o merito da controversia e " +
	"(b) precedentes que tratam de matéria processual.\n" +
	"REGRA 3B: Priorize precedentes qualificados e vinculantes " +
	"(sumula vinculante, tema de repercussao geral, tema repetitivo, controle concentrado). " +
	"Use acordaos ordinarios, decisoes monocraticas e informativos apenas como apoio.\n" +
	"REGRA 3C: O texto pode ser lido por TTS. Evite formato que dependa de visao " +
	"(tabelas, setas, markdown complexo, abreviacoes opacas sem expandir).\n" +
	"REGRA 3D: Nao escreva numeros por extenso. Preserve numeros de processo, tema, sumula, artigo e data no formato numerico original.\n" +
	"REGRA 3E: Use a forma 'tema de repercussao geral' e nunca 'tema da repercussao geral'.\n" +
	"REGRA 3F: Ao citar sumula, sumula vinculante, tema de repercussao geral ou tema repetitivo, explique o enunciado/tese correspondente (com trecho literal quando possivel); nao cite apenas o numero.\n" +
	"REGRA 3G: Nao mencione classificacoes internas do sistema de ranking. " +
	"Em vez disso, identifique explicitamente o tipo do precedente " +
	"(tema, sumula, acordao, habeas corpus, decisao monocratica, entre outros).\n" +
	"REGRA 3H: Nao gere secoes finais de inventario de fontes " +
	"(ex.: 'Documentos citados' ou JSON de documentos). " +
	"Mantenha as referencias apenas no corpo do texto com [DOC. N].\n" +
	"REGRA 4: Toda afirmacao juridica central deve trazer citacao explicita no formato [DOC. N].\n" +
	"REGRA 4B: Todo paragrafo analitico deve terminar com pelo menos uma citacao [DOC. N].\n" +
	"REGRA 5: Inclua trechos literais curtos, quando cabíveis, em formato de citacao direta markdown: " +
	"> \"texto literal\" [DOC. N].\n" +
	"REGRA 6: Nao invente orgao julgador, data ou tese. Se faltar prova textual, diga que faltou.\n\n" +
	"REGRA 6B: Ao final, traga uma sintese conclusiva respondendo objetivamente ao que foi perguntado.\n\n"

// Attempt records one model call for diagnostics.
type Attempt struct {
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason"`
	HitMaxTokens bool   `json:"hit_max_tokens"`
	TextChars    int    `json:"text_chars"`
}

// Diagnostics describe how the final answer was obtained.
type Diagnostics struct {
	Attempts             []Attempt `json:"attempts"`
	PrimaryHitMaxTokens  bool      `json:"primary_hit_max_tokens"`
	UsedFallback         bool      `json:"used_fallback"`
	SelectedModel        string    `json:"selected_model"`
	SelectedHitMaxTokens bool      `json:"selected_hit_max_tokens"`
}

// Notice is the structured configuration warning attached to results
// when the primary model hit its output cap.
type Notice struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	PrimaryModel  string `json:"primary_model"`
	SelectedModel string `json:"selected_model"`
	UsedFallback  bool   `json:"used_fallback"`
}

// Generator drives answer generation over an LLM client.
type Generator struct {
	llm      llm.LLM
	executor *resilience.Executor
	logger   *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithExecutor sets the retry/breaker executor for primary-model calls.
func WithExecutor(executor *resilience.Executor) Option {
	return func(g *Generator) {
		g.executor = executor
	}
}

// New creates a Generator.
func New(client llm.LLM, logger *slog.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Generator{llm: client, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	if g.executor == nil {
		g.executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return g
}

// generationClassifier retries empty responses alongside the usual
// transient upstream failures.
func generationClassifier(err error) resilience.ErrorClassification {
	if errors.Is(err, errEmptyResponse) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: false}
	}
	return resilience.GeminiClassifier(err)
}

// Generate produces an answer for the query over the rendered context.
// The primary model gets a bounded retry with backoff on retryable
// failures and empty responses; fatal upstream errors (missing or
// invalid key) surface immediately, and anything else falls through to
// one fallback-model call. When even the fallback fails, the primary's
// partial text (if any) is kept.
func (g *Generator) Generate(ctx context.Context, query, contextBlock string, tuning config.Tuning) (string, Diagnostics, error) {
	systemPrompt := systemPromptHeader +
		"====== CONTEXTO RECUPERADO ======\n" +
		contextBlock +
		"=================================\n"

	opts := llm.GenerateOptions{
		SystemPrompt:   systemPrompt,
		Temperature:    float32(tuning.GenerationTemperature),
		MaxTokens:      maxTokens(tuning.GenerationMaxOutputToken),
		ThinkingBudget: tuning.GenerationThinkingBudget,
	}

	diag := Diagnostics{}
	primaryModel := tuning.GenerationModel
	fallbackModel := tuning.GenerationFallbackModel

	opts.Model = primaryModel
	var primaryText string
	var primaryTruncated bool
	err := g.executor.Execute(ctx, "gemini_generate", func(ctx context.Context) error {
		text, truncated, attemptErr := g.attempt(ctx, query, opts, &diag)
		if attemptErr != nil {
			return attemptErr
		}
		if text == "" && !truncated {
			return errEmptyResponse
		}
		primaryText, primaryTruncated = text, truncated
		return nil
	}, generationClassifier)
	if err != nil {
		if gemini.IsFatal(err) {
			return "", diag, err
		}
		g.logger.Warn("generation failed on primary model", "model", primaryModel, "error", err)
	}
	diag.PrimaryHitMaxTokens = primaryTruncated
	if primaryText != "" && !primaryTruncated {
		diag.SelectedModel = primaryModel
		return primaryText, diag, nil
	}

	if fallbackModel != "" && fallbackModel != primaryModel {
		opts.Model = fallbackModel
		fallbackText, fallbackTruncated, fbErr := g.attempt(ctx, query, opts, &diag)
		if fbErr != nil {
			if gemini.IsFatal(fbErr) && primaryText == "" {
				return "", diag, fbErr
			}
			g.logger.Warn("generation failed on fallback model", "model", fallbackModel, "error", fbErr)
		}
		if fallbackText != "" {
			diag.SelectedModel = fallbackModel
			diag.UsedFallback = true
			diag.SelectedHitMaxTokens = fallbackTruncated
			return fallbackText, diag, nil
		}
	}

	if primaryText != "" {
		diag.SelectedModel = primaryModel
		diag.SelectedHitMaxTokens = primaryTruncated
		return primaryText, diag, nil
	}

	if err != nil && !errors.Is(err, errEmptyResponse) {
		return "", diag, fmt.Errorf("generation failed: %w", err)
	}
	return EmptyAnswer, diag, nil
}

func (g *Generator) attempt(ctx context.Context, query string, opts llm.GenerateOptions, diag *Diagnostics) (string, bool, error) {
	result, err := g.llm.Generate(ctx, query, opts)
	if err != nil {
		diag.Attempts = append(diag.Attempts, Attempt{Model: opts.Model})
		return "", false, err
	}
	text := strings.TrimSpace(result.Text)
	diag.Attempts = append(diag.Attempts, Attempt{
		Model:        opts.Model,
		FinishReason: result.FinishReason,
		HitMaxTokens: result.Truncated,
		TextChars:    len(text),
	})
	return text, result.Truncated, nil
}

func maxTokens(configured int) int {
	if configured < 300 {
		return 300
	}
	return configured
}

// BuildNotice converts diagnostics into the user-facing configuration
// warning. It returns the zero Notice when the primary model finished
// normally.
func BuildNotice(diag Diagnostics) Notice {
	if len(diag.Attempts) == 0 || !diag.Attempts[0].HitMaxTokens {
		return Notice{}
	}

	primaryModel := diag.Attempts[0].Model
	if primaryModel == "" {
		primaryModel = "modelo principal"
	}

	if diag.UsedFallback && diag.SelectedModel != "" {
		return Notice{
			Code: "gemini_max_tokens_fallback",
			Message: fmt.Sprintf(
				"O modelo Gemini principal (%s) encerrou por MAX_TOKENS. "+
					"A resposta final foi concluida com o fallback (%s). "+
					"Para reduzir recorrencia, aumente 'Tokens Max da Resposta' e/ou reduza "+
					"'Orcamento de Raciocinio (Thinking)'.",
				primaryModel, diag.SelectedModel),
			PrimaryModel:  primaryModel,
			SelectedModel: diag.SelectedModel,
			UsedFallback:  true,
		}
	}

	return Notice{
		Code: "gemini_max_tokens_primary_only",
		Message: fmt.Sprintf(
			"O modelo Gemini principal (%s) encerrou por MAX_TOKENS e a resposta pode ter ficado curta. "+
				"Ajuste 'Tokens Max da Resposta' e/ou reduza 'Orcamento de Raciocinio (Thinking)'.",
			primaryModel),
		PrimaryModel:  primaryModel,
		SelectedModel: diag.SelectedModel,
	}
}
