package llm

import (
	"context"
	"strings"

	"github.com/carlosvictorodrigues/ratio/internal/gemini"
)

const (
	// DefaultModel is the default generation model.
	DefaultModel = "gemini-2.5-flash"

	// DefaultTemperature keeps answers close to the retrieved sources.
	DefaultTemperature = 0.1

	// FinishReasonMaxTokens is reported when generation hit the output cap.
	FinishReasonMaxTokens = "MAX_TOKENS"
)

// GeminiClient implements the LLM interface using the Gemini API.
type GeminiClient struct {
	client *gemini.Client
	model  string
}

// GeminiOption is a functional option for configuring GeminiClient.
type GeminiOption func(*GeminiClient)

// WithModel sets the default model for the client.
func WithModel(model string) GeminiOption {
	return func(c *GeminiClient) {
		c.model = model
	}
}

// NewGeminiClient creates a new Gemini LLM client backed by the shared
// REST client.
func NewGeminiClient(client *gemini.Client, opts ...GeminiOption) *GeminiClient {
	c := &GeminiClient{
		client: client,
		model:  DefaultModel,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type generateRequest struct {
	SystemInstruction *contentBlock   `json:"systemInstruction,omitempty"`
	Contents          []contentBlock  `json:"contents"`
	GenerationConfig  *generateConfig `json:"generationConfig,omitempty"`
}

type contentBlock struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateConfig struct {
	Temperature     float32         `json:"temperature"`
	MaxOutputTokens int             `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// Generate sends a prompt to Gemini and returns the complete response.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (Result, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	cfg := &generateConfig{
		Temperature:     opts.Temperature,
		MaxOutputTokens: opts.MaxTokens,
	}
	if opts.ThinkingBudget >= 0 {
		cfg.ThinkingConfig = &thinkingConfig{ThinkingBudget: opts.ThinkingBudget}
	}

	req := generateRequest{
		Contents: []contentBlock{
			{Role: "user", Parts: []part{{Text: prompt}}},
		},
		GenerationConfig: cfg,
	}
	if opts.SystemPrompt != "" {
		req.SystemInstruction = &contentBlock{Parts: []part{{Text: opts.SystemPrompt}}}
	}

	var resp generateResponse
	if err := c.client.Post(ctx, model, "generateContent", req, &resp); err != nil {
		return Result{}, err
	}

	if len(resp.Candidates) == 0 {
		return Result{}, nil
	}

	cand := resp.Candidates[0]
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}

	return Result{
		Text:         strings.TrimSpace(sb.String()),
		FinishReason: cand.FinishReason,
		Truncated:    cand.FinishReason == FinishReasonMaxTokens,
	}, nil
}

// ModelName returns the default model used by this client.
func (c *GeminiClient) ModelName() string {
	return c.model
}

// Ensure GeminiClient implements LLM interface.
var _ LLM = (*GeminiClient)(nil)
