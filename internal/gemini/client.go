package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Gemini REST API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultTimeout bounds a single API call.
	DefaultTimeout = 90 * time.Second

	// DefaultRequestsPerSecond is a conservative client-side ceiling that
	// keeps bursts of rerank batches under the free-tier quota.
	DefaultRequestsPerSecond = 4
)

// Client issues authenticated requests against the Gemini REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option is a functional option for configuring Client.
type Option func(*Client)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit overrides the client-side request rate ceiling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a Gemini client. The API key may be empty; calls will
// then fail with KindMissingKey so the caller can surface a config error.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), DefaultRequestsPerSecond*2),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// HasKey reports whether an API key is configured.
func (c *Client) HasKey() bool {
	return c.apiKey != ""
}

// Post executes one JSON call against models/{model}:{method} and decodes
// the response into out. Errors are always classified *Error values.
func (c *Client) Post(ctx context.Context, model, method string, body, out any) error {
	if c.apiKey == "" {
		return &Error{Kind: KindMissingKey, Message: "GEMINI_API_KEY is not configured"}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return &Error{Kind: KindUnavailable, Message: err.Error()}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Kind: KindUnknown, Message: fmt.Sprintf("marshaling request: %v", err)}
	}

	url := fmt.Sprintf("%s/models/%s:%s", c.baseURL, model, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &Error{Kind: KindUnknown, Message: fmt.Sprintf("creating request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &Error{Kind: KindUnavailable, Message: ctx.Err().Error()}
		}
		return &Error{Kind: KindUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))

	if resp.StatusCode != http.StatusOK {
		return classifyHTTPError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindUnknown, Message: fmt.Sprintf("decoding response: %v", err)}
	}
	return nil
}

// apiErrorBody mirrors the error envelope returned by the Gemini API.
type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func classifyHTTPError(status int, raw []byte) *Error {
	var body apiErrorBody
	_ = json.Unmarshal(raw, &body)

	message := body.Error.Message
	if message == "" {
		message = strings.TrimSpace(string(raw))
		if len(message) > 300 {
			message = message[:300]
		}
	}

	norm := strings.ToLower(message + " " + body.Error.Status)

	kind := KindUnknown
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindInvalidKey
	case status == http.StatusBadRequest && strings.Contains(norm, "api key"):
		kind = KindInvalidKey
	case status == http.StatusTooManyRequests:
		if strings.Contains(norm, "quota") || strings.Contains(norm, "resource_exhausted") {
			kind = KindQuotaExhausted
		} else {
			kind = KindRateLimited
		}
	case status == http.StatusNotFound && strings.Contains(norm, "model"):
		kind = KindModelUnavailable
	case status >= 500:
		kind = KindUnavailable
	}

	return &Error{Kind: kind, StatusCode: status, Message: message}
}
