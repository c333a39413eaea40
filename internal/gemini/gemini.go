// Package gemini provides a thin REST client for the Gemini API shared by
// the embedder, the LLM client and the remote reranker. It performs single
// best-effort calls with classified errors; retry policy belongs to callers.
package gemini

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an upstream Gemini failure for retry decisions.
type ErrorKind string

const (
	KindMissingKey       ErrorKind = "missing_key"
	KindInvalidKey       ErrorKind = "invalid_key"
	KindRateLimited      ErrorKind = "rate_limited"
	KindQuotaExhausted   ErrorKind = "quota_exhausted"
	KindModelUnavailable ErrorKind = "model_unavailable"
	KindUnavailable      ErrorKind = "upstream_unavailable"
	KindUnknown          ErrorKind = "unknown"
)

// Error is a classified upstream error.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gemini: %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gemini: %s: %s", e.Kind, e.Message)
}

// KindOf returns the error kind, or KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the failure class is worth another attempt.
// Invalid credentials and unknown models never recover within a request.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindQuotaExhausted, KindUnavailable:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the failure must abort the pipeline immediately.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindMissingKey, KindInvalidKey, KindModelUnavailable:
		return true
	default:
		return false
	}
}
