package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPost_MissingKey(t *testing.T) {
	c := NewClient("")
	err := c.Post(context.Background(), "gemini-2.5-flash", "generateContent", map[string]any{}, nil)

	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindMissingKey {
		t.Fatalf("expected missing key error, got %v", err)
	}
	if c.HasKey() {
		t.Error("HasKey should be false for empty key")
	}
}

func TestPost_SendsAuthAndPath(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	c := NewClient("secret", WithBaseURL(srv.URL), WithRateLimit(1000, 10))
	var out map[string]string
	if err := c.Post(context.Background(), "gemini-2.5-flash", "generateContent", map[string]any{}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/models/gemini-2.5-flash:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("api key header = %q", gotKey)
	}
	if out["ok"] != "yes" {
		t.Errorf("response not decoded: %v", out)
	}
}

func TestPost_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, KindInvalidKey},
		{"forbidden", http.StatusForbidden, `{}`, KindInvalidKey},
		{"bad api key", http.StatusBadRequest, `{"error":{"message":"API key not valid"}}`, KindInvalidKey},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, KindRateLimited},
		{"quota", http.StatusTooManyRequests, `{"error":{"status":"RESOURCE_EXHAUSTED","message":"quota exceeded"}}`, KindQuotaExhausted},
		{"model missing", http.StatusNotFound, `{"error":{"message":"model not found"}}`, KindModelUnavailable},
		{"server error", http.StatusBadGateway, `{}`, KindUnavailable},
		{"unclassified", http.StatusTeapot, `{}`, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient("key", WithBaseURL(srv.URL), WithRateLimit(1000, 10))
			err := c.Post(context.Background(), "m", "generateContent", map[string]any{}, nil)

			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", apiErr.Kind, tt.wantKind)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", apiErr.StatusCode, tt.status)
			}
		})
	}
}

func TestRetryableAndFatal(t *testing.T) {
	retryable := []ErrorKind{KindRateLimited, KindQuotaExhausted, KindUnavailable}
	for _, kind := range retryable {
		if !IsRetryable(&Error{Kind: kind}) {
			t.Errorf("%v should be retryable", kind)
		}
	}
	fatal := []ErrorKind{KindMissingKey, KindInvalidKey}
	for _, kind := range fatal {
		if IsRetryable(&Error{Kind: kind}) {
			t.Errorf("%v should not be retryable", kind)
		}
		if !IsFatal(&Error{Kind: kind}) {
			t.Errorf("%v should be fatal", kind)
		}
	}
	if IsFatal(&Error{Kind: KindUnavailable}) {
		t.Error("transient errors are not fatal")
	}
	if IsRetryable(errors.New("misc")) {
		t.Error("foreign errors default to non-retryable")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(&Error{Kind: KindRateLimited}); got != KindRateLimited {
		t.Errorf("KindOf = %v", got)
	}
	if got := KindOf(errors.New("misc")); got != KindUnknown {
		t.Errorf("KindOf(foreign) = %v, want unknown", got)
	}
}
