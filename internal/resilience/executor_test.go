package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carlosvictorodrigues/ratio/internal/gemini"
)

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2.0,
		BreakerEnabled:      false,
	}
}

func retryAll(error) ErrorClassification {
	return ErrorClassification{Retryable: true, RecordFailure: true}
}

func TestExecute_SucceedsFirstAttempt(t *testing.T) {
	e := NewExecutor(fastConfig())
	calls := 0
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	}, retryAll)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecute_RetriesRetryableErrors(t *testing.T) {
	e := NewExecutor(fastConfig())
	calls := 0
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, retryAll)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecute_StopsOnNonRetryable(t *testing.T) {
	e := NewExecutor(fastConfig())
	calls := 0
	boom := errors.New("permanent")
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return boom
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecute_ExhaustsAttempts(t *testing.T) {
	e := NewExecutor(fastConfig())
	calls := 0
	boom := errors.New("still failing")
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return boom
	}, retryAll)
	if !errors.Is(err, boom) {
		t.Fatalf("expected the final error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want max attempts 3", calls)
	}
}

func TestExecute_CanceledContext(t *testing.T) {
	e := NewExecutor(fastConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Execute(ctx, "op", func(ctx context.Context) error {
		t.Error("callback should not run with a canceled context")
		return nil
	}, retryAll)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExecute_BreakerOpensOnFailures(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 3
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	e := NewExecutor(cfg)

	boom := errors.New("upstream down")
	var err error
	for i := 0; i < 10; i++ {
		err = e.Execute(context.Background(), "op", func(ctx context.Context) error {
			return boom
		}, retryAll)
		if IsCircuitOpen(err) {
			return
		}
	}
	t.Fatalf("breaker never opened, last error: %v", err)
}

func TestExecute_NonRecordingErrorsDoNotTrip(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 3
	cfg.BreakerFailureRatio = 0.5
	e := NewExecutor(cfg)

	fatal := &gemini.Error{Kind: gemini.KindInvalidKey, Message: "bad key"}
	for i := 0; i < 10; i++ {
		err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
			return fatal
		}, GeminiClassifier)
		if IsCircuitOpen(err) {
			t.Fatal("fatal config errors must not trip the breaker")
		}
	}
}

func TestGeminiClassifier(t *testing.T) {
	rate := GeminiClassifier(&gemini.Error{Kind: gemini.KindRateLimited})
	if !rate.Retryable || !rate.RecordFailure {
		t.Errorf("rate limit should retry and record, got %+v", rate)
	}
	badKey := GeminiClassifier(&gemini.Error{Kind: gemini.KindInvalidKey})
	if badKey.Retryable || badKey.RecordFailure {
		t.Errorf("invalid key should neither retry nor record, got %+v", badKey)
	}
}
