package postgres

import (
	"context"
	"testing"
	"time"
)

func TestConnect_BadURL(t *testing.T) {
	if _, err := Connect(context.Background(), "://not-a-url"); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestPoolOptions(t *testing.T) {
	settings := poolSettings{pingTimeout: 5 * time.Second}
	WithMaxConns(4)(&settings)
	WithPingTimeout(2 * time.Second)(&settings)
	if settings.maxConns != 4 {
		t.Errorf("maxConns = %d, want 4", settings.maxConns)
	}
	if settings.pingTimeout != 2*time.Second {
		t.Errorf("pingTimeout = %v, want 2s", settings.pingTimeout)
	}

	WithMaxConns(0)(&settings)
	WithPingTimeout(0)(&settings)
	if settings.maxConns != 4 || settings.pingTimeout != 2*time.Second {
		t.Error("non-positive values must not override the settings")
	}
}
