package httputil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sublimetools/sublime/pkg/cache"
)

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("404")
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("Retry() error = %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent error)", calls)
	}
}

func TestRetry_RetriesRetryableError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return &RetryableError{Err: errors.New("502")}
		}
		return nil
	})
	if err != nil {
		t.Errorf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return &RetryableError{Err: errors.New("timeout")}
	})
	if err == nil {
		t.Fatal("Retry() = nil, want last error")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetry_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 3, time.Minute, func() error {
		return &RetryableError{Err: errors.New("down")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
}

func TestResponseCache_RoundTripAndNamespace(t *testing.T) {
	rc := NewResponseCache(cache.NewMemoryCache(), time.Hour)

	type payload struct {
		Versions []string `json:"versions"`
	}
	want := payload{Versions: []string{"1.0.0", "1.1.0"}}
	if err := rc.Set(context.Background(), "lodash", want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var got payload
	ok, err := rc.Get(context.Background(), "lodash", &got)
	if err != nil || !ok {
		t.Fatalf("Get() = ok=%v err=%v, want hit", ok, err)
	}
	if len(got.Versions) != 2 || got.Versions[1] != "1.1.0" {
		t.Errorf("Get() = %v, want %v", got, want)
	}

	// A namespaced view does not see unprefixed keys.
	ns := rc.Namespace("npm:")
	if ok, _ := ns.Get(context.Background(), "lodash", &got); ok {
		t.Error("namespaced Get() hit an unprefixed key")
	}
}

func TestNewResponseCache_NilBackendNeverHits(t *testing.T) {
	rc := NewResponseCache(nil, time.Hour)
	if err := rc.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	var out string
	if ok, _ := rc.Get(context.Background(), "k", &out); ok {
		t.Error("Get() on null backend = hit, want miss")
	}
}
