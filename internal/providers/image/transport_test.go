package image

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialBackoff: time.Millisecond}
}

func TestRetryPolicyRetriesTransientUpstream(t *testing.T) {
	var calls int32
	err := fastRetry(3).Do(context.Background(), func() error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return &UpstreamError{Provider: "test", Status: http.StatusServiceUnavailable}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicyExhaustsBudget(t *testing.T) {
	var calls int32
	err := fastRetry(3).Do(context.Background(), func() error {
		atomic.AddInt32(&calls, 1)
		return &UpstreamError{Provider: "test", Status: http.StatusTooManyRequests}
	})
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %T", err)
	}
}

func TestRetryPolicyDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	err := fastRetry(3).Do(context.Background(), func() error {
		atomic.AddInt32(&calls, 1)
		return &UpstreamError{Provider: "test", Status: http.StatusBadRequest}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (4xx is permanent)", calls)
	}
}

func TestRetryPolicyDoesNotRetryStructuralErrors(t *testing.T) {
	for _, sentinel := range []error{ErrMissingAPIKey, ErrNoResult, ErrInvalidResponse} {
		var calls int32
		err := fastRetry(3).Do(context.Background(), func() error {
			atomic.AddInt32(&calls, 1)
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected %v, got %v", sentinel, err)
		}
		if calls != 1 {
			t.Fatalf("calls = %d, want 1 for %v", calls, sentinel)
		}
	}
}

func TestRetryPolicyStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	err := RetryPolicy{MaxAttempts: 5, InitialBackoff: 50 * time.Millisecond}.Do(ctx, func() error {
		if atomic.AddInt32(&calls, 1) == 1 {
			cancel()
		}
		return &UpstreamError{Provider: "test", Status: http.StatusInternalServerError}
	})
	if err == nil {
		t.Fatalf("expected error after cancellation")
	}
	if calls > 2 {
		t.Fatalf("calls = %d, want at most 2 after cancel", calls)
	}
}

func TestAPIClientWrapsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	client := newAPIClient("test", srv.Client(), fastRetry(1))
	var out struct{}
	err := client.getJSON(context.Background(), srv.URL, nil, &out)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Status != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", upstream.Status)
	}
}

func TestAPIClientDecodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := newAPIClient("test", srv.Client(), fastRetry(1))
	var out struct{}
	err := client.getJSON(context.Background(), srv.URL, nil, &out)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestAPIClientDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	}))
	defer srv.Close()

	client := newAPIClient("test", srv.Client(), fastRetry(1))
	data, format, err := client.download(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if format != "image/png" {
		t.Fatalf("format = %q, want image/png", format)
	}
	if len(data) != 4 {
		t.Fatalf("len(data) = %d, want 4", len(data))
	}
}
