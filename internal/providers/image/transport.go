package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is the shared value object consumed by every HTTP-calling
// adapter: total attempt budget, exponential backoff schedule, and the
// transient-status predicate carried by UpstreamError.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultRetryPolicy matches the upstream contract: 3 total attempts, 0.8s
// initial backoff, doubling each attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: 800 * time.Millisecond}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 800 * time.Millisecond
	}
	return p
}

// Do runs op under the policy. Upstream errors outside the transient status
// set, and structural errors (missing key, empty result, unparseable
// payload), are surfaced immediately; everything else — transient statuses
// and connection-level failures — is retried.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	p = p.normalized()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.MaxAttempts-1)), ctx))
}

func retryable(err error) bool {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Transient()
	}
	if errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrNoResult) ||
		errors.Is(err, ErrInvalidResponse) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Connection-level failures reach here.
	return true
}

// apiClient is the minimal JSON/download transport shared by the remote
// adapters.
type apiClient struct {
	provider   string
	httpClient *http.Client
	retry      RetryPolicy
}

func newAPIClient(provider string, httpClient *http.Client, retry RetryPolicy) *apiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	return &apiClient{provider: provider, httpClient: httpClient, retry: retry.normalized()}
}

func (c *apiClient) postJSON(ctx context.Context, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", c.provider, err)
	}
	return c.retry.Do(ctx, func() error {
		return c.doJSON(ctx, http.MethodPost, url, headers, body, out)
	})
}

func (c *apiClient) getJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	return c.retry.Do(ctx, func() error {
		return c.doJSON(ctx, http.MethodGet, url, headers, nil, out)
	})
}

func (c *apiClient) doJSON(ctx context.Context, method, url string, headers map[string]string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http request: %w", c.provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", c.provider, err)
	}
	if resp.StatusCode >= 300 {
		return &UpstreamError{
			Provider: c.provider,
			Status:   resp.StatusCode,
			Message:  truncate(strings.TrimSpace(string(raw)), 300),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, c.provider, err)
	}
	return nil
}

// download fetches artifact bytes from a URL under the same retry policy.
func (c *apiClient) download(ctx context.Context, url string) ([]byte, string, error) {
	var data []byte
	var format string
	err := c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("%s: build download request: %w", c.provider, err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s: download image: %w", c.provider, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return &UpstreamError{Provider: c.provider, Status: resp.StatusCode, Message: "artifact download failed"}
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: read image: %w", c.provider, err)
		}
		format = resp.Header.Get("Content-Type")
		if format == "" {
			format = "image/png"
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return data, format, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
