package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for chat-completion APIs.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups error substrings by category, matched
// case-insensitively against err.Error().
//
// NOTE: string matching because provider SDKs do not expose typed errors
// for transient failures.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},     // rate limiting
	{"500", "502", "503", "504", "unavailable"}, // transient server errors
	{"connection reset", "temporary"},           // network errors
}

// retryableError reports whether err is transient and should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(errStr, sub) {
				return true
			}
		}
	}
	return false
}

// retryingClient wraps a Client with bounded exponential backoff on
// transient errors. Context cancellation always wins: a canceled call is
// returned immediately so the caller records nothing.
type retryingClient struct {
	inner Client
	cfg   RetryConfig
}

// WithRetry wraps client with transient-error retries.
func WithRetry(client Client, cfg RetryConfig) Client {
	if cfg.MaxRetries <= 0 {
		cfg = DefaultRetryConfig()
	}
	return &retryingClient{inner: client, cfg: cfg}
}

func (r *retryingClient) Complete(ctx context.Context, history []ModelMessage) (string, error) {
	interval := r.cfg.InitialInterval
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("model call canceled: %w", ctx.Err())
			case <-time.After(interval):
			}
			interval *= 2
			if interval > r.cfg.MaxInterval {
				interval = r.cfg.MaxInterval
			}
		}

		text, err := r.inner.Complete(ctx, history)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil || !retryableError(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("model call failed after %d retries: %w", r.cfg.MaxRetries, lastErr)
}
