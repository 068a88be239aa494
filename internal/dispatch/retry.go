package dispatch

import (
	"context"
	"sync"
	"time"
)

// RetryConfig holds retry settings for signed delivery
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts (default: 3)
	Initial    time.Duration // Initial backoff delay (default: 1s)
	Max        time.Duration // Maximum backoff delay (default: 60s)
}

// DefaultRetryConfig returns 3 retries, starting at 1 second and capped at 60 seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		Initial:    time.Second,
		Max:        time.Minute,
	}
}

// RetryingSender wraps a Sender with retry logic using exponential backoff.
// Every attempt is signed again, so each one carries a fresh timestamp.
type RetryingSender struct {
	sender *Sender
	config RetryConfig
}

// NewRetryingSender creates a new RetryingSender
func NewRetryingSender(sender *Sender, config RetryConfig) *RetryingSender {
	return &RetryingSender{
		sender: sender,
		config: config,
	}
}

// Send attempts delivery, retrying on 5xx, 408, 429 and connection errors.
// 4xx answers, including a receiver rejecting the signature, are final.
func (r *RetryingSender) Send(ctx context.Context, target Target, payload []byte, contentType string) DeliveryResult {
	var result DeliveryResult
	retryCount := 0

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return DeliveryResult{
				URL:          target.URL,
				ErrorMessage: "context cancelled",
				RetryCount:   retryCount,
			}
		}

		if attempt > 0 {
			backoff := calculateBackoff(attempt-1, r.config.Initial, r.config.Max)
			select {
			case <-ctx.Done():
				return DeliveryResult{
					URL:          target.URL,
					ErrorMessage: "context cancelled during backoff",
					RetryCount:   retryCount,
				}
			case <-time.After(backoff):
			}
			retryCount++
		}

		result = r.sender.Send(ctx, target.URL, target.Secret, payload, contentType)
		result.RetryCount = retryCount

		if result.Success || !isRetryable(result) {
			return result
		}
	}

	return result
}

// SendAll sends to all targets concurrently, each with its own retries.
func (r *RetryingSender) SendAll(ctx context.Context, targets []Target, payload []byte, contentType string) []DeliveryResult {
	if len(targets) == 0 {
		return []DeliveryResult{}
	}

	results := make([]DeliveryResult, len(targets))
	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)
		go func(index int, t Target) {
			defer wg.Done()
			results[index] = r.Send(ctx, t, payload, contentType)
		}(i, target)
	}

	wg.Wait()
	return results
}

// calculateBackoff returns initial * 2^attempt, capped at limit.
func calculateBackoff(attempt int, initial, limit time.Duration) time.Duration {
	backoff := initial
	for range attempt {
		backoff *= 2
		if backoff >= limit {
			return limit
		}
	}
	return backoff
}

func isRetryable(result DeliveryResult) bool {
	if result.Success {
		return false
	}

	statusCode := result.StatusCode

	// Connection errors (no status code) are retryable
	if statusCode == 0 && result.ErrorMessage != "" {
		return true
	}

	if statusCode == 408 || statusCode == 429 {
		return true
	}

	return statusCode >= 500 && statusCode < 600
}
