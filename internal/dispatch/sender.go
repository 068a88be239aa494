// Package dispatch sends Slack-signed requests, the sending half of the
// scheme checked by package receiver.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/otiai10/slackverify/internal/receiver"
	"github.com/otiai10/slackverify/internal/signature"
	"github.com/otiai10/slackverify/internal/version"
)

// DeliveryResult contains the result of a signed delivery attempt.
type DeliveryResult struct {
	URL          string        // The endpoint URL that was targeted
	StatusCode   int           // HTTP status code (0 if request failed)
	Success      bool          // True if status code is 2xx
	ErrorMessage string        // Error description if delivery failed
	ResponseTime time.Duration // Time taken for the request
	RetryCount   int           // Number of retries performed (0 if succeeded on first attempt)
}

// Sender posts signed requests with a configurable timeout.
//
// Sender is safe for concurrent use by multiple goroutines.
type Sender struct {
	client  *http.Client
	timeout time.Duration
	now     func() time.Time
}

// SenderOption configures the Sender
type SenderOption func(*Sender)

// WithTimeout sets the HTTP request timeout.
// Default timeout is 10 seconds if not specified.
func WithTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		s.timeout = d
	}
}

// WithClock overrides the clock used for the request timestamp.
func WithClock(now func() time.Time) SenderOption {
	return func(s *Sender) {
		s.now = now
	}
}

// NewSender creates a new sender with the given options.
//
// Example:
//
//	sender := dispatch.NewSender(dispatch.WithTimeout(5 * time.Second))
func NewSender(opts ...SenderOption) *Sender {
	s := &Sender{
		timeout: 10 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.client = &http.Client{
		Timeout: s.timeout,
	}
	return s
}

// Send POSTs payload to url, signed with secret at the current time.
//
// The request includes:
//   - Content-Type: contentType (application/json when empty)
//   - X-Slack-Request-Timestamp: Unix seconds
//   - X-Slack-Signature: v0=<hex>
//
// Success is defined as receiving a 2xx HTTP status code.
func (s *Sender) Send(ctx context.Context, url string, secret, payload []byte, contentType string) DeliveryResult {
	start := time.Now()
	result := DeliveryResult{
		URL: url,
	}

	req, err := s.newRequest(ctx, url, secret, payload, contentType)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to create request: %v", err)
		result.ResponseTime = time.Since(start)
		return result
	}

	resp, err := s.client.Do(req)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("request failed: %v", err)
		result.ResponseTime = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	result.ResponseTime = time.Since(start)

	if !result.Success {
		result.ErrorMessage = fmt.Sprintf("unexpected status: %d", resp.StatusCode)
	}

	return result
}

func (s *Sender) newRequest(ctx context.Context, url string, secret, payload []byte, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/json"
	}
	ts := s.now().Unix()

	req.Header.Set("Content-Type", contentType)
	req.Header.Set(receiver.TimestampHeader, strconv.FormatInt(ts, 10))
	req.Header.Set(receiver.SignatureHeader, signature.Sign(secret, payload, ts))
	req.Header.Set("User-Agent", "slackverify/"+version.Version)
	return req, nil
}

// Target represents a receiving endpoint and the secret it verifies with.
type Target struct {
	URL    string
	Secret []byte
	Name   string // Optional human-readable name for logging
}

// SendAll sends payload to all targets concurrently and returns results in
// the order of targets.
func (s *Sender) SendAll(ctx context.Context, targets []Target, payload []byte, contentType string) []DeliveryResult {
	if len(targets) == 0 {
		return []DeliveryResult{}
	}

	results := make([]DeliveryResult, len(targets))
	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)
		go func(index int, t Target) {
			defer wg.Done()
			results[index] = s.Send(ctx, t.URL, t.Secret, payload, contentType)
		}(i, target)
	}

	wg.Wait()
	return results
}
