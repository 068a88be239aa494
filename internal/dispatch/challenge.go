package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/otiai10/slackverify/internal/receiver"
)

// ChallengeResult represents the outcome of a url_verification check
type ChallengeResult struct {
	Success      bool
	ErrorMessage string
	ResponseTime time.Duration
}

// Challenger checks that an endpoint verifies signatures and answers
// url_verification requests.
type Challenger struct {
	sender *Sender
}

// NewChallenger creates a Challenger whose requests time out after timeout.
func NewChallenger(timeout time.Duration, opts ...SenderOption) *Challenger {
	opts = append([]SenderOption{WithTimeout(timeout)}, opts...)
	return &Challenger{sender: NewSender(opts...)}
}

// VerifyURL sends a signed url_verification request with a random token and
// expects the token echoed back.
func (c *Challenger) VerifyURL(ctx context.Context, url string, secret []byte) ChallengeResult {
	start := time.Now()

	token, err := generateChallengeToken()
	if err != nil {
		return ChallengeResult{
			ErrorMessage: "failed to generate challenge token",
			ResponseTime: time.Since(start),
		}
	}

	body, err := json.Marshal(receiver.ChallengeRequest{
		Type:      receiver.URLVerificationType,
		Challenge: token,
	})
	if err != nil {
		return ChallengeResult{
			ErrorMessage: fmt.Sprintf("failed to marshal challenge: %v", err),
			ResponseTime: time.Since(start),
		}
	}

	req, err := c.sender.newRequest(ctx, url, secret, body, "application/json")
	if err != nil {
		return ChallengeResult{
			ErrorMessage: fmt.Sprintf("failed to create request: %v", err),
			ResponseTime: time.Since(start),
		}
	}

	resp, err := c.sender.client.Do(req)
	if err != nil {
		return ChallengeResult{
			ErrorMessage: fmt.Sprintf("request failed: %v", err),
			ResponseTime: time.Since(start),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ChallengeResult{
			ErrorMessage: fmt.Sprintf("endpoint returned status %d, expected 200", resp.StatusCode),
			ResponseTime: time.Since(start),
		}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return ChallengeResult{
			ErrorMessage: fmt.Sprintf("failed to read response: %v", err),
			ResponseTime: time.Since(start),
		}
	}

	var challengeResp receiver.ChallengeResponse
	if err := json.Unmarshal(respBody, &challengeResp); err != nil {
		return ChallengeResult{
			ErrorMessage: fmt.Sprintf("invalid response format: %v", err),
			ResponseTime: time.Since(start),
		}
	}

	if challengeResp.Challenge != token {
		return ChallengeResult{
			ErrorMessage: "challenge response does not match",
			ResponseTime: time.Since(start),
		}
	}

	return ChallengeResult{
		Success:      true,
		ResponseTime: time.Since(start),
	}
}

func generateChallengeToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
