package receiver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// URLVerificationType is the Events API request type sent when an endpoint is registered.
const URLVerificationType = "url_verification"

// ChallengeRequest is the url_verification payload
type ChallengeRequest struct {
	Token     string `json:"token,omitempty"`
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
}

// ChallengeResponse echoes the challenge back to the sender
type ChallengeResponse struct {
	Challenge string `json:"challenge"`
}

// ChallengeHandler answers url_verification requests and passes everything
// else to next. Mount it behind Verifier.Middleware so only signed challenges
// are answered.
func ChallengeHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, "failed to read body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		var req ChallengeRequest
		if err := json.Unmarshal(body, &req); err != nil || req.Type != URLVerificationType {
			next.ServeHTTP(w, r)
			return
		}

		writeJSON(w, ChallengeResponse{Challenge: req.Challenge}, http.StatusOK)
	})
}

// AckHandler acknowledges a verified request with 200 OK.
func AckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, map[string]string{"error": message}, status)
}
