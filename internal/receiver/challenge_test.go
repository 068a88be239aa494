package receiver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallengeHandler_URLVerification(t *testing.T) {
	body := []byte(`{"token":"Jhj5dZrVaK7ZwHHjRyZWjbDl","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P","type":"url_verification"}`)
	next := &captureHandler{}

	req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ChallengeHandler(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, next.called)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ChallengeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P", resp.Challenge)
}

func TestChallengeHandler_PassThrough(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{name: "event callback", contentType: "application/json", body: `{"type":"event_callback","event":{"type":"app_mention"}}`},
		{name: "invalid json", contentType: "application/json", body: "not-json"},
		{name: "slash command form", contentType: "application/x-www-form-urlencoded", body: "command=%2Fdeploy&text=prod"},
		{name: "json with charset", contentType: "application/json; charset=utf-8", body: `{"type":"block_actions"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &captureHandler{}
			req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader([]byte(tt.body)))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()

			ChallengeHandler(next).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			require.True(t, next.called)
			assert.Equal(t, tt.body, string(next.body))
		})
	}
}

func TestChallengeHandler_BehindVerifier(t *testing.T) {
	body := []byte(`{"type":"url_verification","challenge":"abc123"}`)
	h := New([]byte(testSecret)).Middleware(ChallengeHandler(http.HandlerFunc(AckHandler)))

	t.Run("signed challenge is answered", func(t *testing.T) {
		req := newSignedRequest(t, testSecret, body, 1700000000)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"challenge":"abc123"}`, rec.Body.String())
	})

	t.Run("unsigned challenge is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotContains(t, rec.Body.String(), "abc123")
	})
}
