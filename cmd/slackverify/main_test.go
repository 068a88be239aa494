package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otiai10/slackverify/internal/config"
	"github.com/otiai10/slackverify/internal/receiver"
)

const (
	refSecret    = "8f742231b10e8888abcd99yyyzzz85a5"
	refBody      = "token=xyzz0WbapA4vBCDEFasx0q6G&team_id=T1DC2JH3J&team_domain=testteamnow&channel_id=G8PSS9T3V&channel_name=foobar&user_id=U2CERLKJA&user_name=roadrunner&command=%2Fwebhook-collect&text=&response_url=https%3A%2F%2Fhooks.slack.com%2Fcommands%2FT1DC2JH3J%2F397700885554%2F96rGlfmibIGlgcZRskXaIFfN&trigger_id=398738663015.47445629121.803a0bc887a14d10d2c447fce8b6703c"
	refSignature = "v0=a2114d57b48eac39b9ad189dd8316235a7b4a8d21a10bd27519666489c69b503"
)

func runCmd(args []string, stdin string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Sign(t *testing.T) {
	t.Setenv("SLACK_SIGNING_SECRET", refSecret)

	code, stdout, _ := runCmd([]string{"sign", "-timestamp", "1531420618"}, refBody)

	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "X-Slack-Request-Timestamp: 1531420618")
	assert.Contains(t, stdout, "X-Slack-Signature: "+refSignature)
}

func TestRun_SignBodyFile(t *testing.T) {
	t.Setenv("MY_SECRET", refSecret)
	path := filepath.Join(t.TempDir(), "body.txt")
	require.NoError(t, os.WriteFile(path, []byte(refBody), 0644))

	code, stdout, _ := runCmd([]string{"sign", "-secret-env", "MY_SECRET", "-timestamp", "1531420618", "-body-file", path}, "")

	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, refSignature)
}

func TestRun_Verify(t *testing.T) {
	t.Setenv("SLACK_SIGNING_SECRET", refSecret)

	tests := []struct {
		name      string
		timestamp string
		signature string
		wantCode  int
		wantOut   string
	}{
		{name: "match", timestamp: "1531420618", signature: refSignature, wantCode: exitOK, wantOut: "verified"},
		{name: "mismatch", timestamp: "1531420619", signature: refSignature, wantCode: exitFailure, wantOut: "mismatch"},
		{name: "malformed", timestamp: "1531420618", signature: "v0=xyz", wantCode: exitMalformed, wantOut: "malformed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, _ := runCmd([]string{"verify", "-timestamp", tt.timestamp, "-signature", tt.signature}, refBody)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, stdout, tt.wantOut)
		})
	}
}

func TestRun_UsageErrors(t *testing.T) {
	t.Setenv("SLACK_SIGNING_SECRET", "")

	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: nil},
		{name: "unknown command", args: []string{"frobnicate"}},
		{name: "verify without signature", args: []string{"verify", "-timestamp", "1"}},
		{name: "verify with bad timestamp", args: []string{"verify", "-timestamp", "soon", "-signature", "v0=00"}},
		{name: "sign without secret", args: []string{"sign"}},
		{name: "send without url", args: []string{"send"}},
		{name: "challenge without url", args: []string{"challenge"}},
		{name: "bad flag", args: []string{"sign", "-nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCmd(tt.args, "")
			assert.Equal(t, exitUsage, code)
		})
	}
}

func TestRun_SendAndChallenge(t *testing.T) {
	t.Setenv("SLACK_SIGNING_SECRET", "cli-secret")
	server := httptest.NewServer(receiver.NewRouter(receiver.RouterConfig{
		Endpoints: []receiver.Endpoint{{Name: "events", Path: "/events", Secret: []byte("cli-secret")}},
	}))
	defer server.Close()

	code, stdout, _ := runCmd([]string{"send", "-url", server.URL + "/events"}, `{"type":"event_callback"}`)
	assert.Equal(t, exitOK, code, stdout)
	assert.Contains(t, stdout, "delivered: 200")

	code, stdout, _ = runCmd([]string{"challenge", "-url", server.URL + "/events"}, "")
	assert.Equal(t, exitOK, code, stdout)

	t.Setenv("SLACK_SIGNING_SECRET", "wrong-secret")
	code, stdout, _ = runCmd([]string{"send", "-url", server.URL + "/events"}, `{}`)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stdout, "unexpected status: 401")
}

func TestRun_ServeBadConfig(t *testing.T) {
	code, _, stderr := runCmd([]string{"serve", "-config", filepath.Join(t.TempDir(), "missing.yaml")}, "")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "Failed to load configuration")
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCmd([]string{"version"}, "")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "slackverify")
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(config.LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = newLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestRouterAcceptsCLISignature(t *testing.T) {
	t.Setenv("SLACK_SIGNING_SECRET", refSecret)
	_, stdout, _ := runCmd([]string{"sign", "-timestamp", "1531420618"}, refBody)

	req := httptest.NewRequest(http.MethodPost, "/cmd", strings.NewReader(refBody))
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		k, v, _ := strings.Cut(line, ": ")
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	receiver.New([]byte(refSecret)).Middleware(http.HandlerFunc(receiver.AckHandler)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
