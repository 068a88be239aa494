// Package receiver serves endpoints that accept Slack-signed requests.
//
// The Verifier middleware pulls the signature and timestamp headers off the
// request, checks them with package signature and only then hands the request,
// with its body intact, to the next handler.
package receiver

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/otiai10/slackverify/internal/signature"
)

const (
	// SignatureHeader carries the "v0=<hex>" signature.
	SignatureHeader = "X-Slack-Signature"
	// TimestampHeader carries the Unix seconds the request was signed at.
	TimestampHeader = "X-Slack-Request-Timestamp"

	// DefaultMaxBodyBytes is the body limit used when none is configured.
	DefaultMaxBodyBytes = 1 << 20
)

var (
	// ErrMissingHeaders is returned when either signature header is absent.
	ErrMissingHeaders = errors.New("missing signature headers")
	// ErrBadTimestamp is returned when the timestamp is not a base-10 integer.
	ErrBadTimestamp = errors.New("invalid request timestamp")
	// ErrBodyTooLarge is returned when the body exceeds the configured limit.
	ErrBodyTooLarge = errors.New("request body too large")
	// ErrMismatch is returned when the signature does not match the request.
	ErrMismatch = errors.New("signature mismatch")
)

// Verifier checks request signatures for a single endpoint.
// It is immutable after New and safe for concurrent use.
type Verifier struct {
	name         string
	secret       []byte
	logger       *zap.Logger
	metrics      *Metrics
	maxBodyBytes int64
}

// Option configures a Verifier
type Option func(*Verifier)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// WithMetrics records outcomes into m.
func WithMetrics(m *Metrics) Option {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// WithMaxBodyBytes limits how much of the body is read. Non-positive values keep the default.
func WithMaxBodyBytes(n int64) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.maxBodyBytes = n
		}
	}
}

// WithName labels logs and metrics with the endpoint name.
func WithName(name string) Option {
	return func(v *Verifier) {
		v.name = name
	}
}

// New creates a Verifier for secret. The slice is copied.
func New(secret []byte, opts ...Option) *Verifier {
	v := &Verifier{
		name:         "default",
		secret:       append([]byte(nil), secret...),
		logger:       zap.NewNop(),
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Check verifies the signature headers in header against body.
// It returns nil, ErrMissingHeaders, ErrBadTimestamp, ErrMismatch, or an
// error matching signature.ErrDecode.
func (v *Verifier) Check(header http.Header, body []byte) error {
	sig := header.Get(SignatureHeader)
	ts := header.Get(TimestampHeader)
	if sig == "" || ts == "" {
		return ErrMissingHeaders
	}

	timestamp, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrBadTimestamp
	}

	ok, err := signature.Verify(v.secret, body, timestamp, sig)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMismatch
	}
	return nil
}

// Middleware rejects requests whose signature does not verify.
//
// Missing headers and mismatches answer 401, an unparsable timestamp or
// undecodable signature answers 400, an oversized body answers 413.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		body, err := readBody(r, v.maxBodyBytes)
		if err != nil {
			v.reject(w, r, start, OutcomeBadBody, err)
			return
		}

		if err := v.Check(r.Header, body); err != nil {
			v.reject(w, r, start, outcomeOf(err), err)
			return
		}

		v.metrics.observe(v.name, OutcomeVerified, time.Since(start).Seconds())
		v.logger.Debug("signature verified",
			zap.String("endpoint", v.name),
			zap.String("request_id", r.Header.Get(RequestIDHeader)),
		)

		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		next.ServeHTTP(w, r)
	})
}

func (v *Verifier) reject(w http.ResponseWriter, r *http.Request, start time.Time, outcome string, err error) {
	v.metrics.observe(v.name, outcome, time.Since(start).Seconds())
	v.logger.Warn("rejected signed request",
		zap.String("endpoint", v.name),
		zap.String("outcome", outcome),
		zap.Error(err),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("request_id", r.Header.Get(RequestIDHeader)),
	)
	writeError(w, err.Error(), statusOf(err))
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return []byte{}, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrMissingHeaders):
		return OutcomeMissing
	case errors.Is(err, ErrBadTimestamp):
		return OutcomeBadTime
	case errors.Is(err, signature.ErrDecode):
		return OutcomeMalformed
	default:
		return OutcomeMismatch
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrBadTimestamp), errors.Is(err, signature.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, ErrMissingHeaders), errors.Is(err, ErrMismatch):
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}
