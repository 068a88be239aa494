// Package signature implements Slack-style "v0" request signing.
//
// A request is signed by computing HMAC-SHA256 over the base string
//
//	v0:<timestamp>:<body>
//
// and sending "v0=" followed by the lowercase hex digest.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Version is the only supported signing scheme.
	Version = "v0"
	// Prefix precedes the hex digest in a presented signature.
	Prefix = Version + "="
)

// ErrDecode is matched by every error returned from Verify.
var ErrDecode = errors.New("malformed signature hex")

// DecodeError reports a presented signature whose digest part is not valid hex.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", ErrDecode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) hold for any *DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// BaseString returns the canonical signing input for body and timestamp.
// The body is embedded verbatim.
func BaseString(body []byte, timestamp int64) []byte {
	ts := strconv.FormatInt(timestamp, 10)
	base := make([]byte, 0, len(Version)+len(ts)+2+len(body))
	base = append(base, Version...)
	base = append(base, ':')
	base = append(base, ts...)
	base = append(base, ':')
	return append(base, body...)
}

// Compute returns the raw HMAC-SHA256 of the base string under secret.
func Compute(secret, body []byte, timestamp int64) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(BaseString(body, timestamp))
	return mac.Sum(nil)
}

// Sign returns the signature a sender presents, in the form "v0=<hex>".
//
// Example:
//
//	sig := signature.Sign([]byte("secret"), []byte("token=abc"), 1531420618)
//	// sig = "v0=..."
func Sign(secret, body []byte, timestamp int64) string {
	return Prefix + hex.EncodeToString(Compute(secret, body, timestamp))
}

// Verify reports whether presented is a valid signature of body and timestamp
// under secret.
//
// A leading "v0=" is stripped from presented; the remainder must be hex.
// Malformed hex yields a *DecodeError, never (false, nil). A well-formed digest
// of the wrong length or value yields (false, nil). The digest comparison is
// constant time.
//
// Verify does not look at the clock. Rejecting stale timestamps is up to the caller.
func Verify(secret, body []byte, timestamp int64, presented string) (bool, error) {
	expected := Compute(secret, body, timestamp)

	got, err := hex.DecodeString(strings.TrimPrefix(presented, Prefix))
	if err != nil {
		return false, &DecodeError{Err: err}
	}

	return hmac.Equal(expected, got), nil
}

// VerifyString is Verify for callers holding the secret and body as strings.
func VerifyString(secret, body string, timestamp int64, presented string) (bool, error) {
	return Verify([]byte(secret), []byte(body), timestamp, presented)
}
