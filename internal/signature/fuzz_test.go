package signature

import (
	"errors"
	"testing"
)

func FuzzVerify(f *testing.F) {
	f.Add([]byte(slackSecret), []byte(slackBody), slackTimestamp, slackSignature)
	f.Add([]byte(""), []byte(""), int64(0), "")
	f.Add([]byte("k"), []byte("b"), int64(-1), "v0=zz")
	f.Add([]byte("k"), []byte("b"), int64(1), "v0=abc")
	f.Add([]byte("k"), []byte("b"), int64(1), "v0=v0=00")

	f.Fuzz(func(t *testing.T, secret, body []byte, timestamp int64, presented string) {
		ok, err := Verify(secret, body, timestamp, presented)
		if err != nil {
			if ok {
				t.Fatal("Verify() returned true with an error")
			}
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("unexpected error type: %v", err)
			}
		}

		signed, err := Verify(secret, body, timestamp, Sign(secret, body, timestamp))
		if err != nil || !signed {
			t.Fatalf("Verify(Sign()) = %v, %v", signed, err)
		}
	})
}
