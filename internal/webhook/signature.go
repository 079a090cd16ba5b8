package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	TimestampHeader = "X-Webhook-Timestamp"
	PlatformHeader  = "X-Platform"

	signaturePrefix = "sha256="

	// DefaultMaxSkew is how far a request timestamp may drift from the
	// receiver's clock in either direction.
	DefaultMaxSkew = 5 * time.Minute
)

var (
	ErrMissingSignature = errors.New("missing signature or timestamp")
	ErrInvalidTimestamp = errors.New("invalid webhook timestamp")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrStaleRequest     = errors.New("request too old")
)

// Sign returns the signature header value for body sent at timestamp ts.
// Format: "sha256=" + hex(HMAC-SHA256(secret, ts + body)).
func Sign(secret, ts string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(ts))
	h.Write(body)
	return signaturePrefix + hex.EncodeToString(h.Sum(nil))
}

// Verifier authenticates inbound webhook requests.
type Verifier struct {
	secret  []byte
	maxSkew time.Duration
	now     func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret:  []byte(secret),
		maxSkew: DefaultMaxSkew,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify checks the signature first and the timestamp window second. Both
// headers are required.
func (v *Verifier) Verify(body []byte, signature, timestamp string) error {
	if signature == "" || timestamp == "" {
		return ErrMissingSignature
	}

	expected := Sign(string(v.secret), timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}

	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimestamp, timestamp)
	}
	skew := v.now().Sub(time.Unix(sec, 0))
	if skew > v.maxSkew || skew < -v.maxSkew {
		return fmt.Errorf("%w: timestamp is %s from server time", ErrStaleRequest, skew.Truncate(time.Second))
	}
	return nil
}

// Valid reports whether Verify accepts the request.
func (v *Verifier) Valid(body []byte, signature, timestamp string) bool {
	return v.Verify(body, signature, timestamp) == nil
}
