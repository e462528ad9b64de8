package security

import "time"

// testSecret is a fixed HMAC key for unit tests only. Do not use in production.
const testSecret = "nfc4care-unit-test-secret-0123456789abcdef"

// TestIssuer is the issuer used by NewTestCodec.
const TestIssuer = "test-issuer"

// NewTestCodec returns a TokenCodec keyed by the embedded test secret. now may be nil.
// For unit tests only. Callers must not use in production.
func NewTestCodec(now func() time.Time) *TokenCodec {
	c, err := NewTokenCodec([]byte(testSecret), TestIssuer, WithClock(now))
	if err != nil {
		panic(err)
	}
	return c
}
