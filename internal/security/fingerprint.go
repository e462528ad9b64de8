package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// TokenFingerprint returns a short SHA-256 prefix of token for log and audit correlation.
// Raw bearer tokens must never be written to logs.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:6])
}
