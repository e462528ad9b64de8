package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum HMAC key size accepted by NewTokenCodec.
const MinSecretLength = 32

var (
	// ErrMalformedToken is returned when a token cannot be parsed, carries an invalid
	// signature, uses an unexpected algorithm, or lacks required claims.
	ErrMalformedToken = errors.New("malformed token")
	// ErrWeakSecret is returned when the signing secret is shorter than MinSecretLength.
	ErrWeakSecret = errors.New("token secret too short")
)

// TokenClaims is the decoded content of a session token.
type TokenClaims struct {
	Subject   string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec mints and parses HS256-signed session tokens. It never touches persistence:
// a token that parses is authentic, not necessarily live.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for issue and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec returns a codec keyed by secret. The secret is copied; rotating it
// invalidates every token minted with the previous value.
func NewTokenCodec(secret []byte, issuer string, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Mint signs a token for subject that expires ttl from now. The returned claims hold
// the expiry exactly as encoded (second precision).
func (c *TokenCodec) Mint(subject string, ttl time.Duration) (string, *TokenClaims, error) {
	if subject == "" {
		return "", nil, errors.New("mint token: empty subject")
	}
	if ttl <= 0 {
		return "", nil, fmt.Errorf("mint token: non-positive ttl %s", ttl)
	}
	jti, err := generateJTI()
	if err != nil {
		return "", nil, fmt.Errorf("mint token: %w", err)
	}
	now := c.now().UTC()
	registered := jwt.RegisteredClaims{
		ID:        jti,
		Subject:   subject,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, registered).SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("mint token: %w", err)
	}
	return token, toTokenClaims(&registered), nil
}

// Parse verifies the signature and structure of token. Expiry is deliberately not
// checked here; use Expired so that an authentic but expired token can still be
// reconciled against the session store.
func (c *TokenCodec) Parse(token string) (*TokenClaims, error) {
	if token == "" {
		return nil, ErrMalformedToken
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrMalformedToken
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, ErrMalformedToken
	}
	registered, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformedToken
	}
	if registered.Subject == "" || registered.ExpiresAt == nil {
		return nil, ErrMalformedToken
	}
	if c.issuer != "" && registered.Issuer != c.issuer {
		return nil, ErrMalformedToken
	}
	return toTokenClaims(registered), nil
}

// Expired reports whether claims are at or past their expiry.
func (c *TokenCodec) Expired(claims *TokenClaims) bool {
	if claims == nil {
		return true
	}
	return !c.now().Before(claims.ExpiresAt)
}

// IsExpired parses token and reports whether it is expired. Unparseable tokens count as expired.
func (c *TokenCodec) IsExpired(token string) bool {
	claims, err := c.Parse(token)
	if err != nil {
		return true
	}
	return c.Expired(claims)
}

func toTokenClaims(r *jwt.RegisteredClaims) *TokenClaims {
	out := &TokenClaims{Subject: r.Subject, ID: r.ID}
	if r.IssuedAt != nil {
		out.IssuedAt = r.IssuedAt.Time.UTC()
	}
	if r.ExpiresAt != nil {
		out.ExpiresAt = r.ExpiresAt.Time.UTC()
	}
	return out
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
