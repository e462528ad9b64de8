package domain

import "time"

// Origin is informational request metadata captured at login. It has no behavioral effect.
type Origin struct {
	UserAgent string
	IPAddress string
}

// Session is one issued token and its lifecycle flags. Revoked and Expired only ever move
// from false to true.
type Session struct {
	ID        string // ULID; sorts by creation time
	Token     string
	Email     string // owning professional
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
	Expired   bool
	Origin    Origin
}

// IsLive reports whether the record is neither revoked nor expired at now.
func (s *Session) IsLive(now time.Time) bool {
	return !s.Revoked && !s.Expired && s.ExpiresAt.After(now)
}

// PastExpiry reports whether the record's expiry time has been reached, regardless of its flags.
func (s *Session) PastExpiry(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
