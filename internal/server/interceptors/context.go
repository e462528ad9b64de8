package interceptors

import (
	"context"

	profdomain "nfc4care/backend/internal/professional/domain"
)

type contextKey struct{ name string }

var (
	principalKey = contextKey{"principal"}
	clientIPKey  = contextKey{"client_ip"}
)

// Principal is the authenticated professional attached to a request by the Gate.
type Principal struct {
	Email          string
	ProfessionalID string
	Role           profdomain.Role
	SessionID      string
	Token          string
}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal attached to ctx and true, or nil, false for an unauthenticated request.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// WithClientIP returns a context carrying the resolved client address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFrom returns the address stored by ClientIPMiddleware, or "unknown". It matches audit.IPExtractor.
func ClientIPFrom(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
