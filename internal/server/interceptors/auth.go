package interceptors

import (
	"context"
	"log/slog"
	"net/http"

	profdomain "nfc4care/backend/internal/professional/domain"
	"nfc4care/backend/internal/security"
	"nfc4care/backend/internal/server/httpx"
	"nfc4care/backend/internal/session/service"
)

// Messages returned by the Gate. They never reveal why a session was refused.
const (
	msgInvalidSession = "Your session is no longer valid. Please sign in again."
	msgValidation     = "Your session could not be verified. Please sign in again."
)

// Validator checks a bearer token against the session authority.
type Validator interface {
	ValidateAndReconcile(ctx context.Context, token string) (service.Result, error)
}

// PrincipalResolver loads the professional owning a session.
type PrincipalResolver interface {
	GetByEmail(ctx context.Context, email string) (*profdomain.Professional, error)
}

// Gate returns middleware that authenticates bearer tokens.
//
// A request without a bearer credential, or with one that is not a signed token at all,
// continues unauthenticated; per-route authorization decides what it may reach. A signed
// token that fails session validation is rejected with 401 and never downgraded. A request
// whose context already carries a principal passes through untouched.
func Gate(v Validator, resolver PrincipalResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if _, ok := PrincipalFrom(ctx); ok {
				next.ServeHTTP(w, r)
				return
			}
			token := httpx.BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := v.ValidateAndReconcile(ctx, token)
			if err != nil {
				logger.ErrorContext(ctx, "session validation failed", "error", err,
					"fingerprint", security.TokenFingerprint(token))
				httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeValidationError, msgValidation)
				return
			}
			if res.Reason == service.ReasonMalformed {
				next.ServeHTTP(w, r)
				return
			}
			if !res.Valid || res.Session == nil {
				httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeInvalidToken, msgInvalidSession)
				return
			}

			prof, err := resolver.GetByEmail(ctx, res.Email)
			if err != nil {
				logger.ErrorContext(ctx, "principal lookup failed", "email", res.Email, "error", err)
				httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeValidationError, msgValidation)
				return
			}
			if prof == nil || !prof.Active {
				logger.InfoContext(ctx, "session owner missing or inactive", "email", res.Email)
				httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeInvalidToken, msgInvalidSession)
				return
			}

			ctx = WithPrincipal(ctx, &Principal{
				Email:          prof.Email,
				ProfessionalID: prof.ID,
				Role:           prof.Role,
				SessionID:      res.Session.ID,
				Token:          token,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
