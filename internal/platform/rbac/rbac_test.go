package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfc4care/backend/internal/policy/engine"
	profdomain "nfc4care/backend/internal/professional/domain"
	"nfc4care/backend/internal/server/httpx"
	"nfc4care/backend/internal/server/interceptors"
)

type failingAuthorizer struct{}

func (failingAuthorizer) Authorize(context.Context, engine.Input) (engine.Decision, error) {
	return engine.Decision{}, errors.New("engine down")
}

func newAuthorizer(t *testing.T) Authorizer {
	t.Helper()
	e, err := engine.NewOPAEvaluator(context.Background(), DefaultRules())
	require.NoError(t, err)
	return e
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, method, path string, role profdomain.Role) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		ctx := interceptors.WithPrincipal(req.Context(), &interceptors.Principal{
			Email: "someone@example.com", Role: role,
		})
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthorize_Table(t *testing.T) {
	h := Authorize(newAuthorizer(t))(okHandler())
	tests := []struct {
		name   string
		method string
		path   string
		role   profdomain.Role
		want   int
	}{
		{"public login without principal", http.MethodPost, "/auth/login", "", http.StatusNoContent},
		{"public logout without principal", http.MethodPost, "/auth/logout", "", http.StatusNoContent},
		{"health without principal", http.MethodGet, "/healthz", "", http.StatusNoContent},
		{"patients without principal", http.MethodGet, "/patients", "", http.StatusUnauthorized},
		{"patients as doctor", http.MethodGet, "/patients/7", profdomain.RoleDoctor, http.StatusNoContent},
		{"patients as admin", http.MethodPost, "/patients", profdomain.RoleAdmin, http.StatusNoContent},
		{"patients as nurse", http.MethodGet, "/patients/7", profdomain.RoleNurse, http.StatusForbidden},
		{"consultations as nurse", http.MethodGet, "/consultations", profdomain.RoleNurse, http.StatusForbidden},
		{"admin as doctor", http.MethodGet, "/admin/sessions", profdomain.RoleDoctor, http.StatusForbidden},
		{"admin as admin", http.MethodPost, "/admin/sessions/sweep", profdomain.RoleAdmin, http.StatusNoContent},
		{"sessions as nurse", http.MethodGet, "/auth/sessions", profdomain.RoleNurse, http.StatusNoContent},
		{"trailing slash normalized", http.MethodGet, "/admin/sessions/", profdomain.RoleNurse, http.StatusForbidden},
		{"unmatched route authenticated", http.MethodGet, "/something", profdomain.RoleNurse, http.StatusNoContent},
		{"unmatched route anonymous", http.MethodGet, "/something", "", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h, tc.method, tc.path, tc.role)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAuthorize_ForbiddenBody(t *testing.T) {
	h := Authorize(newAuthorizer(t))(okHandler())
	rec := serve(h, http.MethodGet, "/admin/sessions", profdomain.RoleNurse)
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, httpx.CodeForbidden, body.Error)
}

func TestAuthorize_EngineErrorFailsClosed(t *testing.T) {
	h := Authorize(failingAuthorizer{})(okHandler())
	rec := serve(h, http.MethodGet, "/patients", profdomain.RoleAdmin)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthorize_WithPublicOverrides(t *testing.T) {
	h := Authorize(newAuthorizer(t), WithPublic("/open"))(okHandler())
	assert.Equal(t, http.StatusNoContent, serve(h, http.MethodGet, "/open", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodPost, "/auth/login", "").Code)
}
