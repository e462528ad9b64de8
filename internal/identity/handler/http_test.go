package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identityservice "nfc4care/backend/internal/identity/service"
	profrepo "nfc4care/backend/internal/professional/repository"
	"nfc4care/backend/internal/ratelimit"
	"nfc4care/backend/internal/security"
	"nfc4care/backend/internal/server/httpx"
	"nfc4care/backend/internal/server/interceptors"
	sessionrepo "nfc4care/backend/internal/session/repository"
	sessionservice "nfc4care/backend/internal/session/service"
)

type testEnv struct {
	handler   http.Handler
	authority *sessionservice.Authority
}

func newTestEnv(t *testing.T, limiter ratelimit.Limiter) *testEnv {
	t.Helper()
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	authority, err := sessionservice.New(sessionrepo.NewMemoryRepository(), security.NewTestCodec(clock), time.Hour,
		sessionservice.WithClock(clock))
	require.NoError(t, err)
	profs := profrepo.NewMemoryRepository()
	svc := identityservice.NewAuthService(profs, authority, security.NewHasher(4), nil, nil)
	_, err = svc.EnsureProfessional(context.Background(), identityservice.DefaultDoctor)
	require.NoError(t, err)

	h := NewAuthHandler(svc, limiter, nil)
	return &testEnv{
		handler:   interceptors.Gate(authority, profs, nil)(h.Routes()),
		authority: authority,
	}
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.RemoteAddr = "10.1.2.3:4567"
	req.Header.Set("User-Agent", "handler-test")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T) AuthResponse {
	t.Helper()
	rec := e.do(http.MethodPost, "/login", "", `{"email":"doctor@example.com","password":"password"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestLogin_ResponseShape(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodPost, "/login", "", `{"email":"doctor@example.com","password":"password"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, key := range []string{"token", "type", "professionnelId", "nom", "prenom", "email", "role", "specialite", "numeroRpps", "dateCreation", "actif"} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, "Bearer", raw["type"])
	assert.Equal(t, "MEDECIN", raw["role"])
	assert.Equal(t, "Dubois", raw["nom"])
	assert.Equal(t, "Martin", raw["prenom"])
	assert.Equal(t, true, raw["actif"])
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, body := range []string{
		`{"email":"doctor@example.com","password":"nope"}`,
		`{"email":"ghost@example.com","password":"password"}`,
	} {
		rec := env.do(http.MethodPost, "/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var e httpx.ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
		assert.Equal(t, httpx.CodeInvalidCredentials, e.Error)
		assert.Equal(t, msgInvalidCredentials, e.Message)
	}
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/login", "", `not json`).Code)
}

func TestLogin_RateLimited(t *testing.T) {
	env := newTestEnv(t, ratelimit.NewMemoryLimiter(ratelimit.Config{Limit: 1, Window: time.Minute}, nil))
	env.login(t)
	rec := env.do(http.MethodPost, "/login", "", `{"email":"doctor@example.com","password":"password"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLogin_RotatingForwardedForStillLimited(t *testing.T) {
	env := newTestEnv(t, ratelimit.NewMemoryLimiter(ratelimit.Config{Limit: 3, Window: time.Minute}, nil))
	h := interceptors.ClientIPMiddleware(nil)(env.handler)

	var checked, limited int
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login",
			strings.NewReader(`{"email":"doctor@example.com","password":"guess"}`))
		req.RemoteAddr = "10.1.2.3:4567"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i+1))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		switch rec.Code {
		case http.StatusUnauthorized:
			checked++
		case http.StatusTooManyRequests:
			limited++
		default:
			t.Fatalf("attempt %d: unexpected status %d", i, rec.Code)
		}
	}
	assert.Equal(t, 3, checked, "only the first attempts reach the password check")
	assert.Equal(t, 17, limited)
}

// Scenario A over HTTP: a second login invalidates the first token.
func TestValidate_ScenarioA(t *testing.T) {
	env := newTestEnv(t, nil)
	t1 := env.login(t).Token

	rec := env.do(http.MethodGet, "/validate", t1, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var v AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "doctor@example.com", v.Email)
	assert.Equal(t, t1, v.Token)

	t2 := env.login(t).Token
	require.NotEqual(t, t1, t2)

	rec = env.do(http.MethodGet, "/validate", t1, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var e httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, httpx.CodeInvalidToken, e.Error)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/validate", t2, "").Code)
}

func TestValidate_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/validate", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/validate", "not-a-jwt", "").Code)
}

func TestLogout_AlwaysOK(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/logout", "", "").Code)

	tok := env.login(t).Token
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/logout", tok, "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/validate", tok, "").Code)
}

func TestLogoutAllAndSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/logout-all", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/sessions", "", "").Code)

	tok := env.login(t).Token
	rec := env.do(http.MethodGet, "/sessions", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), tok, "tokens are never listed")
	var sessions []sessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Current)
	assert.Equal(t, "handler-test", sessions[0].UserAgent)
	assert.Equal(t, "10.1.2.3", sessions[0].IPAddress)

	rec = env.do(http.MethodPost, "/logout-all", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"revoked":1`)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/validate", tok, "").Code)
}
