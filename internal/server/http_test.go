package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identityhandler "nfc4care/backend/internal/identity/handler"
	identityservice "nfc4care/backend/internal/identity/service"
	"nfc4care/backend/internal/platform/rbac"
	"nfc4care/backend/internal/policy/engine"
	profrepo "nfc4care/backend/internal/professional/repository"
	"nfc4care/backend/internal/security"
	"nfc4care/backend/internal/server/httpx"
	"nfc4care/backend/internal/session/maintenance"
	sessionrepo "nfc4care/backend/internal/session/repository"
	sessionservice "nfc4care/backend/internal/session/service"
	"nfc4care/backend/internal/telemetry/metrics"
)

type routerEnv struct {
	srv *httptest.Server
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	reg := prometheus.NewRegistry()
	m := metrics.NewSessionMetrics(reg)
	authority, err := sessionservice.New(sessionrepo.NewMemoryRepository(), security.NewTestCodec(clock), time.Hour,
		sessionservice.WithClock(clock), sessionservice.WithMetrics(m))
	require.NoError(t, err)

	profs := profrepo.NewMemoryRepository()
	auth := identityservice.NewAuthService(profs, authority, security.NewHasher(4), nil, nil)
	for _, acct := range []identityservice.Account{identityservice.DefaultDoctor, identityservice.DefaultAdmin} {
		_, err := auth.EnsureProfessional(ctx, acct)
		require.NoError(t, err)
	}

	evaluator, err := engine.NewOPAEvaluator(ctx, rbac.DefaultRules())
	require.NoError(t, err)

	records := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, []string{})
	})

	h := NewRouter(Deps{
		Auth:           auth,
		Validator:      authority,
		Principals:     profs,
		Authorizer:     evaluator,
		Sessions:       authority,
		Maintenance:    maintenance.New(authority, maintenance.Config{Retention: 24 * time.Hour}),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Records:        records,
		TraceOperation: "nfc4care-test",
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &routerEnv{srv: srv}
}

func (e *routerEnv) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *routerEnv) login(t *testing.T, email string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/auth/login", "", `{"email":"`+email+`","password":"password"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body identityhandler.AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestRouter_Probes(t *testing.T) {
	env := newRouterEnv(t)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "", "").StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/readyz", "", "").StatusCode)
}

func TestRouter_RoleEnforcement(t *testing.T) {
	env := newRouterEnv(t)
	doctor := env.login(t, identityservice.DefaultDoctor.Email)
	admin := env.login(t, identityservice.DefaultAdmin.Email)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/patients", "", "").StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/patients", doctor, "").StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/consultations/3", admin, "").StatusCode)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/admin/sessions", doctor, "").StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/admin/sessions", admin, "").StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/auth/validate", doctor, "").StatusCode)
}

func TestRouter_SupersededTokenRejected(t *testing.T) {
	env := newRouterEnv(t)
	first := env.login(t, identityservice.DefaultDoctor.Email)
	second := env.login(t, identityservice.DefaultDoctor.Email)
	require.NotEqual(t, first, second)

	resp := env.do(t, http.MethodGet, "/patients", first, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var body httpx.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, httpx.CodeInvalidToken, body.Error)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/patients", second, "").StatusCode)
}

func TestRouter_Metrics(t *testing.T) {
	env := newRouterEnv(t)
	env.login(t, identityservice.DefaultDoctor.Email)

	resp := env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "nfc4care_sessions_issued_total 1")
}
