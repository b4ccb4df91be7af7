package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmartynas/workos-auth/internal/account"
	"github.com/jmartynas/workos-auth/internal/config"
	"github.com/jmartynas/workos-auth/internal/framework"
	"github.com/jmartynas/workos-auth/internal/handlers"
	"github.com/jmartynas/workos-auth/internal/metrics"
	"github.com/jmartynas/workos-auth/internal/plugin"
	"github.com/jmartynas/workos-auth/internal/session"
	"github.com/jmartynas/workos-auth/internal/user"
)

func newTestServer(t *testing.T, deps map[string]handlers.Pinger) (*Server, *metrics.Metrics) {
	t.Helper()
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:              0,
			RequestTimeout:    5 * time.Second,
			TrustedProxyCIDRs: []string{"127.0.0.0/8"},
		},
		RateLimit: config.RateLimitConfig{PerSecond: 0.001, Burst: 1},
		Instances: []plugin.Config{{Name: "app"}},
	}

	app := framework.New(framework.Config{Secret: "0123456789abcdef0123456789abcdef"},
		user.NewMemoryStore(), account.NewMemoryStore(), session.NewMemoryStore(), log)
	app.Endpoints = append(app.Endpoints, framework.Endpoint{
		Method: http.MethodGet,
		Path:   "/app/auth/session",
		Handler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	return New(cfg, log, app, reg, deps), m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.10:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := get(t, srv.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
}

func TestServer_Ready(t *testing.T) {
	srv, _ := newTestServer(t, map[string]handlers.Pinger{
		"mysql": handlers.PingFunc(func(context.Context) error { return errors.New("down") }),
	})

	rec := get(t, srv.Handler(), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "mysql ping failed")
}

func TestServer_Metrics(t *testing.T) {
	srv, m := newTestServer(t, nil)
	m.Record(metrics.SignIn, "app", "success")

	rec := get(t, srv.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `workos_auth_signin_total{instance="app",result="success"} 1`)
}

func TestServer_RateLimitsAuthRoutes(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/api/app/auth/session").Code)
	rec := get(t, h, "/api/app/auth/session")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)
	}
}
