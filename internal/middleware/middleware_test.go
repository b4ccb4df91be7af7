package middleware

import (
	"bytes"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmartynas/workos-auth/internal/framework"
	"github.com/jmartynas/workos-auth/internal/user"
)

func TestParseTrustedProxyCIDRs(t *testing.T) {
	tests := []struct {
		name    string
		cidrs   []string
		wantErr bool
		wantLen int
	}{
		{"empty", nil, false, 0},
		{"whitespace", []string{"  "}, false, 0},
		{"single valid", []string{"127.0.0.0/8"}, false, 1},
		{"multiple valid", []string{"127.0.0.0/8", "10.0.0.0/8"}, false, 2},
		{"with spaces", []string{" 127.0.0.0/8 ", " 10.0.0.0/8 "}, false, 2},
		{"invalid CIDR", []string{"not-a-cidr"}, true, 0},
		{"invalid in list", []string{"127.0.0.0/8", "invalid"}, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTrustedProxyCIDRs(tt.cidrs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestParseTrustedProxyCIDRs_contains(t *testing.T) {
	nets, err := ParseTrustedProxyCIDRs([]string{"127.0.0.0/8"})
	require.NoError(t, err)
	require.Len(t, nets, 1)
	assert.True(t, nets[0].Contains(net.ParseIP("127.0.0.1")))
}

func TestRealIPWith(t *testing.T) {
	nets, err := ParseTrustedProxyCIDRs([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	var got string
	h := RealIPWith(nets)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetRealIP(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.1.2.3")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.9", got)

	req.RemoteAddr = "198.51.100.7:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "198.51.100.7", got, "untrusted peers cannot spoof")
}

func TestRequestID(t *testing.T) {
	var id string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, id)
	assert.Equal(t, id, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "abc", id)
}

func TestRequireUser(t *testing.T) {
	log := logrus.New()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	h := RequireUser(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, buf.String(), "auth failed")

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req = req.WithContext(framework.WithUser(req.Context(), &framework.AuthUser{User: &user.User{Email: "a@example.com"}}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLoggerAndRecoverer(t *testing.T) {
	log := logrus.New()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	h := Logger(log)(Recoverer(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), `"msg":"panic recovered"`)
	assert.Contains(t, buf.String(), `"status":500`)
}

func TestNoCache(t *testing.T) {
	rec := httptest.NewRecorder()
	NoCache(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "no-store, no-cache, must-revalidate", rec.Header().Get("Cache-Control"))
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 2)
	l.now = func() time.Time { return now }

	h := l.Limit("/api/app/auth/")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	call := func(path, ip string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = ip
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("/api/app/auth/signin", "1.1.1.1:1"))
	assert.Equal(t, http.StatusOK, call("/api/app/auth/signin", "1.1.1.1:1"))
	assert.Equal(t, http.StatusTooManyRequests, call("/api/app/auth/signin", "1.1.1.1:1"))
	assert.Equal(t, http.StatusOK, call("/api/app/auth/signin", "2.2.2.2:1"), "buckets are per client")
	assert.Equal(t, http.StatusOK, call("/health", "1.1.1.1:1"), "other paths are not limited")

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, call("/api/app/auth/signin", "1.1.1.1:1"))

	now = now.Add(limiterIdleTTL + time.Second)
	call("/api/app/auth/signin", "3.3.3.3:1")
	l.mu.Lock()
	_, kept := l.clients["1.1.1.1:1"]
	l.mu.Unlock()
	assert.False(t, kept, "idle buckets are swept")
}
