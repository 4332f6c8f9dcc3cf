package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/uitrack/uitrack/internal/config"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthMissingKey(t *testing.T) {
	auth := NewAuthMiddleware(config.AuthConfig{
		Enabled:   true,
		MasterKey: "secret",
	}, zap.NewNop())
	handler := auth.Handler(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/components/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthValidKey(t *testing.T) {
	auth := NewAuthMiddleware(config.AuthConfig{
		Enabled:   true,
		MasterKey: "secret",
	}, zap.NewNop())
	handler := auth.Handler(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/components/stats", nil)
	req.Header.Set(AuthHeaderName, "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/components/stats?api_key=secret", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("query param auth status = %d, want 200", rec.Code)
	}
}

func TestAuthSkipPaths(t *testing.T) {
	auth := NewAuthMiddleware(config.AuthConfig{
		Enabled:   true,
		MasterKey: "secret",
		SkipPaths: []string{"/health", "/components/track"},
	}, zap.NewNop())
	handler := auth.Handler(okHandler)

	for _, path := range []string{"/health", "/components/track"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200 without key", path, rec.Code)
		}
	}
}

func TestAuthSkipPathAttachesIdentity(t *testing.T) {
	auth := NewAuthMiddleware(config.AuthConfig{
		Enabled:   true,
		MasterKey: "secret",
		SkipPaths: []string{"/components/track"},
	}, zap.NewNop())

	var identity string
	handler := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity = Identity(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// Anonymous traffic passes with no identity.
	req := httptest.NewRequest(http.MethodPost, "/components/track", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || identity != "" {
		t.Errorf("anonymous: status = %d, identity = %q", rec.Code, identity)
	}

	// A valid key on the skip path still attaches the caller identity.
	req = httptest.NewRequest(http.MethodPost, "/components/track", nil)
	req.Header.Set(AuthHeaderName, "secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || identity != "secret" {
		t.Errorf("authenticated: status = %d, identity = %q", rec.Code, identity)
	}

	// A bad key on the skip path is ignored, not rejected.
	req = httptest.NewRequest(http.MethodPost, "/components/track", nil)
	req.Header.Set(AuthHeaderName, "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || identity != "" {
		t.Errorf("bad key: status = %d, identity = %q", rec.Code, identity)
	}
}

func TestRateLimitBurst(t *testing.T) {
	rl := NewRateLimitMiddleware(config.RateLimitConfig{
		Enabled: true,
		RPS:     1,
		Burst:   2,
	}, nil, zap.NewNop())
	handler := rl.Handler(okHandler)

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/components/stats", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("burst requests should pass: %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", statuses[2])
	}
}

func TestRateLimitDisabled(t *testing.T) {
	rl := NewRateLimitMiddleware(config.RateLimitConfig{Enabled: false}, nil, zap.NewNop())
	handler := rl.Handler(okHandler)

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("disabled limiter rejected request %d", i)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	recovery := NewRecoveryMiddleware(zap.NewNop())
	handler := recovery.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Errorf("remote addr ip = %q", got)
	}

	req.Header.Set("X-Real-IP", "10.0.0.2")
	if got := ClientIP(req); got != "10.0.0.2" {
		t.Errorf("x-real-ip = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	if got := ClientIP(req); got != "10.0.0.3" {
		t.Errorf("x-forwarded-for = %q", got)
	}
}
