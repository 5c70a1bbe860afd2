package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/webutil"
)

type stubSessions map[string]string

func (s stubSessions) GetUserID(_ context.Context, id string) (string, error) {
	if uid, ok := s[id]; ok {
		return uid, nil
	}
	return "", models.ErrUnauthorized
}

func TestRequireSession(t *testing.T) {
	var seen string
	h := RequireSession(stubSessions{"good": "user-1"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = webutil.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: webutil.SessionCookieName, Value: "expired"})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, seen)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: webutil.SessionCookieName, Value: "good"})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "user-1", seen)
}

func TestRateLimitPerMinute(t *testing.T) {
	h := RateLimitPerMinute(2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1111"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:3333"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1111"))
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimitPerMinute(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestIPLimiterPrunesIdleEntries(t *testing.T) {
	now := time.Unix(0, 0)
	il := newIPLimiter(1, 1)
	il.now = func() time.Time { return now }

	il.get("a")
	il.get("b")
	now = now.Add(2 * ipLimiterIdle)
	il.get("c")

	assert.Len(t, il.limiters, 1)
	assert.Contains(t, il.limiters, "c")
}

func TestRoutesRequireSessionAndServeHealth(t *testing.T) {
	router := SetupRoutes(Handlers{
		InboundEmail: func(w http.ResponseWriter, r *http.Request) error { return nil },
	}, Options{Sessions: stubSessions{}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	for _, path := range []string{"/api/me", "/api/whitelist", "/api/documents", "/api/onboarding"} {
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/categories", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
