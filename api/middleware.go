package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/meinedokbox/dokbox/webutil"
)

// SessionReader resolves a session token to its user.
type SessionReader interface {
	GetUserID(ctx context.Context, sessionID string) (string, error)
}

// RequireSession rejects requests without a valid session cookie and puts
// the user ID into the request context for the handlers.
func RequireSession(sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(webutil.SessionCookieName)
			if err != nil || cookie.Value == "" {
				webutil.RespondWithError(w, http.StatusUnauthorized, "Not logged in")
				return
			}
			userID, err := sessions.GetUserID(r.Context(), cookie.Value)
			if err != nil || userID == "" {
				webutil.RespondWithError(w, http.StatusUnauthorized, "Session expired")
				return
			}
			next.ServeHTTP(w, r.WithContext(webutil.WithUserID(r.Context(), userID)))
		})
	}
}

// ipLimiterIdle is how long an unused per-IP limiter is kept.
const ipLimiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rate      rate.Limit
	burst     int
	lastPrune time.Time
	now       func() time.Time
}

func newIPLimiter(r rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     r,
		burst:    burst,
		now:      time.Now,
	}
}

func (ipl *ipLimiter) get(ip string) *rate.Limiter {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	now := ipl.now()
	if now.Sub(ipl.lastPrune) > ipLimiterIdle {
		for key, e := range ipl.limiters {
			if now.Sub(e.lastSeen) > ipLimiterIdle {
				delete(ipl.limiters, key)
			}
		}
		ipl.lastPrune = now
	}

	e, ok := ipl.limiters[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(ipl.rate, ipl.burst)}
		ipl.limiters[ip] = e
	}
	e.lastSeen = now
	return e.limiter
}

// RateLimitPerMinute allows perMinute requests per client IP, with bursts
// of the same size. Zero disables the limit.
func RateLimitPerMinute(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(h http.Handler) http.Handler { return h }
	}
	il := newIPLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !il.get(clientIP(r)).Allow() {
				webutil.RespondWithError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port; middleware.RealIP has already replaced
// RemoteAddr with the forwarded address where present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetHeader is a middleware to set a response header.
func SetHeader(key, value string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(key, value)
			next.ServeHTTP(w, r)
		})
	}
}
