package limiter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestMiddleware_LimitsPerIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewIPRateLimiter(ctx, rate.Limit(0.001), 2)
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) int {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		r.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1111"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:3333"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1111"))
}

func TestSweep_RemovesIdleLimiters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewIPRateLimiter(ctx, rate.Limit(1), 1)
	l.GetLimiter("10.0.0.1").Allow()
	l.GetLimiter("10.0.0.2")

	assert.Equal(t, 1, l.sweep(time.Now()))
	assert.Equal(t, 1, l.sweep(time.Now().Add(time.Minute)))
	assert.Empty(t, l.limits)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.4:9000"
	assert.Equal(t, "192.0.2.4", ClientIP(r))

	r.RemoteAddr = "192.0.2.5"
	assert.Equal(t, "192.0.2.5", ClientIP(r))

	r.RemoteAddr = ""
	assert.Equal(t, "unknown_ip", ClientIP(r))
}
