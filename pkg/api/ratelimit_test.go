package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethpandaops/actionsdash/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{name: "remote addr", remote: "10.0.0.1:1234", want: "10.0.0.1"},
		{name: "forwarded", xff: "203.0.113.5", remote: "10.0.0.1:1234", want: "203.0.113.5"},
		{name: "forwarded chain", xff: "203.0.113.5, 10.0.0.2", remote: "10.0.0.1:1234", want: "203.0.113.5"},
		{name: "no port", remote: "10.0.0.1", want: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote

			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			assert.Equal(t, tt.want, extractIP(req))
		})
	}
}

func TestRateLimitMiddleware_PerIP(t *testing.T) {
	ts := newTestServer(t, &fakeGitHub{})

	handler := ts.rateLimitMiddleware(config.RateLimitTier{RequestsPerMinute: 2}, clientIPKey)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:1"))
	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:2"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:3"))

	// Limits are per client.
	assert.Equal(t, http.StatusNoContent, send("10.0.0.2:1"))
}

func TestRateLimit_AuthenticatedTierKeysByUser(t *testing.T) {
	ts := newTestServer(t, &fakeGitHub{})
	ts.cfg.Server.RateLimit = config.RateLimitConfig{
		Enabled:       true,
		Auth:          config.RateLimitTier{RequestsPerMinute: 100},
		Authenticated: config.RateLimitTier{RequestsPerMinute: 1},
	}
	ts.handler = ts.buildRouter()

	alice := ts.login(t, "alice")
	bob := ts.login(t, "bob")

	// Both users share the httptest remote address.
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/me", "", alice).Code)
	assert.Equal(t, http.StatusTooManyRequests, ts.do(t, http.MethodGet, "/api/me", "", alice).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/me", "", bob).Code)
}

func TestClientLimiters_EvictIdle(t *testing.T) {
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	now := time.Now()

	cl := newClientLimiters(10, done)
	require.True(t, cl.allow("ip:10.0.0.1", now))

	cl.evictIdle(now)
	require.Len(t, cl.buckets, 1)

	cl.evictIdle(now.Add(rateLimitEntryTTL + time.Second))
	assert.Empty(t, cl.buckets)
}
