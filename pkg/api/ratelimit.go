package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethpandaops/actionsdash/pkg/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	rateLimitSweepInterval = 5 * time.Minute
	rateLimitEntryTTL      = 10 * time.Minute
)

// clientKeyFunc picks the bucket a request is charged to.
type clientKeyFunc func(r *http.Request) string

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters holds one token bucket per client key. Idle buckets are
// swept until done is closed.
type clientLimiters struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
}

func newClientLimiters(perMinute int, done <-chan struct{}) *clientLimiters {
	cl := &clientLimiters{
		buckets: make(map[string]*bucket, 64),
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
	}

	go cl.sweep(done)

	return cl
}

func (cl *clientLimiters) allow(key string, now time.Time) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	b, ok := cl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(cl.limit, cl.burst)}
		cl.buckets[key] = b
	}

	b.lastSeen = now

	return b.limiter.AllowN(now, 1)
}

func (cl *clientLimiters) sweep(done <-chan struct{}) {
	ticker := time.NewTicker(rateLimitSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			cl.evictIdle(now)
		case <-done:
			return
		}
	}
}

func (cl *clientLimiters) evictIdle(now time.Time) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	for key, b := range cl.buckets {
		if now.Sub(b.lastSeen) > rateLimitEntryTTL {
			delete(cl.buckets, key)
		}
	}
}

// rateLimitMiddleware limits requests per client key for one tier.
func (s *server) rateLimitMiddleware(
	tier config.RateLimitTier, key clientKeyFunc,
) func(http.Handler) http.Handler {
	limiters := newClientLimiters(tier.RequestsPerMinute, s.done)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)

			if !limiters.allow(k, time.Now()) {
				s.log.WithFields(logrus.Fields{
					"client": k,
					"path":   r.URL.Path,
				}).Debug("Rate limit exceeded")

				writeJSON(w, http.StatusTooManyRequests,
					errorResponse{"rate limit exceeded"})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// sessionUserKey charges authenticated requests to the GitHub user so that
// users sharing an egress address keep separate budgets.
func sessionUserKey(r *http.Request) string {
	if session := sessionFromContext(r.Context()); session != nil {
		return "user:" + session.Username
	}

	return "ip:" + extractIP(r)
}

func clientIPKey(r *http.Request) string {
	return "ip:" + extractIP(r)
}

// extractIP returns the client's IP address from the request, preferring
// the first address of X-Forwarded-For.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}
