package server

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dativo-io/veil/internal/requestctx"
)

// DefaultClientIdle is how long a client may stay silent before its bucket is
// forgotten.
const DefaultClientIdle = 10 * time.Minute

// defaultLimiterSweepSchedule is used when ScheduleSweep gets an empty schedule.
const defaultLimiterSweepSchedule = "@every 1m"

// RateLimiter enforces a per-client request rate.
// Uses token bucket algorithm via golang.org/x/time/rate.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps requests per second per client with a burst of
// two seconds worth of requests.
func NewRateLimiter(rps float64) *RateLimiter {
	burst := int(rps * 2)
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clients: make(map[string]*clientBucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow checks whether a request from client is allowed.
func (rl *RateLimiter) Allow(client string) bool {
	now := rl.now()
	rl.mu.Lock()
	b, ok := rl.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[client] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Sweep forgets clients idle for longer than maxIdle and returns how many were
// removed. maxIdle is raised to the time a bucket needs to refill completely,
// so a forgotten client never gains requests it would not have had anyway.
func (rl *RateLimiter) Sweep(maxIdle time.Duration) int {
	if refill := time.Duration(float64(rl.burst) / float64(rl.limit) * float64(time.Second)); maxIdle < refill {
		maxIdle = refill
	}
	cutoff := rl.now().Add(-maxIdle)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for client, b := range rl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(rl.clients, client)
			removed++
		}
	}
	return removed
}

// ScheduleSweep registers Sweep(maxIdle) on c. An empty schedule runs once a
// minute. The caller starts and stops c.
func (rl *RateLimiter) ScheduleSweep(c *cron.Cron, schedule string, maxIdle time.Duration) error {
	if schedule == "" {
		schedule = defaultLimiterSweepSchedule
	}
	_, err := c.AddFunc(schedule, func() {
		if removed := rl.Sweep(maxIdle); removed > 0 {
			log.Debug().Int("removed", removed).Int("remaining", rl.Len()).Msg("rate_limit_sweep")
		}
	})
	if err != nil {
		return fmt.Errorf("registering rate limit sweep %q: %w", schedule, err)
	}
	return nil
}

// RateLimitMiddleware returns 429 with Retry-After when the client exceeds its
// rate. Clients are identified by authenticated caller, falling back to the
// remote IP (set by middleware.RealIP). A nil limiter disables the check.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := requestctx.Caller(r.Context())
			if client == "" {
				client = clientIP(r)
			}
			if !rl.Allow(client) {
				log.Warn().Str("client", client).Msg("rate_limited")
				w.Header().Set("Retry-After", "1")
				w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(float64(rl.limit), 'f', -1, 64))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
