package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	clientSweepInterval = time.Minute
	clientIdleTTL       = 3 * time.Minute

	// Uploads start a full pipeline run and spend more of the bucket.
	uploadCost = 5
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters keeps one token bucket per client address.
type clientLimiters struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	clients map[string]*clientLimiter
}

func (c *clientLimiters) get(key string, now time.Time) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	client, ok := c.clients[key]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(c.rps, c.burst)}
		c.clients[key] = client
	}
	client.lastSeen = now
	return client.limiter
}

func (c *clientLimiters) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, client := range c.clients {
		if now.Sub(client.lastSeen) > clientIdleTTL {
			delete(c.clients, key)
		}
	}
}

// RateLimit applies a token bucket per client address. Document uploads
// cost more than reads. The idle client sweeper stops when ctx is done.
func RateLimit(ctx context.Context, rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}
	limiters := &clientLimiters{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
	}

	go func() {
		ticker := time.NewTicker(clientSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				limiters.sweep(now)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cost := requestCost(r, burst)
			now := time.Now()
			if !limiters.get(clientAddress(r.RemoteAddr), now).AllowN(now, cost) {
				retryAfter := int(math.Ceil(float64(cost) / rps))
				w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
				writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestCost(r *http.Request, burst int) int {
	if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/document") {
		return min(uploadCost, burst)
	}
	return 1
}

func clientAddress(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}
