package push

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleExpiry = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter hands every client identity its own token bucket.
type clientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*limiterEntry
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		entries: map[string]*limiterEntry{},
	}
}

func (l *clientLimiter) Allow(key string, now time.Time) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
		l.cleanup(now)
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *clientLimiter) cleanup(now time.Time) {
	if len(l.entries) < 512 {
		return
	}
	for key, entry := range l.entries {
		if now.Sub(entry.lastSeen) > limiterIdleExpiry {
			delete(l.entries, key)
		}
	}
}

func clientIdentity(request *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		forwardedFor := strings.TrimSpace(request.Header.Get("X-Forwarded-For"))
		if forwardedFor != "" {
			firstHop, _, _ := strings.Cut(forwardedFor, ",")
			if ip := strings.TrimSpace(firstHop); ip != "" {
				return ip
			}
		}

		realIP := strings.TrimSpace(request.Header.Get("X-Real-IP"))
		if realIP != "" {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(request.RemoteAddr))
	if err == nil && host != "" {
		return host
	}

	return strings.TrimSpace(request.RemoteAddr)
}
