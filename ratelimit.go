package accounts

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether a request identified by key may proceed.
type RateLimiter interface {
	Allow(key string) bool
}

type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// KeyRateLimiter keeps one token bucket per key. Idle buckets are dropped
// lazily, so it starts no goroutines.
type KeyRateLimiter struct {
	Rate  rate.Limit
	Burst int

	// IdleTimeout is how long an unused bucket is kept. Defaults to 10m.
	IdleTimeout time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	mu        sync.Mutex
	limiters  map[string]*keyLimiter
	lastSweep time.Time
}

// NewKeyRateLimiter allows perMinute requests per key per minute with bursts
// of up to burst.
func NewKeyRateLimiter(perMinute float64, burst int) *KeyRateLimiter {
	return &KeyRateLimiter{Rate: rate.Limit(perMinute / 60), Burst: burst}
}

func (l *KeyRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limiters == nil {
		l.limiters = make(map[string]*keyLimiter)
	}
	if l.Now == nil {
		l.Now = time.Now
	}
	if l.IdleTimeout <= 0 {
		l.IdleTimeout = 10 * time.Minute
	}
	now := l.Now()
	if now.Sub(l.lastSweep) > l.IdleTimeout {
		for k, kl := range l.limiters {
			if now.Sub(kl.lastAccess) > l.IdleTimeout {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	kl, ok := l.limiters[key]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(l.Rate, l.Burst)}
		l.limiters[key] = kl
	}
	kl.lastAccess = now
	return kl.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (l *KeyRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// TrustedProxies lists the networks of reverse proxies whose forwarding
// headers are believed. Headers from any other peer are ignored.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies accepts CIDR prefixes and bare addresses.
func ParseTrustedProxies(values []string) (TrustedProxies, error) {
	var out TrustedProxies
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

func (p TrustedProxies) trusts(ip string) bool {
	a, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, prefix := range p {
		if prefix.Contains(a) {
			return true
		}
	}
	return false
}

// ClientIP returns the address a request came from. The peer address is used
// unless the peer is a trusted proxy, in which case X-Forwarded-For is walked
// from the right and the first untrusted hop wins. X-Real-IP is consulted
// when a trusted proxy sends no X-Forwarded-For.
func (p TrustedProxies) ClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !p.trusts(peer) {
		return peer
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			if i == 0 || !p.trusts(hop) {
				return hop
			}
		}
		return peer
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return peer
}

// LimitByIP rejects requests from a client IP that exceeded limiter. A nil
// limiter lets everything through.
func LimitByIP(limiter RateLimiter, proxies TrustedProxies, scope string, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(scope + ":" + proxies.ClientIP(r)) {
			writeError(w, r, ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
