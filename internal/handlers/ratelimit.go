package handlers

import (
	"alsolved/internal/logger"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client: rps tokens per second up
// to burst.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	trusted []netip.Prefix
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

const idleClient = 10 * time.Minute

// NewRateLimiter starts a limiter and its janitor; call Stop to end it.
func NewRateLimiter(rps, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = rps
	}
	rl := &RateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.janitor()
	return rl
}

// TrustProxies lists the reverse proxies (IPs or CIDRs) whose
// X-Forwarded-For header is believed. Without any, the header is ignored.
func (rl *RateLimiter) TrustProxies(nets []string) error {
	var out []netip.Prefix
	for _, n := range nets {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !strings.Contains(n, "/") {
			addr, err := netip.ParseAddr(n)
			if err != nil {
				return fmt.Errorf("ratelimit: trusted proxy %q: %w", n, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(n)
		if err != nil {
			return fmt.Errorf("ratelimit: trusted proxy %q: %w", n, err)
		}
		out = append(out, p.Masked())
	}
	rl.mu.Lock()
	rl.trusted = out
	rl.mu.Unlock()
	return nil
}

func (rl *RateLimiter) janitor() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

// Stop ends the janitor goroutine.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-idleClient)
	for ip, c := range rl.clients {
		if c.seen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// allow takes a token for ip. When none is left it returns the wait until
// the next one and leaves the bucket untouched.
func (rl *RateLimiter) allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	now := rl.now()
	c, ok := rl.clients[ip]
	if !ok {
		c = &client{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.seen = now
	rl.mu.Unlock()

	res := c.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

func (rl *RateLimiter) isTrusted(addr netip.Addr) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for _, p := range rl.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP is the peer address, or, when the peer is a trusted proxy, the
// rightmost X-Forwarded-For hop that is not itself a trusted proxy.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !rl.isTrusted(peer.Unmap()) {
		return host
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			break
		}
		if !rl.isTrusted(addr.Unmap()) {
			return addr.Unmap().String()
		}
	}
	return host
}

// Middleware rejects clients over their budget with 429 and Retry-After.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := rl.clientIP(r)
		ok, wait := rl.allow(ip)
		if ok {
			next.ServeHTTP(w, r)
			return
		}
		secs := int(math.Ceil(wait.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		logger.Debug("ratelimit: rejected", map[string]interface{}{"ip": ip, "path": r.URL.Path})
		if isAPI(r) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "troppe richieste"})
			return
		}
		http.Error(w, "Troppe richieste. Riprova tra poco.", http.StatusTooManyRequests)
	})
}
