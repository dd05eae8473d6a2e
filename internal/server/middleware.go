// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"log"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/coprelay/internal/config"
)

// =============================================================================
// MIDDLEWARE CHAIN
// =============================================================================

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Chain combines middlewares into one. The first argument becomes the
// outermost wrapper.
func Chain(middlewares ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// =============================================================================
// CLIENT IP EXTRACTION
// =============================================================================

// proxyList holds the CIDR ranges whose forwarding headers are trusted.
type proxyList struct {
	nets []*net.IPNet
}

// newProxyList parses trusted proxy CIDRs. Invalid entries are skipped
// with a warning; config validation normally catches them first.
func newProxyList(cidrs []string) *proxyList {
	p := &proxyList{}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			log.Printf("Ignoring invalid trusted proxy CIDR %q: %v", cidr, err)
			continue
		}
		p.nets = append(p.nets, network)
	}
	return p
}

// trusts reports whether the peer address belongs to a trusted proxy.
func (p *proxyList) trusts(ip net.IP) bool {
	if p == nil || ip == nil {
		return false
	}
	for _, network := range p.nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP extracts the client IP for logging, rate limiting, and auth
// decisions.
// SECURITY: X-Forwarded-For and X-Real-IP are client-controlled, so they
// are honored only when the direct peer is a trusted proxy. Otherwise the
// socket address wins.
func ClientIP(r *http.Request, trusted *proxyList) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}

	if !trusted.trusts(net.ParseIP(peer)) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First entry is the originating client.
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if net.ParseIP(realIP) != nil {
			return realIP
		}
	}

	return peer
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// AuthConfig validates API keys presented on incoming requests. Either a
// plaintext key or a PBKDF2 hash can be configured; the hash takes
// precedence when both are set.
type AuthConfig struct {
	apiKey  string
	keyHash string

	// PERFORMANCE: PBKDF2 at production iteration counts costs hundreds
	// of milliseconds, so digests of keys that already verified are
	// cached. Only correct keys enter the cache, which bounds it at one
	// entry per configured key.
	verifiedMu sync.RWMutex
	verified   map[[sha256.Size]byte]struct{}
}

// NewAuthConfig builds the auth gate from server configuration.
func NewAuthConfig(cfg config.ServerConfig) *AuthConfig {
	return &AuthConfig{
		apiKey:   cfg.APIKey,
		keyHash:  cfg.APIKeyHash,
		verified: make(map[[sha256.Size]byte]struct{}),
	}
}

// Enabled reports whether any credential is configured.
func (a *AuthConfig) Enabled() bool {
	return a.apiKey != "" || a.keyHash != ""
}

// extractKey pulls the API key out of an Authorization header value.
// Accepted forms: "Bearer <key>", "ApiKey <key>", or the raw key.
func extractKey(header string) string {
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	if after, ok := strings.CutPrefix(header, "ApiKey "); ok {
		return after
	}
	return header
}

// Authorize reports whether the Authorization header carries a valid key.
func (a *AuthConfig) Authorize(header string) bool {
	if header == "" {
		return false
	}
	key := extractKey(header)
	if key == "" {
		return false
	}

	if a.keyHash != "" {
		return a.verifyHashed(key)
	}

	// SECURITY: Constant-time comparison prevents timing attacks on the
	// plaintext key.
	return subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) == 1
}

// verifyHashed checks a presented key against the configured PBKDF2 hash,
// consulting the digest cache first.
func (a *AuthConfig) verifyHashed(key string) bool {
	digest := sha256.Sum256([]byte(key))

	a.verifiedMu.RLock()
	_, ok := a.verified[digest]
	a.verifiedMu.RUnlock()
	if ok {
		return true
	}

	if !config.VerifyKeyHash(a.keyHash, key) {
		return false
	}

	a.verifiedMu.Lock()
	a.verified[digest] = struct{}{}
	a.verifiedMu.Unlock()
	return true
}

// AuthMiddleware rejects requests without a valid API key. The health
// endpoint stays reachable so monitors work without credentials. When no
// credential is configured every request passes.
func AuthMiddleware(auth *AuthConfig, proxies *proxyList) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.Enabled() || r.URL.Path == "/api/health" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				log.Printf("AUTH_DENIED | ip=%s reason=missing_auth_header", ClientIP(r, proxies))
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if !auth.Authorize(header) {
				log.Printf("AUTH_DENIED | ip=%s reason=invalid_token", ClientIP(r, proxies))
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// CORS
// =============================================================================

// CORSMiddleware handles cross-origin requests for the configured
// origins. "*" allows any origin; "*.example.com" allows subdomains.
func CORSMiddleware(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, allowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed matches an origin against the allowlist.
func originAllowed(origin string, allowed []string) bool {
	for _, entry := range allowed {
		if entry == "*" || entry == origin {
			return true
		}
		// Wildcard subdomain: "*.example.com" matches any scheme and
		// any single-label or nested subdomain of example.com.
		if domain, ok := strings.CutPrefix(entry, "*."); ok {
			host := origin
			if i := strings.Index(host, "://"); i >= 0 {
				host = host[i+3:]
			}
			if host == domain || strings.HasSuffix(host, "."+domain) {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// RATE LIMITING
// =============================================================================

// ipLimiter pairs a token bucket with its last use so idle entries can
// be evicted.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per client IP, created lazily.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*ipLimiter

	done chan struct{}
}

const (
	// limiterCleanupInterval is how often idle buckets are swept.
	limiterCleanupInterval = 5 * time.Minute

	// limiterIdleTimeout is how long a bucket may sit unused before the
	// sweep removes it.
	limiterIdleTimeout = 10 * time.Minute
)

// NewRateLimiter creates a per-IP limiter allowing rps sustained requests
// with the given burst. A background sweep evicts idle buckets so the map
// cannot grow without bound.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*ipLimiter),
		done:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether the client may proceed, consuming one token.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// SetRate replaces the sustained rate and burst, updating existing
// buckets in place. Used by config hot reload.
func (rl *RateLimiter) SetRate(rps float64, burst int) {
	rl.mu.Lock()
	rl.rps = rate.Limit(rps)
	rl.burst = burst
	for _, entry := range rl.limiters {
		entry.limiter.SetLimit(rl.rps)
		entry.limiter.SetBurst(burst)
	}
	rl.mu.Unlock()
}

// Rate returns the current sustained rate and burst.
func (rl *RateLimiter) Rate() (float64, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return float64(rl.rps), rl.burst
}

// Stop ends the background sweep.
func (rl *RateLimiter) Stop() {
	select {
	case <-rl.done:
	default:
		close(rl.done)
	}
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle()
		case <-rl.done:
			return
		}
	}
}

// evictIdle drops buckets not used within limiterIdleTimeout.
func (rl *RateLimiter) evictIdle() {
	cutoff := time.Now().Add(-limiterIdleTimeout)

	rl.mu.Lock()
	for ip, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
	rl.mu.Unlock()
}

// RateLimitMiddleware rejects clients that exceed their token bucket.
// A nil limiter disables rate limiting entirely.
func RateLimitMiddleware(rl *RateLimiter, proxies *proxyList) Middleware {
	return func(next http.Handler) http.Handler {
		if rl == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, proxies)
			if !rl.Allow(ip) {
				rps, burst := rl.Rate()
				log.Printf("RATE_LIMIT_EXCEEDED | ip=%s rps=%g burst=%d", ip, rps, burst)
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%g", rps))
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// LOGGING
// =============================================================================

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader captures the status code before delegating.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying writer so streaming handlers still
// see a working http.Flusher through the wrapper.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// LoggingMiddleware logs one line per request and feeds the stats
// counters when stats is non-nil.
func LoggingMiddleware(stats *ServerStats, proxies *proxyList) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			log.Printf("%s | %s %s | %d | %.3fs",
				ClientIP(r, proxies),
				r.Method,
				r.URL.Path,
				wrapped.statusCode,
				time.Since(start).Seconds(),
			)
			if stats != nil {
				stats.RecordRequest(r.Method+" "+r.URL.Path, wrapped.statusCode)
			}
		})
	}
}

// =============================================================================
// SECURITY HEADERS
// =============================================================================

// SecurityHeadersMiddleware sets standard hardening headers on every
// response. Handlers may override Cache-Control, which streaming does.
func SecurityHeadersMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'self'")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			// HSTS only makes sense over TLS.
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// PANIC RECOVERY
// =============================================================================

// RecoveryMiddleware converts handler panics into 500 responses instead
// of dropped connections.
func RecoveryMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Printf("PANIC_RECOVERED | method=%s path=%s error=%v\n%s",
						r.Method, r.URL.Path, err, debug.Stack())
					writeError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
