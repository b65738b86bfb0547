package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wardenlabs/hostwarden/internal/version"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware in order; the first argument ends up outermost.
func Chain(handler http.Handler, mw ...Middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

type requestIDKey struct{}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDMiddleware propagates an incoming X-Request-ID or mints a new
// UUID, echoing it on the response so clients can correlate logs.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// LoggingMiddleware logs one line per request and feeds the HTTP metrics.
// Operational paths (health probes, /metrics) stay out of the log but are
// still counted, so probe traffic shows up in dashboards without drowning
// the log stream.
func LoggingMiddleware(logger *zap.Logger, quietPaths []string) Middleware {
	quiet := pathSet(quietPaths)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			elapsed := time.Since(start)

			metricRequests.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(sw.status)).Inc()
			metricRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(elapsed.Seconds())

			if quiet[r.URL.Path] {
				return
			}
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("duration", elapsed),
				zap.String("remote", r.RemoteAddr),
				zap.String("request_id", RequestID(r.Context())))
		})
	}
}

// SecurityHeadersMiddleware sets the standard hardening headers. The API
// serves JSON only, so the CSP can stay maximally restrictive.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'self'")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// VersionHeaderMiddleware stamps every response with the build version.
func VersionHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Hostwarden-Version", version.Short())
		next.ServeHTTP(w, r)
	})
}

// RecoveryMiddleware turns a handler panic into a 500 problem response.
func RecoveryMiddleware(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.String("request_id", RequestID(r.Context())))
					InternalError(w, "an unexpected error occurred", r.URL.Path)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimits configures the per-client-IP limiter. Values come from the
// server section of the configuration.
type RateLimits struct {
	RequestsPerSecond float64
	Burst             int
}

// RateLimitMiddleware applies a token bucket per client IP. Paths in
// exemptPaths (health probes, metrics scrapes) bypass the limiter.
func RateLimitMiddleware(limits RateLimits, exemptPaths []string) Middleware {
	buckets := newClientBuckets(rate.Limit(limits.RequestsPerSecond), limits.Burst)
	exempt := pathSet(exemptPaths)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !exempt[r.URL.Path] && !buckets.allow(clientIP(r)) {
				metricRateLimited.WithLabelValues(r.URL.Path).Inc()
				RateLimited(w, "rate limit exceeded", r.URL.Path)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// maxTrackedClients bounds the per-IP bucket map; beyond it, idle clients
// are swept before a new bucket is created.
const maxTrackedClients = 10000

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientBuckets holds one token bucket per observed client IP.
type clientBuckets struct {
	mu      sync.Mutex
	byIP    map[string]*clientBucket
	perSec  rate.Limit
	burst   int
	idleFor time.Duration
}

func newClientBuckets(perSec rate.Limit, burst int) *clientBuckets {
	return &clientBuckets{
		byIP:    make(map[string]*clientBucket),
		perSec:  perSec,
		burst:   burst,
		idleFor: 10 * time.Minute,
	}
}

func (c *clientBuckets) allow(ip string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.byIP[ip]
	if !ok {
		if len(c.byIP) >= maxTrackedClients {
			c.sweepLocked()
		}
		b = &clientBucket{limiter: rate.NewLimiter(c.perSec, c.burst)}
		c.byIP[ip] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

// sweepLocked drops buckets idle longer than idleFor. Caller holds c.mu.
func (c *clientBuckets) sweepLocked() {
	cutoff := time.Now().Add(-c.idleFor)
	for ip, b := range c.byIP {
		if b.lastSeen.Before(cutoff) {
			delete(c.byIP, ip)
		}
	}
}

// clientIP trusts the first X-Forwarded-For hop when present, otherwise
// the connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func pathSet(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return set
}

// statusWriter captures the status code written by the handler.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}
