package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/jwtauth/v5"
)

// Config sets the limits the middleware enforces. The per-IP limiter
// covers everything; EndpointLimits tightens specific routes such as the
// sign-in and credential-broker endpoints, where brute force matters most.
type Config struct {
	PerIPCapacity   int
	PerIPRefillRate float64

	PerActorCapacity   int
	PerActorRefillRate float64

	EndpointLimits map[string]EndpointLimit

	BucketTTL  time.Duration
	RetryAfter time.Duration
}

type EndpointLimit struct {
	Capacity   int
	RefillRate float64
}

func DefaultConfig() *Config {
	return &Config{
		PerIPCapacity:   100,
		PerIPRefillRate: 100.0 / 60.0,

		PerActorCapacity:   200,
		PerActorRefillRate: 200.0 / 60.0,

		EndpointLimits: map[string]EndpointLimit{
			"POST /api/auth/signin": {
				Capacity:   10,
				RefillRate: 10.0 / 60.0,
			},
			"POST /api/auth/service-account": {
				Capacity:   30,
				RefillRate: 30.0 / 60.0,
			},
		},

		BucketTTL:  time.Hour,
		RetryAfter: time.Minute,
	}
}

// Middleware applies the configured limits to incoming requests.
type Middleware struct {
	config           *Config
	ipLimiter        *Limiter
	actorLimiter     *Limiter
	endpointLimiters map[string]*Limiter
}

func NewMiddleware(config *Config) *Middleware {
	if config == nil {
		config = DefaultConfig()
	}

	m := &Middleware{
		config:           config,
		ipLimiter:        NewLimiter(config.PerIPCapacity, config.PerIPRefillRate, config.BucketTTL),
		actorLimiter:     NewLimiter(config.PerActorCapacity, config.PerActorRefillRate, config.BucketTTL),
		endpointLimiters: make(map[string]*Limiter),
	}
	for endpoint, limit := range config.EndpointLimits {
		m.endpointLimiters[endpoint] = NewLimiter(limit.Capacity, limit.RefillRate, config.BucketTTL)
	}
	return m
}

// Handler is the chi middleware.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip != "" && !m.ipLimiter.Allow(ip) {
			m.reject(w, r, "ip")
			return
		}

		if actor := actorID(r); actor != "" && !m.actorLimiter.Allow(actor) {
			m.reject(w, r, "actor")
			return
		}

		endpointKey := r.Method + " " + r.URL.Path
		if limiter, ok := m.endpointLimiters[endpointKey]; ok {
			if !limiter.Allow(ip + ":" + endpointKey) {
				m.reject(w, r, "endpoint")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, limitType string) {
	slog.Warn("Rate limit exceeded",
		"type", limitType,
		"ip", clientIP(r),
		"path", r.URL.Path,
		"method", r.Method,
	)

	retryAfter := int(m.config.RetryAfter.Seconds())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	fmt.Fprintf(w, `{"error":{"code":"RATE_LIMIT_EXCEEDED","message":"too many requests, retry after %d seconds"}}`, retryAfter)
}

// ResetActor refills an actor's bucket, used after a successful sign-in.
func (m *Middleware) ResetActor(actor string) {
	m.actorLimiter.Reset(actor)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

// actorID pulls the subject out of a verified JWT, when one is present.
func actorID(r *http.Request) string {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || claims == nil {
		return ""
	}
	if sub, ok := claims["sub"].(string); ok {
		return sub
	}
	return ""
}
