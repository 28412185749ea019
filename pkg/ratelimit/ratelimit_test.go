package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketBurstAndRefill(t *testing.T) {
	bucket := NewBucket(3, 100)

	assert.True(t, bucket.Allow())
	assert.True(t, bucket.Allow())
	assert.True(t, bucket.Allow())
	assert.False(t, bucket.Allow())

	// 100 tokens per second refill brings it back quickly
	time.Sleep(20 * time.Millisecond)
	assert.True(t, bucket.Allow())
}

func TestBucketReset(t *testing.T) {
	bucket := NewBucket(1, 0.001)
	require.True(t, bucket.Allow())
	require.False(t, bucket.Allow())

	bucket.Reset()
	assert.True(t, bucket.Allow())
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewLimiter(1, 0.001, 0)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"))
}

func TestMiddlewareEndpointLimit(t *testing.T) {
	config := DefaultConfig()
	config.EndpointLimits = map[string]EndpointLimit{
		"POST /api/auth/signin": {Capacity: 2, RefillRate: 0.001},
	}
	m := NewMiddleware(config)

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, request("/api/auth/signin"))
	assert.Equal(t, http.StatusOK, request("/api/auth/signin"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")

	// Other routes are untouched by the endpoint limit
	assert.Equal(t, http.StatusOK, request("/api/patients"))
}

func TestMiddlewarePerIPLimit(t *testing.T) {
	config := DefaultConfig()
	config.PerIPCapacity = 1
	config.PerIPRefillRate = 0.001
	config.EndpointLimits = nil
	m := NewMiddleware(config)

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, request("172.16.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, request("172.16.0.1"))
	assert.Equal(t, http.StatusOK, request("172.16.0.2"))
}
