package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 3, CleanupInterval: time.Hour})
	defer rl.Stop()

	now := time.Now()
	for i := 0; i < 3; i++ {
		assert.True(t, rl.allowAt("10.0.0.1", now), "request %d", i)
	}
	assert.False(t, rl.allowAt("10.0.0.1", now))

	// other clients have their own bucket
	assert.True(t, rl.allowAt("10.0.0.2", now))

	// one token every 20 seconds at 3/min
	assert.True(t, rl.allowAt("10.0.0.1", now.Add(21*time.Second)))
	assert.False(t, rl.allowAt("10.0.0.1", now.Add(21*time.Second)))

	m := rl.GetMetrics()
	assert.Equal(t, int64(5), m.Allowed)
	assert.Equal(t, int64(2), m.TotalHits)
	assert.Equal(t, int64(2), m.ClientCount)
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 10, CleanupInterval: time.Hour})
	defer rl.Stop()

	now := time.Now()
	rl.allowAt("old", now.Add(-11*time.Minute))
	rl.allowAt("fresh", now)
	require.Equal(t, 2, rl.ActiveClients())

	rl.cleanupStaleEntries(now)
	assert.Equal(t, 1, rl.ActiveClients())
}

func TestLimiter_DefaultsAndStop(t *testing.T) {
	rl := NewLimiter(Config{})
	assert.Equal(t, 60, rl.requestsPerMinute)
	assert.Equal(t, time.Second, rl.RetryAfter())
	rl.Stop()
	rl.Stop()
}

func TestLimiter_Middleware(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	limited := false
	h := rl.Middleware(
		func(*http.Request) string { return "203.0.113.9" },
		func(w http.ResponseWriter, r *http.Request) {
			limited = true
			w.WriteHeader(http.StatusTooManyRequests)
		},
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.True(t, limited)
}
