package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"fintrack/internal/cache"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.started).Round(time.Second).String(),
	})
}

// handleReady reports ready only when the storage backend answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{}

	switch {
	case s.storage == nil:
		checks["storage"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	default:
		if err := s.storage.Ping(ctx); err != nil {
			checks["storage"] = fmt.Sprintf("failed: %v", err)
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	}

	checks["rate_limiter"] = map[string]any{"active_clients": s.limiter.ActiveClients()}
	if s.cache != nil {
		checks["cache"] = map[string]any{"entries": s.cache.Size()}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes application and security counters in the Prometheus
// text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.tracer.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	cacheEntries := 0
	var cacheStats cache.Stats
	if s.cache != nil {
		cacheEntries = s.cache.Size()
		cacheStats = s.cache.Stats()
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_avg_microseconds", "gauge", "Average response time", traceMetrics.AverageResponseTime)
	metric("transactions_created_total", "counter", "Transactions created through the API", atomic.LoadInt64(&s.appMetrics.transactionsCreated))
	metric("budgets_created_total", "counter", "Budgets created through the API", atomic.LoadInt64(&s.appMetrics.budgetsCreated))
	metric("logins_total", "counter", "Successful logins", atomic.LoadInt64(&s.appMetrics.logins))
	metric("failed_logins_total", "counter", "Rejected login attempts", atomic.LoadInt64(&s.appMetrics.failedLogins))
	metric("dashboard_cache_entries", "gauge", "Current dashboard cache entries", cacheEntries)
	metric("dashboard_cache_hits_total", "counter", "Dashboard reads served from cache", cacheStats.Hits)
	metric("dashboard_cache_misses_total", "counter", "Dashboard reads that were recomputed", cacheStats.Misses)
	metric("dashboard_cache_evictions_total", "counter", "Entries evicted for capacity", cacheStats.Evictions)
	metric("rate_limit_allowed_total", "counter", "Requests admitted by the rate limiter", rateLimitMetrics.Allowed)
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("invalid_ip_attempts_total", "counter", "Requests with an unparseable client address", securityMetrics.InvalidIPAttempts)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.appMetrics.started).Seconds()))
}
