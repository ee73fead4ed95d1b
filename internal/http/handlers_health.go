package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cassa/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.startedAt).Round(time.Second).String(),
	})
}

// handleAPIHealth is the health document served under /api.
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "healthy",
		"message":   "cassa API is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.store == nil {
		checks["database"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else if err := s.store.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
		checks["database"] = "failed"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if s.svc.Outbox == nil {
		checks["outbox"] = "disabled"
	} else if s.svc.Outbox.IsRunning() {
		checks["outbox"] = "running"
	} else {
		checks["outbox"] = "stopped"
	}

	cacheEntries := 0
	if s.dashboardCache != nil {
		cacheEntries = s.dashboardCache.Size()
	}
	checks["cache"] = map[string]any{
		"dashboard_entries": cacheEntries,
		"enabled":           s.dashboardCache != nil,
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
	}

	NewJSONResponse().
		Status(httpStatus).
		Payload(map[string]any{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		}).
		Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	cacheEntries := 0
	if s.dashboardCache != nil {
		cacheEntries = s.dashboardCache.Size()
	}

	metric := func(name, kind, help string, value int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %d\n\n", name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_avg_microseconds", "gauge", "Average response time", traceMetrics.AverageResponseTime)
	metric("mutations_total", "counter", "Successful write requests", s.appMetrics.mutations.Load())
	metric("checkouts_total", "counter", "Completed checkouts", s.appMetrics.checkouts.Load())
	metric("dashboard_cache_hits_total", "counter", "Dashboard cache hits", s.appMetrics.cacheHits.Load())
	metric("dashboard_cache_misses_total", "counter", "Dashboard cache misses", s.appMetrics.cacheMisses.Load())
	metric("dashboard_cache_entries", "gauge", "Cached dashboard payloads", int64(cacheEntries))
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	metric("rate_limit_active_clients", "gauge", "Clients tracked by the rate limiter", rateLimitMetrics.ClientCount)
	metric("security_suspicious_requests_total", "counter", "Requests flagged as suspicious", securityMetrics.SuspiciousRequests)
	metric("security_invalid_ip_total", "counter", "Requests with an unparseable client address", securityMetrics.InvalidIPAttempts)

	if s.svc.Outbox != nil {
		stats, err := s.svc.Outbox.Stats(r.Context())
		if err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to read outbox stats", log.FieldError, err.Error())
			return
		}
		metric("outbox_pending", "gauge", "Outbox events waiting to be published", stats.Pending)
		metric("outbox_failed", "gauge", "Outbox events that exhausted their retries", stats.Failed)
	}
}
