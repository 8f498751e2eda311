package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	}).Write(w)
}

// handleReady runs every registered dependency check
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string, len(s.checks))

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides request and ledger metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.traceMiddleware.GetMetrics()
	processed, unprocessed := s.ops.Status(r.Context())

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metrics := []struct {
		name, help, kind string
		value            int64
	}{
		{"http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests},
		{"http_server_errors_total", "Total number of 5xx responses", "counter", traceMetrics.ServerErrors},
		{"http_response_time_avg_microseconds", "Average response time", "gauge", traceMetrics.AverageResponseTime},
		{"rate_limit_rejected_total", "Requests refused by the rate limiter", "counter", s.rateLimiter.Rejected()},
		{"rate_limit_active_clients", "Clients tracked by the rate limiter", "gauge", int64(s.rateLimiter.ActiveClients())},
		{"ledger_transactions_processed", "Ledger rows marked processed", "gauge", processed},
		{"ledger_transactions_unprocessed", "Ledger rows awaiting review", "gauge", unprocessed},
		{"uptime_seconds", "Seconds since the server started", "gauge", int64(time.Since(s.started).Seconds())},
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].name < metrics[j].name })

	for _, m := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", m.name, m.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", m.name, m.kind)
		fmt.Fprintf(w, "%s %d\n\n", m.name, m.value)
	}
}
