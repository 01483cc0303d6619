package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fintrack/internal/core"
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	res, err := s.resourceFor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := parsePageRequest(r, s.defaultPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := res.list(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	res, err := s.resourceFor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	item, err := res.get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result{Success: true, Message: "ok", Entity: item})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	res, err := s.resourceFor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	item, err := res.create(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result{Success: true, Message: "created", Entity: item})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	res, err := s.resourceFor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	item, err := res.update(w, r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result{Success: true, Message: "updated", Entity: item})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	res, err := s.resourceFor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := res.delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result{Success: true, Message: "deleted"})
}

// handleBudgetSpending returns spent-to-date per budget. ?mode=lazy runs one
// query per budget; ?report=true adds the summary.
func (s *Server) handleBudgetSpending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var entries []core.BudgetSpending
	var err error
	switch q.Get("mode") {
	case "", "batched":
		entries, err = s.spending.Spending(r.Context())
	case "lazy":
		entries, err = s.spending.SpendingLazy(r.Context())
	default:
		err = core.InvalidArgument("mode must be batched or lazy")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := spendingResult{Success: true, Message: "ok", Items: entries}
	if q.Get("report") == "true" {
		report := core.NewBudgetReport(entries)
		body.Report = &report
	}
	writeJSON(w, http.StatusOK, body)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady checks the database. The event broker is reported but does not
// affect readiness since publishing is best-effort.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]string{}

	if err := s.repo.Ping(ctx); err != nil {
		checks["database"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	switch ev := s.events.(type) {
	case nil:
		checks["events"] = "disabled"
	case interface{ Healthy() bool }:
		if ev.Healthy() {
			checks["events"] = "ok"
		} else {
			checks["events"] = "degraded"
		}
	default:
		checks["events"] = "ok"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides request and security counters in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_server_errors_total Responses with a 5xx status\n")
	fmt.Fprintf(w, "# TYPE http_server_errors_total counter\n")
	fmt.Fprintf(w, "http_server_errors_total %d\n\n", traceMetrics.ErrorResponses)

	fmt.Fprintf(w, "# HELP rate_limit_rejected_total Requests rejected by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE rate_limit_rejected_total counter\n")
	fmt.Fprintf(w, "rate_limit_rejected_total %d\n\n", rateLimitMetrics.Rejected)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.started).Seconds())
}
