package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"insights/internal/core"
	applog "insights/internal/log"
	"insights/internal/services"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.started).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.service.Ready(ctx); err != nil {
		checks["datasets"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["datasets"] = "ok"
	}

	checks["cache"] = map[string]any{"entries": s.analyses.Size(), "status": "ok"}
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients(), "status": "ok"}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_response_time_microseconds", "gauge", "Smoothed response time", traceMetrics.AverageResponseTime)
	metric("uploads_total", "counter", "CSV uploads committed", s.appMetrics.uploads.Load())
	metric("upload_failures_total", "counter", "CSV uploads rejected or failed", s.appMetrics.uploadFailures.Load())
	metric("analysis_cache_hits_total", "counter", "Analysis cache hits", s.appMetrics.cacheHits.Load())
	metric("analysis_cache_misses_total", "counter", "Analysis cache misses", s.appMetrics.cacheMisses.Load())
	metric("analysis_cache_entries", "gauge", "Cached analyses", s.analyses.Size())
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.appMetrics.started).Seconds()))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sessionID(w, r)
	data := struct {
		MaxUpload string
		Columns   []string
	}{
		MaxUpload: humanize.Bytes(uint64(s.maxUploadBytes)),
		Columns:   []string{"Date", "Description", "Category", "Amount"},
	}
	s.render(w, r, "index.html", data, nil)
}

// handleUpload parses the uploaded CSV, makes it the session's dataset and
// answers with the analytics partial.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentUpload)
	sid := sessionID(w, r)

	up, err := ReadUpload(w, r, s.maxUploadBytes)
	if err != nil {
		s.appMetrics.uploadFailures.Add(1)
		s.rejectUpload(w, r, logger, err)
		return
	}
	logger.DebugContext(ctx, "Upload received",
		applog.FieldSessionID, sid,
		applog.FieldFileName, up.FileName,
		applog.FieldBytes, up.Size)

	res, err := s.service.Load(ctx, sid, up.FileName, up.Content)
	var fileErr *core.FileError
	switch {
	case err == nil:
	case errors.As(err, &fileErr):
		s.appMetrics.uploadFailures.Add(1)
		logger.WarnContext(ctx, "CSV upload rejected",
			applog.FieldSessionID, sid,
			applog.FieldFileName, up.FileName,
			"kind", fileErr.Kind.String(),
			"error", fileErr)
		UnprocessableEntityError(fileErr.UserMessage()).Write(w)
		return
	case errors.Is(err, services.ErrSuperseded):
		// A newer upload from the same session won; show that one.
		ref, a, cerr := s.current(ctx, sid)
		if cerr != nil {
			s.loadFailed(w, r, logger, cerr)
			return
		}
		s.render(w, r, "analytics.html", newAnalyticsView(ref, a),
			NewHTMXResponse().TriggerWarningNotification("A newer upload replaced "+up.FileName+"."))
		return
	default:
		s.appMetrics.uploadFailures.Add(1)
		applog.NewStructuredLogger(logger).LogError(ctx, "Failed to store upload", err, applog.OpUpload,
			applog.NewFields().WithDataset(sid, "", up.FileName, 0, 0))
		InternalServerError("Could not save the uploaded data. Please try again.").Write(w)
		return
	}

	s.appMetrics.uploads.Add(1)
	s.analyses.Set(res.Ref.ID, res.Analysis)

	n, skipped := res.Ref.Transactions, res.Ref.Skipped
	msg := fmt.Sprintf("Loaded %d %s from %s", n, noun(n, "transaction", "transactions"), up.FileName)
	resp := NewHTMXResponse().TriggerDatasetLoaded(res.Ref.ID, n, skipped)
	if skipped > 0 {
		resp.TriggerWarningNotification(fmt.Sprintf("%s; %d %s skipped", msg, skipped, noun(skipped, "row", "rows")))
	} else {
		resp.TriggerSuccessNotification(msg)
	}
	s.render(w, r, "analytics.html", newAnalyticsView(res.Ref, res.Analysis), resp)
}

func (s *Server) rejectUpload(w http.ResponseWriter, r *http.Request, logger *applog.Logger, err error) {
	var (
		status int
		msg    string
	)
	switch {
	case errors.Is(err, ErrTooLarge):
		status, msg = http.StatusRequestEntityTooLarge, "The file is too large. The limit is "+humanize.Bytes(uint64(s.maxUploadBytes))+"."
	case errors.Is(err, ErrNotCSV):
		status, msg = http.StatusUnsupportedMediaType, "Please upload a CSV file"
	case errors.Is(err, ErrNotText):
		status, msg = http.StatusUnprocessableEntity, "The file is not a text CSV file."
	case errors.Is(err, ErrNoFile):
		status, msg = http.StatusBadRequest, "Choose a CSV file to upload."
	case errors.Is(err, ErrBadMultipart):
		status, msg = http.StatusBadRequest, "The upload request was malformed."
	default:
		status, msg = http.StatusInternalServerError, "Could not read the uploaded file."
	}

	logger.WarnContext(r.Context(), "Upload refused", "error", err, applog.FieldStatusCode, status)
	ErrorResponse(status, msg).Write(w)
}

func (s *Server) loadFailed(w http.ResponseWriter, r *http.Request, logger *applog.Logger, err error) {
	applog.NewStructuredLogger(logger).LogError(r.Context(), "Failed to load dataset", err, applog.OpLoad, nil)
	InternalServerError("Could not load your data. Please try again.").Write(w)
}

// handleAnalytics renders the analytics partial, optionally with another
// slice selected.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := sessionID(w, r)

	ref, a, err := s.current(ctx, sid)
	if errors.Is(err, services.ErrNoDataset) {
		s.render(w, r, "analytics.html", analyticsView{ChartSize: chartSize}, nil)
		return
	}
	if err != nil {
		s.loadFailed(w, r, applog.FromContext(ctx).WithComponent(applog.ComponentHTTP), err)
		return
	}

	if i, ok := ParseActiveIndex(r.URL.Query()); ok {
		a = a.WithActive(i)
	}
	s.render(w, r, "analytics.html", newAnalyticsView(ref, a), nil)
}

func (s *Server) handleAPIAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := sessionID(w, r)

	ref, a, err := s.current(ctx, sid)
	if errors.Is(err, services.ErrNoDataset) {
		writeJSON(w, http.StatusNotFound, errorJSON{Error: err.Error()})
		return
	}
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to load dataset", "error", err, applog.FieldOperation, applog.OpAnalyze)
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "could not load dataset"})
		return
	}

	if i, ok := ParseActiveIndex(r.URL.Query()); ok {
		a = a.WithActive(i)
	}
	writeJSON(w, http.StatusOK, newAnalysisResponse(ref, a))
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := sessionID(w, r)

	snaps, err := s.service.History(ctx, sid)
	if errors.Is(err, services.ErrHistoryUnavailable) {
		writeJSON(w, http.StatusNotImplemented, errorJSON{Error: err.Error()})
		return
	}
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to list snapshots", "error", err, applog.FieldSessionID, sid)
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "could not load history"})
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotsResponse(snaps))
}

// handleClear drops the session's dataset and answers with the empty
// analytics partial.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := sessionID(w, r)

	ref, err := s.service.CurrentRef(ctx, sid)
	if err != nil && !errors.Is(err, services.ErrNoDataset) {
		s.loadFailed(w, r, applog.FromContext(ctx), err)
		return
	}
	if err := s.service.Clear(ctx, sid); err != nil {
		applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "Failed to clear dataset", err, applog.OpClear, nil)
		InternalServerError("Could not clear your data. Please try again.").Write(w)
		return
	}
	if ref.ID != "" {
		s.analyses.Delete(ref.ID)
	}

	s.render(w, r, "analytics.html", analyticsView{ChartSize: chartSize},
		NewHTMXResponse().TriggerDatasetCleared().TriggerSuccessNotification("Data cleared"))
}

func noun(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
