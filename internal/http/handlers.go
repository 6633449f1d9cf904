package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"smartspend/internal/cache"
	"smartspend/internal/core"
	applog "smartspend/internal/log"
	"smartspend/web"
)

// Client-facing messages.
const (
	msgNoFile         = "No file uploaded."
	msgUnreadableCSV  = "Could not read CSV. Please upload a valid CSV file."
	msgMissingColumns = "CSV must include date/time and amount columns."
	msgNoData         = "No valid rows remain after cleaning."
	msgEmailRequired  = "Email is required."
	msgInvalidBody    = "Invalid request body."
	msgNotFound       = "Analysis not found."
	msgServerError    = "Unexpected server error."
)

const sampleCSVDownloadName = "sample_expenses_large.csv"

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"uptime": time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks storage connectivity when the backend supports it.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{
		"rate_limiter": map[string]any{"active_clients": s.rateLimiter.ActiveClients()},
	}

	if s.ready == nil {
		checks["storage"] = "not_checked"
	} else if err := s.ready.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
		checks["storage"] = "failed"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	NewResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	var cacheStats cache.Stats
	for _, c := range s.cacheList {
		if sc, ok := c.(interface{ Stats() cache.Stats }); ok {
			st := sc.Stats()
			cacheStats.Hits += st.Hits
			cacheStats.Misses += st.Misses
			cacheStats.Size += st.Size
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_request_duration_avg_microseconds", "gauge", "Average request duration", traceMetrics.AverageResponseTime)
	metric("uploads_total", "counter", "Uploads analyzed successfully", atomic.LoadInt64(&s.appMetrics.uploads))
	metric("analyses_saved_total", "counter", "Analyses persisted", atomic.LoadInt64(&s.appMetrics.analysesSaved))
	metric("cache_hits_total", "counter", "Total cache hits", cacheStats.Hits)
	metric("cache_misses_total", "counter", "Total cache misses", cacheStats.Misses)
	metric("cache_entries", "gauge", "Current cache entries", cacheStats.Size)
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.appMetrics.uptime).Seconds()))
}

func (s *Server) handleSampleCSV(w http.ResponseWriter, r *http.Request) {
	NewResponse().Raw("text/csv; charset=utf-8", web.SampleCSV).Write(w)
}

// handleUpload analyzes a multipart "file" upload and returns the summary.
// Insights are generated server-side unless the "local" flag is set.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File too large. Max upload size is %dMB.", s.maxUpload>>20)).Write(w)
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			logger.WarnContext(ctx, "Parse multipart form failed", applog.FieldError, err)
		}
		BadRequestError(msgNoFile).Write(w)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		BadRequestError(msgNoFile).Write(w)
		return
	}
	defer file.Close()

	text, err := readUpload(file)
	if err != nil {
		logger.WarnContext(ctx, "Unreadable upload", applog.FieldError, err, "filename", header.Filename)
		BadRequestError(msgUnreadableCSV).Write(w)
		return
	}

	local := parseBool(r.FormValue("local"))
	summary, stats, err := s.analyses.AnalyzeUpload(ctx, text, local)
	switch {
	case errors.Is(err, core.ErrMissingColumns):
		UnprocessableEntityError(msgMissingColumns).Write(w)
		return
	case errors.Is(err, core.ErrNoData):
		UnprocessableEntityError(msgNoData).Write(w)
		return
	case err != nil:
		applog.NewStructuredLogger(logger).LogError(ctx, "Upload analysis failed", err,
			applog.ComponentAnalysis, applog.OpUpload, nil)
		InternalServerError().Write(w)
		return
	}

	s.recordUpload()
	applog.NewStructuredLogger(logger).LogUpload(ctx, header.Size, stats.Accepted, stats.Dropped)
	NewResponse().JSON(summary).Write(w)
}

// handleSaveAnalysis stores the headline of a dashboard analysis.
func (s *Server) handleSaveAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		BadRequestError(msgInvalidBody).Write(w)
		return
	}

	a, err := analysisFromBody(body)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	saved, err := s.analyses.SaveAnalysis(ctx, a)
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			BadRequestError(msg).Write(w)
			return
		}
		applog.NewStructuredLogger(logger).LogError(ctx, "Save analysis failed", err,
			applog.ComponentAnalysis, applog.OpCreate, nil)
		InternalServerError().Write(w)
		return
	}

	s.recordAnalysisSaved()
	applog.NewStructuredLogger(logger).LogAnalysisSaved(ctx, saved.ID, saved.Ref, saved.Total, saved.Anomalies)
	NewResponse().Status(http.StatusCreated).JSON(map[string]string{
		"status": "analysis_saved",
		"ref":    saved.Ref,
	}).Write(w)
}

// validationMessage maps domain validation errors to their bare message,
// without the wrapping added on the way up.
func validationMessage(err error) (string, bool) {
	for _, target := range []error{core.ErrInvalidAmount, core.ErrInvalidCount, core.ErrEmptyEmail} {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}
	return "", false
}

func analysisFromBody(body *RequestBodyParser) (core.Analysis, error) {
	var (
		a   core.Analysis
		err error
	)
	a.Email = body.Get("email")
	if a.Total, err = body.Float("total", 0); err != nil {
		return core.Analysis{}, err
	}
	if a.Average, err = body.Float("average", 0); err != nil {
		return core.Analysis{}, err
	}
	if a.Prediction, err = body.Float("prediction", 0); err != nil {
		return core.Analysis{}, err
	}
	if a.Anomalies, err = body.Int("anomalies", 0); err != nil {
		return core.Analysis{}, err
	}
	a.StrongestCategory = body.Get("strongest_category")
	a.Payload = body.Document("payload", "{}")
	return a, nil
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := ParseListParams(r.URL.Query())

	items, err := s.analyses.ListAnalyses(ctx, params.Email, params.Limit)
	if err != nil {
		applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "List analyses failed", err,
			applog.ComponentAnalysis, applog.OpList, nil)
		InternalServerError().Write(w)
		return
	}

	views := make([]analysisView, 0, len(items))
	for _, a := range items {
		views = append(views, toAnalysisView(a))
	}
	NewResponse().JSON(map[string]any{"analyses": views}).Write(w)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	a, err := s.analyses.GetAnalysis(ctx, sanitizeInput(r.PathValue("ref")))
	if errors.Is(err, core.ErrNotFound) {
		NotFoundError(msgNotFound).Write(w)
		return
	}
	if err != nil {
		applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "Get analysis failed", err,
			applog.ComponentAnalysis, applog.OpRead, nil)
		InternalServerError().Write(w)
		return
	}
	NewResponse().JSON(map[string]any{"analysis": toAnalysisView(a)}).Write(w)
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		BadRequestError(msgInvalidBody).Write(w)
		return
	}

	p := core.Profile{
		Email:      body.Get("email"),
		Name:       body.Get("name"),
		Occupation: body.Get("occupation"),
		Avatar:     body.Get("avatar"),
		Theme:      body.Get("theme"),
	}
	if _, err := s.analyses.SaveProfile(ctx, p); err != nil {
		if errors.Is(err, core.ErrEmptyEmail) {
			BadRequestError(msgEmailRequired).Write(w)
			return
		}
		applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "Save profile failed", err,
			applog.ComponentStorage, applog.OpCreate, nil)
		InternalServerError().Write(w)
		return
	}
	NewResponse().JSON(map[string]string{"status": "saved"}).Write(w)
}

// handleGetProfile answers {"profile": null} for unknown emails.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := s.analyses.GetProfile(ctx, r.URL.Query().Get("email"))
	switch {
	case errors.Is(err, core.ErrEmptyEmail):
		BadRequestError(msgEmailRequired).Write(w)
	case errors.Is(err, core.ErrNotFound):
		NewResponse().JSON(map[string]any{"profile": nil}).Write(w)
	case err != nil:
		applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "Get profile failed", err,
			applog.ComponentStorage, applog.OpRead, nil)
		InternalServerError().Write(w)
	default:
		NewResponse().JSON(map[string]any{"profile": toProfileView(p)}).Write(w)
	}
}
