package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"smartspend/internal/analytics"
	"smartspend/internal/cache"
	"smartspend/internal/core"
	applog "smartspend/internal/log"
	"smartspend/internal/middleware/ratelimit"
	"smartspend/internal/middleware/security"
	"smartspend/internal/middleware/trace"
)

// AnalysisAPI is what the handlers need from the analysis service.
type AnalysisAPI interface {
	AnalyzeUpload(ctx context.Context, text string, local bool) (core.Summary, analytics.IngestStats, error)
	SaveAnalysis(ctx context.Context, a core.Analysis) (core.Analysis, error)
	GetAnalysis(ctx context.Context, ref string) (core.Analysis, error)
	ListAnalyses(ctx context.Context, email string, limit int) ([]core.Analysis, error)
	SaveProfile(ctx context.Context, p core.Profile) (core.Profile, error)
	GetProfile(ctx context.Context, email string) (core.Profile, error)
}

// Pinger is implemented by storage backends that can check connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server. Zero values select defaults.
type Options struct {
	MaxUploadBytes       int64
	RateLimit            ratelimit.Config
	Logger               *applog.Logger
	Ready                Pinger
	Caches               []cache.Cleaner
	CacheCleanupInterval time.Duration
}

const (
	defaultMaxUploadBytes = 8 << 20
	maxJSONBodyBytes      = 1 << 20
)

type appMetrics struct {
	uptime        time.Time
	uploads       int64
	analysesSaved int64
}

type Server struct {
	http.Server
	analyses  AnalysisAPI
	ready     Pinger
	maxUpload int64
	logger    *applog.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	caches           *cache.Manager
	cacheList        []cache.Cleaner
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Background cleanup goroutines stop in Shutdown.
func NewServer(addr string, analyses AnalysisAPI, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.RateLimit.RequestsPerMinute <= 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}
	if opts.CacheCleanupInterval <= 0 {
		opts.CacheCleanupInterval = 10 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	s := &Server{
		analyses:         analyses,
		ready:            opts.Ready,
		maxUpload:        opts.MaxUploadBytes,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, logger),
		caches:           cache.NewManager(logger.Logger),
		cacheList:        opts.Caches,
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	for _, c := range opts.Caches {
		s.caches.Register(c)
	}
	s.caches.StartCleanup(opts.CacheCleanupInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.Handle("GET /download/sample-csv",
		security.DownloadMiddleware(3600, sampleCSVDownloadName)(http.HandlerFunc(s.handleSampleCSV)))

	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /api/analysis", s.handleSaveAnalysis)
	mux.HandleFunc("GET /api/analysis", s.handleListAnalyses)
	mux.HandleFunc("GET /api/analysis/{ref}", s.handleGetAnalysis)
	mux.HandleFunc("POST /api/profile", s.handleSaveProfile)
	mux.HandleFunc("GET /api/profile", s.handleGetProfile)

	// wrapped inside out; trace is outermost and logs the final status
	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, detector.ExtractClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})(handler)
	handler = detector.Middleware(logger.Logger.With(applog.FieldComponent, applog.ComponentSecurity))(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) recordUpload() {
	atomic.AddInt64(&s.appMetrics.uploads, 1)
}

func (s *Server) recordAnalysisSaved() {
	atomic.AddInt64(&s.appMetrics.analysesSaved, 1)
}
