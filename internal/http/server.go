package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"insights/internal/cache"
	"insights/internal/core"
	"insights/internal/datasets"
	applog "insights/internal/log"
	"insights/internal/middleware/ratelimit"
	"insights/internal/middleware/security"
	"insights/internal/middleware/trace"
	"insights/internal/services"
	"insights/internal/storage"
	appweb "insights/web"
)

// DatasetService is what the handlers need from the application layer.
// *services.DatasetService implements it.
type DatasetService interface {
	Load(ctx context.Context, sessionID, fileName, raw string) (services.LoadResult, error)
	CurrentRef(ctx context.Context, sessionID string) (datasets.Ref, error)
	Analysis(ctx context.Context, ref datasets.Ref) (core.Analysis, error)
	Clear(ctx context.Context, sessionID string) error
	History(ctx context.Context, sessionID string) ([]storage.Snapshot, error)
	Ready(ctx context.Context) error
}

// Options configures NewServer. Zero values fall back to defaults.
type Options struct {
	Addr               string
	MaxUploadBytes     int64
	CacheTTL           time.Duration
	CacheSize          int
	RateLimitPerMinute int
	Logger             *applog.Logger
}

const (
	defaultMaxUploadBytes = 5 << 20
	defaultCacheTTL       = 5 * time.Minute
	defaultCacheSize      = 100
	readyTimeout          = 5 * time.Second
)

type appMetrics struct {
	uploads        atomic.Int64
	uploadFailures atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	started        time.Time
}

// Server is the web front end: upload form, analytics partials and a small
// JSON API, all scoped to a browser session.
type Server struct {
	http.Server
	templates *template.Template
	service   DatasetService
	logger    *applog.Logger

	maxUploadBytes int64

	// Analyses keyed by dataset id. A dataset never changes once stored, so
	// entries only go stale by TTL or when the session is cleared.
	analyses *cache.LRUCache[core.Analysis]
	flight   singleflight.Group

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(opts Options, service DatasetService) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}

	detector := security.NewDetector()
	s := &Server{
		service:          service,
		logger:           logger,
		maxUploadBytes:   opts.MaxUploadBytes,
		analyses:         cache.NewLRUCache[core.Analysis](opts.CacheSize, opts.CacheTTL),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerWindow: opts.RateLimitPerMinute, Window: time.Minute}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		appMetrics:       &appMetrics{started: time.Now()},
	}

	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Error("Failed parsing templates", "error", err, applog.FieldComponent, applog.ComponentTemplate)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /clear", s.handleClear)
	mux.HandleFunc("GET /ui/analytics", s.handleAnalytics)
	mux.HandleFunc("GET /api/analysis", s.handleAPIAnalysis)
	mux.HandleFunc("GET /api/history", s.handleAPIHistory)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(detector.ExtractClientIP, s.onRateLimited, http.MethodPost)(handler)
	handler = s.detectSuspicious(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s
}

// Cleaners returns the in-memory state that needs periodic expiry, for
// registration with a cache.Manager.
func (s *Server) Cleaners() []cache.Cleaner {
	return []cache.Cleaner{s.analyses, s.rateLimiter}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info("HTTP server shutting down", applog.FieldOperation, applog.OpShutdown)
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) detectSuspicious(next http.Handler) http.Handler {
	logger := s.logger.WithComponent(applog.ComponentSecurity)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.securityDetector.IsSuspicious(r) {
			logger.WarnContext(r.Context(), "Suspicious request",
				applog.FieldRequestID, trace.GetRequestID(r.Context()),
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
				applog.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Too many uploads. Please wait a minute and try again.").Write(w)
}

// analysis returns the analysis of ref, computing it at most once per
// dataset however many requests ask concurrently.
func (s *Server) analysis(ctx context.Context, ref datasets.Ref) (core.Analysis, error) {
	if a, ok := s.analyses.Get(ref.ID); ok {
		s.appMetrics.cacheHits.Add(1)
		return a, nil
	}
	s.appMetrics.cacheMisses.Add(1)

	v, err, _ := s.flight.Do(ref.ID, func() (any, error) {
		a, err := s.service.Analysis(ctx, ref)
		if err != nil {
			return core.Analysis{}, err
		}
		s.analyses.Set(ref.ID, a)
		return a, nil
	})
	if err != nil {
		return core.Analysis{}, err
	}
	return v.(core.Analysis), nil
}

// current returns the session's dataset and its analysis.
func (s *Server) current(ctx context.Context, sessionID string) (datasets.Ref, core.Analysis, error) {
	ref, err := s.service.CurrentRef(ctx, sessionID)
	if err != nil {
		return datasets.Ref{}, core.Analysis{}, err
	}
	a, err := s.analysis(ctx, ref)
	if err != nil {
		return datasets.Ref{}, core.Analysis{}, err
	}
	return ref, a, nil
}
