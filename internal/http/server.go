package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ledger/internal/adapters"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	http.Server
	ops     *adapters.Operations
	logger  *log.Logger
	checks  map[string]ReadinessCheck
	started time.Time

	traceMiddleware *trace.Middleware
	rateLimiter     *ratelimit.Limiter

	shutdownOnce sync.Once
}

// Options configures optional server behaviour.
type Options struct {
	// RequestsPerMinute limits mutating requests per client; 0 uses the default.
	RequestsPerMinute int
	// Checks are run by /readyz, keyed by dependency name.
	Checks map[string]ReadinessCheck
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ops *adapters.Operations, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	ipExtractor := security.NewClientIPExtractor()
	s := &Server{
		ops:             ops,
		logger:          logger,
		checks:          opts.Checks,
		started:         time.Now(),
		traceMiddleware: trace.NewMiddleware(ipExtractor.ClientIP, log.NewStructuredLogger(logger)),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RequestsPerMinute,
		}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("GET /api/transactions/unprocessed", s.handleUnprocessed)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}/category", s.handleCategorizeByID)
	mux.HandleFunc("PUT /api/transactions/{id}/processed", s.handleProcessedByID)
	mux.HandleFunc("PUT /api/transactions/{id}/flag", s.handleFlagByID)
	mux.HandleFunc("POST /api/transactions/match/category", s.handleCategorizeByKey)
	mux.HandleFunc("POST /api/transactions/match/processed", s.handleProcessedByKey)
	mux.HandleFunc("POST /api/transactions/match/flag", s.handleFlagByKey)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.HandleFunc("GET /api/goals", s.handleListGoals)
	mux.HandleFunc("POST /api/goals", s.handleCreateGoal)
	mux.HandleFunc("PUT /api/goals/{id}", s.handleUpdateGoal)
	mux.HandleFunc("DELETE /api/goals/{id}", s.handleDeleteGoal)
	mux.HandleFunc("GET /api/progress", s.handleProgress)
	mux.HandleFunc("GET /api/progress/history", s.handleProgressHistory)

	limited := s.rateLimiter.Middleware(ipExtractor.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, ipExtractor.ClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})

	var handler http.Handler = mux
	handler = limited(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestID)(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
