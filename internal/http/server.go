// Package http exposes the fintrack JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// Options configures the API server.
type Options struct {
	Addr               string
	DefaultPageSize    int
	RateLimitPerMinute int
	Logger             *log.Logger
}

type Server struct {
	http.Server

	repo      *storage.SQLiteRepository
	events    services.EventPublisher
	resources map[core.EntityKind]resource
	spending  *services.SpendingService

	defaultPageSize int
	started         time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware over repo. events may be nil, in
// which case writes are not announced.
func NewServer(opts Options, repo *storage.SQLiteRepository, events services.EventPublisher) *Server {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = core.DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}

	detector := security.NewDetector()
	s := &Server{
		repo:             repo,
		events:           events,
		resources:        newResources(repo, events),
		spending:         services.NewSpendingService(repo),
		defaultPageSize:  opts.DefaultPageSize,
		started:          time.Now(),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP),
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/budgets/spending", s.handleBudgetSpending)
	api.HandleFunc("GET /api/{kind}", s.handleList)
	api.HandleFunc("POST /api/{kind}", s.handleCreate)
	api.HandleFunc("GET /api/{kind}/{id}", s.handleGet)
	api.HandleFunc("PUT /api/{kind}/{id}", s.handleUpdate)
	api.HandleFunc("DELETE /api/{kind}/{id}", s.handleDelete)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.Handle("/api/", auth.Middleware(repo, writeError)(api))

	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, result{Success: false, Message: "rate limit exceeded, try again later"})
	})

	var handler http.Handler = mux
	handler = limited(handler)
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = log.Middleware(opts.Logger.WithComponent(log.ComponentHTTP))(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// resourceFor resolves the {kind} path segment.
func (s *Server) resourceFor(r *http.Request) (resource, error) {
	kind, ok := core.ParseEntityKind(r.PathValue("kind"))
	if !ok {
		return nil, core.NotFound("collection " + r.PathValue("kind"))
	}
	return s.resources[kind], nil
}
