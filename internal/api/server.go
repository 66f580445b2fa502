package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/javierd009/concierge/internal/api/middleware"
	"github.com/javierd009/concierge/internal/config"
	"github.com/javierd009/concierge/internal/database"
	"github.com/javierd009/concierge/internal/metrics"
	"github.com/javierd009/concierge/internal/qr"
)

// Server holds HTTP handler dependencies and the chi router for the QR and
// audit HTTP surface (§6). Everything else the original PBX admin console
// exposed — extension/trunk/flow CRUD, a dashboard, an SPA — has no
// equivalent in this domain and is not mounted here.
type Server struct {
	router *chi.Mux
	db     *database.DB
	cfg    *config.Config
	qr     *qr.Service
	keys   database.APIKeyRepository
}

// NewServer creates the HTTP handler with all routes mounted. activeCalls is
// optional (nil in processes that don't run the voice bridge) and feeds the
// /metrics active-call gauge.
func NewServer(db *database.DB, cfg *config.Config, activeCalls metrics.ActiveCallsProvider) *Server {
	s := &Server{
		router: chi.NewRouter(),
		db:     db,
		cfg:    cfg,
		qr:     qr.New(db, cfg),
		keys:   database.NewAPIKeyRepository(db),
	}
	s.routes(activeCalls)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(activeCalls metrics.ActiveCallsProvider) {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders(false))

	limiter := middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig())
	r.Use(middleware.RateLimit(limiter))

	r.Get("/health", s.handleHealth)

	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(activeCalls, time.Now()))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/qr", func(r chi.Router) {
		r.Use(middleware.RequireTenant)

		// The scan/landing endpoint is reachable straight from a printed QR
		// code, so it carries no API key.
		r.Get("/{token}", s.handleScan)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAPIKey(s.keys))
			r.Post("/issue-visit", s.handleIssueVisit)
			r.Post("/consume", s.handleConsume)
			r.Post("/revoke", s.handleRevoke)
		})
	})

	r.Route("/audit", func(r chi.Router) {
		r.Use(middleware.RequireTenant)
		r.Use(middleware.RequireAPIKey(s.keys))
		r.Post("/log-open", s.handleLogOpen)
	})

	slog.Info("api routes mounted")
}

// handleHealth is unauthenticated and tenant-agnostic, used by orchestration
// probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
