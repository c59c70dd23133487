// Package server exposes the investigation desk as a JSON API.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/osintlab/casedesk/internal/alert"
	"github.com/osintlab/casedesk/internal/search"
	"github.com/osintlab/casedesk/internal/store"
)

// Config holds server configuration.
type Config struct {
	ListenAddr     string
	DBPath         string
	SendGridKey    string
	AlertFromEmail string
	AlertFromName  string
	AlertToEmail   string
	// SandboxMode when true prevents actual alert delivery via SendGrid.
	SandboxMode bool
}

// Server is the main HTTP server for the investigation desk.
type Server struct {
	config   Config
	store    store.Store
	search   *search.Service
	notifier *alert.Notifier
	logger   *slog.Logger
	router   chi.Router
}

// NewServer creates a new Server from the given config and store.
// Alerting stays disabled unless both a SendGrid key and a recipient
// are configured.
func NewServer(cfg Config, s store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		config: cfg,
		store:  s,
		search: search.NewService(s, logger),
		logger: logger,
	}
	if cfg.SendGridKey != "" && cfg.AlertToEmail != "" {
		srv.notifier = alert.NewNotifier(alert.EmailConfig{
			FromAddress:    cfg.AlertFromEmail,
			FromName:       cfg.AlertFromName,
			ToAddress:      cfg.AlertToEmail,
			SandboxMode:    cfg.SandboxMode,
			SendGridAPIKey: cfg.SendGridKey,
		}, nil)
	}
	srv.router = srv.routes()
	return srv
}

// SetNotifier replaces the alert notifier. Used in tests.
func (s *Server) SetNotifier(n *alert.Notifier) {
	s.notifier = n
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(SecurityHeadersMiddleware)

	r.Get("/healthz", s.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/cases", s.HandleListCases)
		r.Post("/cases", s.HandleCreateCase)
		r.Route("/cases/{caseID}", func(r chi.Router) {
			r.Get("/", s.HandleGetCase)
			r.Patch("/", s.HandleUpdateCase)
			r.Delete("/", s.HandleDeleteCase)
			r.Get("/entities", s.HandleListCaseEntities)
			r.Get("/relationships", s.HandleListCaseRelationships)
			r.Get("/timeline", s.HandleCaseTimeline)
			r.Get("/export", s.HandleExportCase)
		})

		r.Post("/entities", s.HandleCreateEntity)
		r.Patch("/entities/{entityID}", s.HandleUpdateEntity)
		r.Delete("/entities/{entityID}", s.HandleDeleteEntity)

		r.Post("/relationships", s.HandleCreateRelationship)
		r.Delete("/relationships/{relationshipID}", s.HandleDeleteRelationship)

		r.Get("/api-configs", s.HandleListConfigs)
		r.Post("/api-configs", s.HandleCreateConfig)
		r.Get("/api-configs/{configID}", s.HandleGetConfig)
		r.Patch("/api-configs/{configID}", s.HandleUpdateConfig)
		r.Delete("/api-configs/{configID}", s.HandleDeleteConfig)
		r.Post("/api-configs/{configID}/test", s.HandleTestConfig)

		r.Get("/search-history", s.HandleSearchHistory)
		r.Post("/search", s.HandleSearch)

		r.Get("/stats", s.HandleStats)
	})

	return r
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HandleHealth reports liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
