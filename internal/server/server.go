// Package server provides the HTTP server for meshstudio.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/meshstudio/internal/logging"
	"github.com/ayusman/meshstudio/internal/server/api"
	"github.com/ayusman/meshstudio/internal/store"
	"github.com/ayusman/meshstudio/internal/studio"
)

// Config holds the server configuration.
type Config struct {
	Addr         string
	StaticDir    string
	Studio       *studio.Studio
	Store        *store.Store
	Log          logrus.FieldLogger
	MaxUpload    int64
	// UploadRate is image uploads per minute per client IP; 0 disables the limit.
	UploadRate   float64
	UploadBurst  int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server represents the HTTP server for the studio.
type Server struct {
	config     Config
	log        logrus.FieldLogger
	router     *chi.Mux
	httpServer *http.Server
	start      time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	log := config.Log
	if log == nil {
		log = logging.Discard()
	}

	r := chi.NewRouter()
	s := &Server{
		config: config,
		log:    log,
		router: r,
		start:  time.Now(),
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(logging.Middleware(log))
	r.Use(chiMiddleware.Recoverer)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.router.Get("/api/health", s.handleHealth)

	if st := s.config.Studio; st != nil {
		sessions := api.NewSessionHandler(st, s.log, s.config.MaxUpload)
		regions := api.NewRegionHandler(st)
		events := NewSessionEventsHandler(st, s.log)

		var presets *api.PresetHandler
		if s.config.Store != nil {
			presets = api.NewPresetHandler(s.config.Store, st, s.log)
		}

		s.router.Get("/api/regions", regions.Regions)
		s.router.Get("/api/connections", regions.Connections)

		s.router.Route("/api/sessions", func(r chi.Router) {
			r.Get("/", sessions.List)
			r.Post("/", sessions.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessions.Get)
				r.Delete("/", sessions.Delete)
				if s.config.UploadRate > 0 {
					limiter := newUploadLimiter(s.config.UploadRate, s.config.UploadBurst, s.log)
					r.With(limiter.Middleware).Post("/image", sessions.Upload)
				} else {
					r.Post("/image", sessions.Upload)
				}
				r.Get("/landmarks", sessions.Landmarks)
				r.Get("/overlay.svg", sessions.OverlaySVG)
				r.Get("/overlay.png", sessions.OverlayPNG)
				r.Get("/analysis", sessions.Analysis)
				r.Get("/export", sessions.Export)
				r.Get("/export/text", sessions.ExportText)
				r.Get("/ws", events.ServeHTTP)

				r.Put("/selection", sessions.Replace)
				r.Delete("/selection", sessions.Clear)
				r.Post("/selection/toggle", sessions.Toggle)
				r.Post("/selection/click", sessions.Click)
				r.Post("/selection/all", sessions.SelectAll)

				if presets != nil {
					r.Post("/presets/{presetID}", presets.Apply)
				}
			})
		})

		if presets != nil {
			s.router.Route("/api/presets", func(r chi.Router) {
				r.Get("/", presets.List)
				r.Post("/", presets.Create)
				r.Get("/{id}", presets.Get)
				r.Delete("/{id}", presets.Delete)
			})
		}
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		if info, err := os.Stat(s.config.StaticDir); err == nil && info.IsDir() {
			s.router.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
		} else {
			s.log.WithField("dir", s.config.StaticDir).Warn("static directory not found, UI disabled")
		}
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Model    string `json:"model,omitempty"`
	Ready    bool   `json:"ready"`
	Sessions int    `json:"sessions"`
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.start).Round(time.Second).String(),
	}

	if st := s.config.Studio; st != nil {
		response.Sessions = len(st.List())
		if client := st.Client(); client != nil {
			response.Ready = client.Ready()
			if info := client.Info(); info != nil {
				response.Model = info.Name
			}
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
