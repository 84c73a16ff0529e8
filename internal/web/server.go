package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Config holds server configuration
type Config struct {
	Port           int
	StaticDir      string
	AllowedOrigins []string // defaults to any origin
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     *Config
	listener   net.Listener
	hub        *Hub
}

// NewServer creates a new HTTP server. hub may be nil, in which case /ws is
// not served.
func NewServer(cfg *Config, hub *Hub) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		config: cfg,
		hub:    hub,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS", "DELETE", "PUT"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "HX-Request"},
	}))
}

func (s *Server) setupRoutes() {
	if s.config.StaticDir != "" {
		fileServer := http.FileServer(http.Dir(s.config.StaticDir))
		s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	}

	if s.hub != nil {
		s.router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			ServeWs(s.hub, w, r)
		})
	}

	s.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			_ = err // Client disconnected
		}
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return err
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s.httpServer.Serve(listener)
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// BaseURL returns the server's base URL
func (s *Server) BaseURL() string {
	if s.listener != nil {
		return fmt.Sprintf("http://%s", s.listener.Addr().String())
	}
	return fmt.Sprintf("http://localhost:%d", s.config.Port)
}

// Router returns the underlying Chi router for external route mounting.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// RegisterPagesHandler registers the HTML pages
func (s *Server) RegisterPagesHandler(handler interface{}) {
	type pagesHandler interface {
		Dashboard(w http.ResponseWriter, r *http.Request)
		Channel(w http.ResponseWriter, r *http.Request)
		View(w http.ResponseWriter, r *http.Request)
		Search(w http.ResponseWriter, r *http.Request)
		Settings(w http.ResponseWriter, r *http.Request)
	}

	if h, ok := handler.(pagesHandler); ok {
		s.router.Get("/", h.Dashboard)
		s.router.Get("/channel/{name}", h.Channel)
		s.router.Get("/view/{channel}/{file}", h.View)
		s.router.Get("/search", h.Search)
		s.router.Get("/settings", h.Settings)
	}
}

// RegisterArchiveHandler registers archive browsing API and media serving
func (s *Server) RegisterArchiveHandler(handler interface{}) {
	type archiveHandler interface {
		Search(w http.ResponseWriter, r *http.Request)
		Stats(w http.ResponseWriter, r *http.Request)
		Channels(w http.ResponseWriter, r *http.Request)
		Files(w http.ResponseWriter, r *http.Request)
		Media(w http.ResponseWriter, r *http.Request)
	}

	if h, ok := handler.(archiveHandler); ok {
		s.router.Get("/api/search", h.Search)
		s.router.Get("/api/stats", h.Stats)
		s.router.Route("/api/archive/channels", func(r chi.Router) {
			r.Get("/", h.Channels)
			r.Get("/{name}/files", h.Files)
		})
		s.router.Get("/media/{channel}/{file}", h.Media)
	}
}

// RegisterChannelsHandler registers channel configuration CRUD
func (s *Server) RegisterChannelsHandler(handler interface{}) {
	type channelsHandler interface {
		List(w http.ResponseWriter, r *http.Request)
		Create(w http.ResponseWriter, r *http.Request)
		Update(w http.ResponseWriter, r *http.Request)
		Delete(w http.ResponseWriter, r *http.Request)
	}

	if h, ok := handler.(channelsHandler); ok {
		s.router.Route("/api/channels", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			r.Put("/{index}", h.Update)
			r.Delete("/{index}", h.Delete)
		})
	}
}

// RegisterSettingsHandler registers archive options endpoints
func (s *Server) RegisterSettingsHandler(handler interface{}) {
	type settingsHandler interface {
		Get(w http.ResponseWriter, r *http.Request)
		Update(w http.ResponseWriter, r *http.Request)
	}

	if h, ok := handler.(settingsHandler); ok {
		s.router.Get("/api/settings", h.Get)
		s.router.Post("/api/settings", h.Update)
	}
}

// RegisterArchivingRouter mounts the archiving control endpoints
func (s *Server) RegisterArchivingRouter(router http.Handler) {
	if router != nil {
		s.router.Mount("/api/archiving", router)
	}
}

// RegisterAuthHandler registers Telegram login endpoints
func (s *Server) RegisterAuthHandler(handler interface{}) {
	type authHandler interface {
		GetStatus(w http.ResponseWriter, r *http.Request)
		StartQR(w http.ResponseWriter, r *http.Request)
	}

	if h, ok := handler.(authHandler); ok {
		s.router.Route("/api/auth", func(r chi.Router) {
			r.Get("/status", h.GetStatus)
			r.Post("/qr", h.StartQR)
		})
	}
}
