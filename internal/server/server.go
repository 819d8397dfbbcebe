// Package server wires the site's routes, middleware and handlers.
package server

import (
	"io/fs"
	"net/http"
	"strings"
	"time"

	"subtranslate/site/internal/circuitbreaker"
	"subtranslate/site/internal/config"
	"subtranslate/site/internal/gate"
	"subtranslate/site/internal/httputil"
	"subtranslate/site/internal/render"
	"subtranslate/site/internal/theme"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps form and JSON bodies on the POST routes.
const maxBodyBytes = 16 * 1024

type Deps struct {
	Config   *config.Config
	Gate     *gate.Gate
	Themes   *theme.Store
	Renderer *render.Renderer
	Static   fs.FS // rooted at the static directory
	Breaker  *circuitbreaker.CircuitBreaker
	Logger   zerolog.Logger
}

type Server struct {
	cfg      *config.Config
	gate     *gate.Gate
	themes   *theme.Store
	renderer *render.Renderer
	static   fs.FS
	breaker  *circuitbreaker.CircuitBreaker
	logger   zerolog.Logger
	started  time.Time
}

func New(d Deps) *Server {
	return &Server{
		cfg:      d.Config,
		gate:     d.Gate,
		themes:   d.Themes,
		renderer: d.Renderer,
		static:   d.Static,
		breaker:  d.Breaker,
		logger:   d.Logger,
		started:  time.Now(),
	}
}

// Routes builds the router. Middleware order: request ID and logger,
// security headers, access log, panic recovery, per-request locals.
// HEAD falls through to the GET handlers.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(httputil.RequestIDMiddleware(s.logger, s.cfg.Server.TrustedProxyCIDRs))
	r.Use(withCommonHeaders)
	r.Use(s.accessLog)
	r.Use(s.recoverer)
	r.Use(s.withLocals)
	r.Use(middleware.GetHead)

	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.notFound)

	r.With(s.gate.Require).Get("/", s.home)
	r.Get("/security", s.security)
	r.Post("/api/theme", s.updateTheme)
	r.Post("/verify-turnstile", s.verifyTurnstile)

	r.Get("/static/*", s.staticFiles())
	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) staticFiles() http.HandlerFunc {
	files := http.StripPrefix("/static/", http.FileServer(http.FS(s.static)))
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/static/")
		info, err := fs.Stat(s.static, name)
		if err != nil || info.IsDir() {
			s.notFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	}
}

// page fills the fields every template shares from the request locals.
func (s *Server) page(r *http.Request, title, description string) *render.Page {
	l := LocalsFrom(r.Context())
	return &render.Page{
		Title:       title,
		Description: description,
		ActivePath:  r.URL.Path,
		Theme:       string(l.Theme),
		Verified:    l.Trust.Verified,
		Production:  l.Production,
		RayID:       l.RayID,
	}
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, p *render.Page) {
	if err := s.renderer.Render(w, status, name, p); err != nil {
		httputil.GetLogger(r.Context()).Error().Err(err).Str("page", name).Msg("render failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
