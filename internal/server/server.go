package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/cropscope/internal/database"
	"github.com/TobiSchelling/cropscope/internal/middleware"
	"github.com/TobiSchelling/cropscope/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Analyzer runs one analysis. *pipeline.Pipeline satisfies it.
type Analyzer interface {
	Run(ctx context.Context, q pipeline.Query) (*pipeline.Composite, error)
}

// Archiver uploads a stored analysis and returns its URL.
type Archiver interface {
	Archive(ctx context.Context, a *database.Analysis) (string, error)
}

// Options configures a Server. Archiver may be nil.
type Options struct {
	DB          *database.DB
	Analyzer    Analyzer
	Archiver    Archiver
	Logger      logrus.FieldLogger
	CORSOrigins []string
	RateLimit   float64
	RateBurst   int
}

// Server serves the JSON API and the HTML analysis pages.
type Server struct {
	db       *database.DB
	analyzer Analyzer
	archiver Archiver
	log      logrus.FieldLogger
	pages    map[string]*template.Template
	router   chi.Router
}

// New creates a new Server.
func New(opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"date":     func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04") },
		"title":    titleCase,
		"join":     strings.Join,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so their "content" blocks don't collide.
	pageNames := []string{"index.html", "analysis.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		db:       opts.DB,
		analyzer: opts.Analyzer,
		archiver: opts.Archiver,
		log:      log,
		pages:    pages,
		router:   chi.NewRouter(),
	}
	s.routes(opts)
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes(opts Options) {
	r := s.router
	r.Use(middleware.RequestLogger(s.log))

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleIndex)
	r.Get("/analyses/{id}", s.handleAnalysisPage)

	r.Route("/api", func(api chi.Router) {
		origins := opts.CORSOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		if opts.RateLimit > 0 {
			api.Use(middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst).Handler)
		}

		api.Post("/analyze", s.handleAnalyze)
		api.Post("/analyses", s.handleSaveAnalysis)
		api.Get("/analyses", s.handleListAnalyses)
		api.Get("/analyses/{id}", s.handleGetAnalysis)

		api.Get("/faostat/areas", s.handleAreas)
		api.Get("/faostat/items", s.handleItems)
		api.Post("/faostat/series", s.handleSeries)
		api.Post("/faostat/area-harvested", s.handleAreaHarvested)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	analyses, err := s.db.ListAnalyses(100)
	if err != nil {
		s.log.WithError(err).Error("Listing analyses failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Analyses": analyses,
	})
}

func (s *Server) handleAnalysisPage(w http.ResponseWriter, r *http.Request) {
	a, err := s.db.GetAnalysis(chi.URLParam(r, "id"))
	if err != nil {
		s.log.WithError(err).Error("Loading analysis failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if a == nil {
		http.NotFound(w, r)
		return
	}

	s.render(w, "analysis.html", map[string]any{
		"Analysis": a,
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Errorf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.log.WithError(err).Errorf("Error rendering template %s", name)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Serve listens on port until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, srv *Server, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		srv.log.Infof("Server listening on http://%s", addr)
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	srv.log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
