package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/casekit/evidence-extractor/internal/async"
	"github.com/casekit/evidence-extractor/internal/export"
	"github.com/casekit/evidence-extractor/internal/rasterize"
	"github.com/casekit/evidence-extractor/internal/repository"
)

// Server owns the HTTP surface: case upload and lifecycle, extraction
// configuration, templates, and XLSX export. All processing is delegated to
// the background queue; handlers only read and mutate case state.
type Server struct {
	cases     repository.CaseRepository
	templates repository.TemplateRepository
	queue     *async.Queue
	raster    *rasterize.Rasterizer
	exporter  *export.Service
	uploadDir string
	logger    *slog.Logger
}

func NewServer(
	cases repository.CaseRepository,
	templates repository.TemplateRepository,
	queue *async.Queue,
	raster *rasterize.Rasterizer,
	exporter *export.Service,
	uploadDir string,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cases:     cases,
		templates: templates,
		queue:     queue,
		raster:    raster,
		exporter:  exporter,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/cases", func(r chi.Router) {
		r.Get("/", s.handleListCases)
		r.Post("/upload", s.handleUpload)
		r.Get("/default-config", s.handleDefaultConfig)

		r.Route("/{caseID}", func(r chi.Router) {
			r.Get("/", s.handleGetCase)
			r.Delete("/", s.handleDeleteCase)
			r.Put("/config", s.handleUpdateConfig)
			r.Post("/reprocess", s.handleReprocess)
			r.Get("/pages", s.handleListPages)
			r.Get("/pages/{pageNum}", s.handleGetPage)
			r.Get("/export", s.handleExport)
		})
	})

	r.Route("/api/templates", func(r chi.Router) {
		r.Get("/", s.handleListTemplates)
		r.Post("/", s.handleCreateTemplate)
		r.Route("/{templateID}", func(r chi.Router) {
			r.Get("/", s.handleGetTemplate)
			r.Put("/", s.handleUpdateTemplate)
			r.Delete("/", s.handleDeleteTemplate)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
