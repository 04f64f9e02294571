// Package httpapi exposes the workbench over REST plus a server-sent event
// stream for live progress.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/subtitle-studio/workbench/internal/config"
	"github.com/subtitle-studio/workbench/internal/engine"
	"github.com/subtitle-studio/workbench/internal/persistence"
	"github.com/subtitle-studio/workbench/internal/project"
	"github.com/subtitle-studio/workbench/internal/subtitle"
	"github.com/subtitle-studio/workbench/internal/tm"
	"github.com/subtitle-studio/workbench/internal/workspace"
)

// libraryStore is the slice of persistence the API needs for the named save
// library. Nil means in-memory only mode.
type libraryStore interface {
	SaveToLibrary(ctx context.Context, name string, file subtitle.File) error
	LoadFromLibrary(ctx context.Context, name string) (subtitle.File, bool, error)
	ListLibrary(ctx context.Context) ([]persistence.LibraryEntry, error)
	DeleteFromLibrary(ctx context.Context, name string) error
}

type Server struct {
	ws       *workspace.Workspace
	engine   *engine.Engine
	settings *config.SettingsStore
	memory   *tm.Memory
	project  *project.Builder
	library  libraryStore

	router *chi.Mux
	server *http.Server
}

type Option func(*Server)

// WithLibrary enables the named save library backed by durable storage.
func WithLibrary(store libraryStore) Option {
	return func(s *Server) {
		s.library = store
	}
}

func NewServer(
	ws *workspace.Workspace,
	eng *engine.Engine,
	settings *config.SettingsStore,
	memory *tm.Memory,
	builder *project.Builder,
	opts ...Option,
) *Server {
	s := &Server{
		ws:       ws,
		engine:   eng,
		settings: settings,
		memory:   memory,
		project:  builder,
		router:   chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.RealIP)
	// The dev UI runs from another origin.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/files", s.handleImportFile)
		r.Get("/files", s.handleListFiles)
		r.Delete("/files/{fileID}", s.handleDeleteFile)
		r.Get("/files/{fileID}/export", s.handleExportFile)
		r.Put("/files/{fileID}/cues/{cueID}", s.handleEditCue)

		r.Post("/queue/start", s.handleQueueStart)
		r.Post("/queue/pause", s.handleQueuePause)
		r.Post("/queue/retry", s.handleQueueRetry)
		r.Post("/queue/try-now", s.handleQueueTryNow)
		r.Get("/queue/status", s.handleQueueStatus)
		r.Get("/queue/stream", s.handleQueueStream)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
		r.Post("/settings/preset", s.handleApplyPreset)

		r.Post("/tm", s.handleSaveMemory)

		r.Get("/project", s.handleGetProject)
		r.Put("/project", s.handleUpdateProject)

		r.Get("/library", s.handleListLibrary)
		r.Post("/library", s.handleSaveToLibrary)
		r.Post("/library/{name}/load", s.handleLoadFromLibrary)
		r.Delete("/library/{name}", s.handleDeleteFromLibrary)
	})
}
