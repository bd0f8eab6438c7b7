// Package server implements the HTTP API of cbz-edit: library browsing,
// ComicInfo editing, background batches and a live status stream.
package server

import (
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/banux/cbz-edit/internal/batch"
	"github.com/banux/cbz-edit/internal/catalog"
	"github.com/banux/cbz-edit/internal/komga"
	"github.com/banux/cbz-edit/internal/progress"
)

// Options holds optional configuration for the Server.
type Options struct {
	// APIKey is required on every endpoint except /health.
	// If empty, authentication is disabled (useful for development).
	APIKey string

	// StaticFS is the filesystem containing the frontend static assets.
	// If nil, the frontend is not served.
	StaticFS fs.FS

	// Progress receives batch status messages and feeds /api/status.
	// If nil, the server creates its own hub.
	Progress *progress.Hub

	// Applier runs rewrites. If nil, one is built that reports to Progress
	// and journals to the library when it implements catalog.Journal.
	Applier *batch.Applier

	// Syncer enables the Komga sync endpoint. Optional.
	Syncer *komga.Syncer

	Logger zerolog.Logger
}

// Server is the HTTP server of cbz-edit.
type Server struct {
	router  *mux.Router
	library catalog.Library
	journal catalog.Journal // optional; nil if backend keeps no history
	applier *batch.Applier
	hub     *progress.Hub
	syncer  *komga.Syncer
	jobs    *jobStore
	log     zerolog.Logger
	opts    Options
}

// New creates and configures a new Server over lib.
// If lib also implements catalog.Journal, the history endpoint is enabled.
func New(lib catalog.Library, opts Options) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		library: lib,
		hub:     opts.Progress,
		syncer:  opts.Syncer,
		jobs:    newJobStore(),
		log:     opts.Logger.With().Str("component", "server").Logger(),
		opts:    opts,
	}
	if j, ok := lib.(catalog.Journal); ok {
		s.journal = j
	}
	if s.hub == nil {
		s.hub = progress.NewHub(16)
	}
	s.applier = opts.Applier
	if s.applier == nil {
		s.applier = batch.New(batch.Options{
			Sink:    s.hub,
			Journal: s.journal,
			Logger:  opts.Logger,
		})
	}
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler, delegating to the mux router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Wait blocks until every background job has finished.
func (s *Server) Wait() { s.jobs.wait() }

// registerRoutes sets up all endpoint routes.
func (s *Server) registerRoutes() {
	r := s.router
	r.Use(requestID, accessLog(s.log))

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	protected := r.NewRoute().Subrouter()
	protected.Use(authMiddleware(s.opts.APIKey))

	protected.HandleFunc("/api/series", s.handleSeriesList).Methods(http.MethodGet)
	protected.HandleFunc("/api/series/{name}", s.handleSeries).Methods(http.MethodGet)

	// Background batches over a whole series.
	protected.HandleFunc("/api/series/{name}/apply", s.handleApply).Methods(http.MethodPost)
	protected.HandleFunc("/api/series/{name}/derive", s.handleDerive).Methods(http.MethodPost)
	protected.HandleFunc("/api/series/{name}/volume", s.handleVolume).Methods(http.MethodPost)
	protected.HandleFunc("/api/series/{name}/komga", s.handleKomgaSync).Methods(http.MethodPost)

	protected.HandleFunc("/api/jobs", s.handleJobs).Methods(http.MethodGet)
	protected.HandleFunc("/api/jobs/{id}", s.handleJob).Methods(http.MethodGet)

	// Single chapter, addressed by archive path.
	protected.HandleFunc("/api/comicinfo", s.handleGetComicInfo).Methods(http.MethodGet)
	protected.HandleFunc("/api/comicinfo", s.handlePutComicInfo).Methods(http.MethodPut)
	protected.HandleFunc("/api/cover", s.handleCover).Methods(http.MethodGet)

	protected.HandleFunc("/api/refresh", s.handleRefresh).Methods(http.MethodPost)
	protected.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)

	protected.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	protected.HandleFunc("/api/status/ws", s.handleStatusWS).Methods(http.MethodGet)

	// OPDS catalog for reader apps, which authenticate with Basic auth.
	protected.HandleFunc("/opds", s.handleOPDSRoot).Methods(http.MethodGet)
	protected.HandleFunc("/opds/series/{name}", s.handleOPDSSeries).Methods(http.MethodGet)
	protected.HandleFunc("/opds/download", s.handleDownload).Methods(http.MethodGet)

	// When StaticFS is nil (e.g. in tests), a catch-all 404 handler is
	// registered so that the auth middleware still runs for all paths.
	if s.opts.StaticFS != nil {
		protected.PathPrefix("/").Handler(http.FileServer(http.FS(s.opts.StaticFS)))
	} else {
		protected.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "not found")
		})
	}
}
