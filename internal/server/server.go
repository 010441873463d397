// Package server provides the HTTP API for docuchat.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/docuchat/internal/blob"
	"github.com/hyperjump/docuchat/internal/config"
	"github.com/hyperjump/docuchat/internal/ingest"
	"github.com/hyperjump/docuchat/internal/models"
	"github.com/hyperjump/docuchat/internal/vector"
	"github.com/hyperjump/docuchat/pkg/utils"
)

// Documents manages an owner's uploaded files.
type Documents interface {
	Ingest(ctx context.Context, ownerID string, up ingest.Upload) (*ingest.Result, error)
	Remove(ctx context.Context, ownerID, filename string) error
	RemoveAll(ctx context.Context, ownerID string) error
	Files(ctx context.Context, ownerID string) ([]models.FileRecord, error)
}

// Chat answers questions over an owner's documents.
type Chat interface {
	Query(ctx context.Context, ownerID, conversationID, text string) (*models.Answer, error)
}

// Blobs serves stored uploads.
type Blobs interface {
	Open(ctx context.Context, ownerID, filename string) (io.ReadCloser, error)
}

// Catalog is the part of the catalog read by /status and /audit.
type Catalog interface {
	CountFiles(ctx context.Context) (int64, error)
	ListAudit(ctx context.Context, ownerID string, limit int) ([]models.AuditEvent, error)
}

// VectorStats reports collection totals.
type VectorStats interface {
	Stats(ctx context.Context) (vector.Stats, error)
}

// Sessions reports the number of live conversations.
type Sessions interface {
	Len() int
}

// Deps are the components the handlers call.
type Deps struct {
	Documents Documents
	Chat      Chat
	Blobs     Blobs
	Catalog   Catalog
	Vectors   VectorStats
	Sessions  Sessions
}

// Server is the HTTP server for the docuchat API.
type Server struct {
	deps   Deps
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		deps:   deps,
		config: cfg,
		logger: utils.LoggerOrNop(logger),
	}
}

// Handler returns the router with all routes and middleware mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	timeout := s.config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	r.Use(middleware.Timeout(timeout))

	r.Post("/upload", s.handleUpload)
	r.Get("/get_file", s.handleListFiles)
	r.Delete("/delete_file", s.handleDeleteFile)
	r.Delete("/delete_all_files", s.handleDeleteAllFiles)
	r.Post("/search", s.handleSearch)
	r.Get("/blobs/{user_id}/{filename}", s.handleBlob)
	r.Get("/audit", s.handleAudit)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		}()
		next.ServeHTTP(ww, r)
	})
}

var _ Blobs = (*blob.AFSStore)(nil)
