package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/docuchat/internal/apperr"
	"github.com/hyperjump/docuchat/internal/blob"
	"github.com/hyperjump/docuchat/internal/catalog"
	"github.com/hyperjump/docuchat/internal/config"
	"github.com/hyperjump/docuchat/internal/extract"
	"github.com/hyperjump/docuchat/internal/fileid"
	"github.com/hyperjump/docuchat/internal/ingest"
	"github.com/hyperjump/docuchat/internal/models"
)

const multipartMemory = 32 << 20

func userID(r *http.Request) (string, error) {
	id, err := fileid.CleanOwner(r.URL.Query().Get("user_id"))
	if err != nil {
		return "", apperr.New(apperr.KindClientInput, "request", err)
	}
	return id, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	owner, err := userID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if s.config.Server.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.respondError(w, apperr.New(apperr.KindClientInput, "upload", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	f, hdr, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, apperr.Newf(apperr.KindClientInput, "upload", "multipart field \"file\" is required"))
		return
	}
	defer f.Close()

	s.logger.Debug("upload request", zap.String("user_id", owner), zap.String("filename", hdr.Filename), zap.Int64("size", hdr.Size))
	res, err := s.deps.Documents.Ingest(r.Context(), owner, ingest.Upload{
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Body:        f,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	resp := models.UploadResponse{
		Status:     "success",
		Chunks:     res.Chunks,
		Searchable: res.Searchable,
		Warning:    res.Warning,
	}
	if res.File != nil {
		resp.FileID = res.File.ID
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	owner, err := userID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	files, err := s.deps.Documents.Files(r.Context(), owner)
	if err != nil {
		s.respondError(w, err)
		return
	}
	out := make([]models.FileEntry, 0, len(files))
	for _, f := range files {
		out = append(out, models.FileEntry{URL: f.URL, Name: f.Name, Type: f.Type})
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	owner, err := userID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("filename"))
	if name == "" {
		s.respondError(w, apperr.Newf(apperr.KindClientInput, "delete file", "filename is required"))
		return
	}
	s.logger.Debug("delete file request", zap.String("user_id", owner), zap.String("filename", name))
	if err := s.deps.Documents.Remove(r.Context(), owner, name); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.StatusResponse{Status: "success"})
}

func (s *Server) handleDeleteAllFiles(w http.ResponseWriter, r *http.Request) {
	owner, err := userID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.logger.Debug("delete all files request", zap.String("user_id", owner))
	if err := s.deps.Documents.RemoveAll(r.Context(), owner); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.StatusResponse{Status: "success"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, apperr.Newf(apperr.KindClientInput, "search", "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, apperr.New(apperr.KindClientInput, "search", err))
		return
	}
	s.logger.Debug("search request", zap.String("user_id", req.UserID), zap.String("conversation_id", req.ConversationID))
	ans, err := s.deps.Chat.Query(r.Context(), req.UserID, req.ConversationID, req.Query)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.SearchResponse{
		SessionID: ans.ConversationID,
		Type:      "ai",
		Data:      models.MessageData{Content: ans.Content},
	})
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "user_id")
	name := chi.URLParam(r, "filename")
	if r.URL.RawPath != "" {
		owner, _ = url.PathUnescape(owner)
		name, _ = url.PathUnescape(name)
	}
	if _, err := fileid.CleanOwner(owner); err != nil {
		s.respondError(w, apperr.New(apperr.KindClientInput, "blob", err))
		return
	}
	if name == "" || fileid.CleanName(name) != name {
		s.respondError(w, apperr.Newf(apperr.KindClientInput, "blob", "invalid file name %q", name))
		return
	}
	rc, err := s.deps.Blobs.Open(r.Context(), owner, name)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			err = apperr.New(apperr.KindNotFound, "blob", err)
		} else {
			err = apperr.New(apperr.KindStorage, "blob", err)
		}
		s.respondError(w, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", extract.ContentTypeForName(name))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("blob copy interrupted", zap.String("user_id", owner), zap.String("filename", name), zap.Error(err))
	}
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, apperr.Newf(apperr.KindClientInput, "audit", "limit must be a positive integer"))
			return
		}
		limit = n
	}
	events, err := s.deps.Catalog.ListAudit(r.Context(), strings.TrimSpace(r.URL.Query().Get("user_id")), limit)
	if err != nil {
		s.respondError(w, apperr.New(apperr.KindStorage, "audit", err))
		return
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	s.respondJSON(w, http.StatusOK, events)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.Status(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// Status reports file, collection, vector and session counts, disk usage of local storage and
// the effective configuration.
func (s *Server) Status(ctx context.Context) (map[string]interface{}, error) {
	files, err := s.deps.Catalog.CountFiles(ctx)
	if err != nil {
		s.logger.Error("status: count files failed", zap.Error(err))
		return nil, apperr.New(apperr.KindStorage, "status", err)
	}
	stats, err := s.deps.Vectors.Stats(ctx)
	if err != nil {
		s.logger.Error("status: vector stats failed", zap.Error(err))
		return nil, apperr.New(apperr.KindIndexUnavailable, "status", err)
	}
	resp := map[string]interface{}{
		"files":       files,
		"collections": stats.Collections,
		"vectors":     stats.Vectors,
		"sessions":    s.deps.Sessions.Len(),
	}

	cfg := s.config
	resp["config"] = map[string]interface{}{
		"vector_backend":       cfg.Vector.Backend,
		"keyword_enabled":      cfg.Keyword.Enabled,
		"embedding_provider":   cfg.Embedding.Provider,
		"embedding_model":      cfg.Embedding.Model,
		"embedding_dimensions": cfg.Embedding.Dimensions,
		"generation_model":     cfg.Generation.Model,
		"chunk_size":           cfg.Chunking.ChunkSize,
		"chunk_overlap":        cfg.Chunking.ChunkOverlap,
		"retrieval_strategy":   cfg.Retrieval.Strategy,
		"retrieval_k":          cfg.Retrieval.K,
		"formats":              cfg.Extraction.Formats,
		"database_path":        cfg.Storage.DatabasePath,
		"blob_url":             cfg.Storage.BlobURL,
	}
	if diskBytes, err := catalog.DiskUsageBytes(localPaths(cfg)...); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	return resp, nil
}

// localPaths lists the on-disk locations whose size /status reports.
func localPaths(cfg *config.Config) []string {
	paths := []string{cfg.Storage.DatabasePath}
	if cfg.Vector.Backend == "sqlite" {
		paths = append(paths, cfg.Vector.Path)
	}
	if cfg.Vector.SnapshotPath != "" {
		paths = append(paths, cfg.Vector.SnapshotPath)
	}
	if cfg.Keyword.Enabled {
		paths = append(paths, cfg.Keyword.IndexPath)
	}
	if p, ok := strings.CutPrefix(cfg.Storage.BlobURL, "file://"); ok {
		paths = append(paths, p)
	}
	return paths
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.String("kind", apperr.KindOf(err).String()), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	s.respondJSON(w, status, models.StatusResponse{Status: "error", Message: err.Error()})
}
