package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hyperjump/compendium/internal/apperr"
	"github.com/hyperjump/compendium/internal/config"
	"github.com/hyperjump/compendium/internal/extract"
	"github.com/hyperjump/compendium/internal/keyword"
	"github.com/hyperjump/compendium/internal/models"
	"github.com/hyperjump/compendium/internal/storage"
	"go.uber.org/zap"
)

// Response is the envelope of every API response.
type Response struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, "Server Up", nil)
}

// UploadResult describes a file saved by the upload endpoint.
type UploadResult struct {
	SourceFilePath string `json:"source_file_path"`
	Filename       string `json:"filename"`
	Size           int64  `json:"size"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
			return
		}
		s.respondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !extract.NewExtractor().Supports(ext) {
		s.respondError(w, http.StatusBadRequest, "unsupported file type "+strconv.Quote(ext))
		return
	}
	if err := os.MkdirAll(s.config.Storage.UploadDir, 0755); err != nil {
		s.fail(w, "upload", err)
		return
	}
	dst := filepath.Join(s.config.Storage.UploadDir, uuid.NewString()+ext)
	out, err := os.Create(dst)
	if err != nil {
		s.fail(w, "upload", err)
		return
	}
	n, err := io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		s.fail(w, "upload", err)
		return
	}
	s.logger.Debug("file uploaded", zap.String("filename", header.Filename), zap.String("path", dst), zap.Int64("size", n))
	s.respond(w, http.StatusCreated, "Success", UploadResult{SourceFilePath: dst, Filename: header.Filename, Size: n})
}

func (s *Server) handleCreateEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req models.EmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("create embeddings request",
		zap.String("doc_id", req.DocID),
		zap.String("source_file_path", req.SourceFilePath),
		zap.Int("content_bytes", len(req.Content)))
	res, err := s.indexer.Ingest(r.Context(), req)
	if err != nil {
		s.fail(w, "create embeddings", err)
		return
	}
	s.respond(w, http.StatusCreated, "Success", res)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q models.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	debug, _ := strconv.ParseBool(r.URL.Query().Get("debug"))
	s.logger.Debug("query request", zap.String("doc_id", q.DocID), zap.Bool("debug", debug))
	answer, err := s.engine.Answer(r.Context(), q, debug)
	if err != nil {
		s.fail(w, "query", err)
		return
	}
	s.respond(w, http.StatusOK, "Success", answer)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	limit, err := intParam(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxListLimit)
	docs, err := s.storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.fail(w, "list documents", err)
		return
	}
	if docs == nil {
		docs = []*models.DocumentSummary{}
	}
	s.respond(w, http.StatusOK, "Success", docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	set, err := s.storage.GetEmbeddingSet(r.Context(), id)
	if err != nil {
		s.fail(w, "get document", err)
		return
	}
	s.respond(w, http.StatusOK, "Success", set.WithoutEmbeddings())
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("doc_id", id))
	if err := s.indexer.DeleteDocument(r.Context(), id); err != nil {
		s.fail(w, "delete document", err)
		return
	}
	s.respond(w, http.StatusOK, "Success", map[string]string{"doc_id": id, "status": "deleted"})
}

func (s *Server) handleSearchDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, err := intParam(r, "limit", 10)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	snippet, err := intParam(r, "snippet", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "snippet must be an integer")
		return
	}
	hits, err := s.engine.SearchDocument(r.Context(), id, r.URL.Query().Get("q"), limit, snippet)
	if err != nil {
		s.fail(w, "search document", err)
		return
	}
	if hits == nil {
		hits = []*keyword.ChunkHit{}
	}
	s.respond(w, http.StatusOK, "Success", hits)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var dirs []string
	if s.watch != nil {
		dirs = s.watch.Directories()
	}
	st, err := CollectStatus(r.Context(), s.storage, s.keywordIndex, s.config, dirs)
	if err != nil {
		s.fail(w, "status", err)
		return
	}
	s.respond(w, http.StatusOK, "Success", st)
}

// CollectStatus gathers document counts, disk usage and configuration for
// the status endpoint and the status command. kw may be nil.
func CollectStatus(ctx context.Context, store storage.Storage, kw keyword.ChunkIndex, cfg *config.Config, watchDirs []string) (*models.Status, error) {
	docs, err := store.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	chunks, err := store.CountChunks(ctx)
	if err != nil {
		return nil, err
	}
	st := &models.Status{
		Documents:        docs,
		Chunks:           chunks,
		StorageBackend:   cfg.Storage.Backend,
		EmbeddingModel:   cfg.Embedding.Model,
		AnsweringModel:   cfg.Retrieval.AnsweringModel,
		WatchDirectories: watchDirs,
	}
	if cfg.Embedding.Provider == "mock" {
		st.EmbeddingModel = "mock"
	}
	if kw != nil {
		if n, err := kw.DocCount(); err == nil {
			st.KeywordChunks = n
		}
	}
	if n, err := storage.LocalFootprint(&cfg.Storage); err == nil {
		st.DiskUsageBytes = n
	}
	return st, nil
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respond(w, http.StatusOK, "Success", map[string][]string{"directories": s.watch.Directories()})
}

type watchRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.fail(w, "watch add directory", err)
		return
	}
	s.persistWatchDirectories()
	s.respond(w, http.StatusCreated, "Success", map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.fail(w, "watch remove directory", err)
		return
	}
	s.persistWatchDirectories()
	s.respond(w, http.StatusOK, "Success", map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// fail maps err to a status code and writes it. Server-side failures are logged.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respond(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{StatusCode: status, Message: message, Data: data})
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, message, nil)
}
