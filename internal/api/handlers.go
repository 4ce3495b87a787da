package api

import (
	"encoding/json"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"hlsfarm/internal/catalog"
	"hlsfarm/internal/logging"
)

const presignExpiry = 15 * time.Minute

// uploadExtensions is the set of source containers accepted for direct
// upload, keyed by lowercase extension without the dot.
var uploadExtensions = map[string]bool{
	"mp4": true,
	"mov": true,
	"avi": true,
	"mkv": true,
}

type page[T any] struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Items []T   `json:"items"`
}

type uploadRequest struct {
	Filename string `json:"filename"`
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
	ObjectKey string `json:"object_key"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	pageNum := pageParam(r)
	items, total, err := s.catalog.ListVideos(r.Context(), pageNum, s.cfg.API.PageSize)
	if err != nil {
		s.internalError(w, "list videos", err)
		return
	}
	s.writeJSON(w, http.StatusOK, page[catalog.Video]{Total: total, Page: pageNum, Items: nonNil(items)})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	pageNum := pageParam(r)
	items, total, err := s.catalog.ListJobs(r.Context(), pageNum, s.cfg.API.PageSize)
	if err != nil {
		s.internalError(w, "list jobs", err)
		return
	}
	s.writeJSON(w, http.StatusOK, page[catalog.EncodingJob]{Total: total, Page: pageNum, Items: nonNil(items)})
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	pageNum := pageParam(r)
	items, total, err := s.catalog.ListWorkers(r.Context(), pageNum, s.cfg.API.PageSize)
	if err != nil {
		s.internalError(w, "list workers", err)
		return
	}
	s.writeJSON(w, http.StatusOK, page[catalog.Worker]{Total: total, Page: pageNum, Items: nonNil(items)})
}

// handleCreateUpload validates the requested filename and answers with a
// presigned PUT target under a fresh collision-free key.
func (s *Server) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(req.Filename), "."))
	if req.Filename == "" || !uploadExtensions[ext] {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unsupported file type"})
		return
	}

	key := strings.TrimSuffix(s.cfg.Dispatcher.UploadPrefix, "/") + "/" + uuid.NewString() + "." + ext
	url, err := s.presigner.PresignPut(r.Context(), s.cfg.S3.UploadBucket, key, presignExpiry)
	if err != nil {
		s.internalError(w, "presign upload", err)
		return
	}
	s.writeJSON(w, http.StatusOK, uploadResponse{UploadURL: url, ObjectKey: key})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("response encode failed", logging.Error(err))
	}
}

func (s *Server) internalError(w http.ResponseWriter, operation string, err error) {
	s.log.Error(operation+" failed", logging.Error(err))
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// nonNil keeps empty listings rendering as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
