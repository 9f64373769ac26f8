package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"docqa/internal/middleware"
	"docqa/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Handler handles HTTP requests
type Handler struct {
	rag       QAService
	docs      DocumentStore
	db        Pinger
	uploadDir string
	maxUpload int64
	log       zerolog.Logger
}

// NewHandler creates the HTTP handlers. db may be nil; health then skips the database check.
func NewHandler(
	rag QAService,
	docs DocumentStore,
	db Pinger,
	uploadDir string,
	maxUploadBytes int64,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		rag:       rag,
		docs:      docs,
		db:        db,
		uploadDir: uploadDir,
		maxUpload: maxUploadBytes,
		log:       log,
	}
}

// askRequest is the body of POST /api/ask
type askRequest struct {
	DocumentID        int64  `json:"document_id"`
	Question          string `json:"question"`
	UseSemanticSearch *bool  `json:"use_semantic_search"`
}

// Root lists the endpoints and features
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"endpoints": map[string]string{
			"upload":    "/api/upload",
			"ask":       "/api/ask",
			"documents": "/api/documents",
			"stats":     "/api/stats",
			"delete":    "/api/delete/{document_id}",
			"health":    "/api/health",
			"metrics":   "/metrics",
			"events":    "/ws/events",
		},
		"features": map[string]interface{}{
			"semantic_search":   true,
			"vector_store":      true,
			"document_chunking": true,
			"ai_powered_qa":     true,
			"backends":          h.rag.BackendNames(),
		},
	})
}

// Upload stores a PDF, registers it and indexes it.
// Indexing failures are reported in the response but do not fail the upload.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, header, err := r.FormFile("document")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d byte upload limit", h.maxUpload))
			return
		}
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".pdf" {
		writeError(w, http.StatusBadRequest, "Only PDF files are supported")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	}

	path, err := h.saveUpload(file)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		h.log.Error().Err(err).Str("request_id", middleware.GetRequestID(ctx)).Msg("Failed to store upload")
		writeError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}

	doc, err := h.docs.Create(ctx, &models.DocumentCreate{Title: title, FilePath: path})
	if err != nil {
		os.Remove(path)
		writeServiceError(w, err)
		return
	}

	indexed := h.rag.Ingest(ctx, doc.ID, doc.FilePath, doc.Title)

	message := "Document uploaded and indexed successfully"
	if !indexed {
		message = "Document uploaded but could not be indexed for semantic search"
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  message,
		"document": doc,
		"indexed":  indexed,
	})
}

// saveUpload copies the upload under a random name so client file names never reach the filesystem
func (h *Handler) saveUpload(src io.Reader) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(h.uploadDir, uuid.NewString()+".pdf")
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close file: %w", err)
	}
	return path, nil
}

// Ask answers a question about a document
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	useSemantic := true
	if req.UseSemanticSearch != nil {
		useSemantic = *req.UseSemanticSearch
	}

	record, err := h.rag.Ask(r.Context(), req.DocumentID, req.Question, useSemantic)
	if err != nil {
		middleware.AddSpanError(r.Context(), err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// Stats describes the index, or one document when {id} is present
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var documentID *int64
	if _, ok := mux.Vars(r)["id"]; ok {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		documentID = &id
	}

	writeJSON(w, http.StatusOK, h.rag.Stats(r.Context(), documentID))
}

// Delete removes a document's index entries, its row and its stored file
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	indexRemoved := h.rag.Delete(ctx, id)

	documentRemoved := false
	doc, err := h.docs.GetByID(ctx, id)
	switch {
	case err == nil:
		if err := h.docs.Delete(ctx, id); err != nil {
			writeServiceError(w, err)
			return
		}
		documentRemoved = true
		if err := os.Remove(doc.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.log.Warn().Err(err).Int64("document_id", id).Msg("Failed to remove stored file")
		}
	case !errors.Is(err, models.ErrNotFound):
		writeServiceError(w, err)
		return
	}

	if !indexRemoved && !documentRemoved {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Document %d not found", id))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":          fmt.Sprintf("Document %d deleted", id),
		"document_id":      id,
		"index_removed":    indexRemoved,
		"document_removed": documentRemoved,
	})
}

// ListDocuments returns stored documents, newest first
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0

	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}

	documents, err := h.docs.List(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if documents == nil {
		documents = []*models.Document{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": documents,
		"limit":     limit,
		"offset":    offset,
	})
}

// GetDocument returns one document
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	doc, err := h.docs.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// Health reports liveness and, when configured, database reachability
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{
		"status":   "ok",
		"backends": h.rag.BackendNames(),
	}

	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = err.Error()
		} else {
			body["database"] = "ok"
		}
	}

	writeJSON(w, status, body)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Document id must be a positive integer")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps pipeline error kinds to HTTP status codes
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
