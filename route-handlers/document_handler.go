package routehandlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/meinedokbox/dokbox/duplicates"
	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/webutil"
)

type documentService interface {
	List(ctx context.Context, ownerID, query string, category models.Category) ([]models.Document, error)
	Get(ctx context.Context, ownerID, documentID string) (*models.Document, error)
	Open(ctx context.Context, ownerID, documentID string) (*models.Document, io.ReadCloser, error)
	Delete(ctx context.Context, ownerID, documentID string) error
}

type DocumentHandler struct {
	docs           documentService
	detector       duplicates.Detector
	maxUploadBytes int64
}

func NewDocumentHandler(docs documentService, detector duplicates.Detector, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{docs: docs, detector: detector, maxUploadBytes: maxUploadBytes}
}

type duplicateCheckResponse struct {
	Filename    string                `json:"filename"`
	ContentHash string                `json:"content_hash"`
	Duplicate   *models.DuplicateInfo `json:"duplicate"`
}

// HandleDuplicateCheck reports whether a single file matches a stored
// document. It never stores anything.
// Route: POST /api/documents/duplicate-check
func (h *DocumentHandler) HandleDuplicateCheck(w http.ResponseWriter, r *http.Request) error {
	owner, err := ownerID(r)
	if err != nil {
		return err
	}
	candidates, err := readCandidates(w, r, h.maxUploadBytes, 1, "file")
	if err != nil {
		return err
	}
	if len(candidates) != 1 {
		return webutil.ErrBadRequest("Expected exactly one file in field 'file'")
	}

	c := &candidates[0]
	dup, err := h.detector.Lookup(r.Context(), owner, c)
	if err != nil {
		return domainError(fmt.Errorf("%w: %w", models.ErrDuplicateCheckFailed, err))
	}
	webutil.RespondWithJSON(w, http.StatusOK, duplicateCheckResponse{
		Filename:    c.Filename,
		ContentHash: c.ContentHash,
		Duplicate:   dup,
	})
	return nil
}

// Route: GET /api/documents?q=&category=
func (h *DocumentHandler) HandleList(w http.ResponseWriter, r *http.Request) error {
	owner, err := ownerID(r)
	if err != nil {
		return err
	}
	var category models.Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		category = models.Category(raw)
		if !category.Valid() {
			return webutil.ErrBadRequest("Unknown category: " + raw)
		}
	}

	docs, err := h.docs.List(r.Context(), owner, r.URL.Query().Get("q"), category)
	if err != nil {
		return domainError(err)
	}
	if docs == nil {
		docs = []models.Document{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, docs)
	return nil
}

// Route: GET /api/documents/{id}
func (h *DocumentHandler) HandleGet(w http.ResponseWriter, r *http.Request) error {
	owner, err := ownerID(r)
	if err != nil {
		return err
	}
	id, err := pathUUID(r, paramID)
	if err != nil {
		return err
	}
	doc, err := h.docs.Get(r.Context(), owner, id)
	if err != nil {
		return domainError(err)
	}
	webutil.RespondWithJSON(w, http.StatusOK, doc)
	return nil
}

// Route: GET /api/documents/{id}/download
func (h *DocumentHandler) HandleDownload(w http.ResponseWriter, r *http.Request) error {
	owner, err := ownerID(r)
	if err != nil {
		return err
	}
	id, err := pathUUID(r, paramID)
	if err != nil {
		return err
	}
	doc, rc, err := h.docs.Open(r.Context(), owner, id)
	if err != nil {
		return domainError(err)
	}
	defer rc.Close()

	contentType := doc.ContentType
	if contentType == "" {
		contentType = webutil.ContentTypeOctetStream
	}
	w.Header().Set(webutil.HeaderContentType, contentType)
	w.Header().Set(webutil.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	if doc.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("document download interrupted", "document_id", id, "error", err)
	}
	return nil
}

// Route: DELETE /api/documents/{id}
func (h *DocumentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) error {
	owner, err := ownerID(r)
	if err != nil {
		return err
	}
	id, err := pathUUID(r, paramID)
	if err != nil {
		return err
	}
	if err := h.docs.Delete(r.Context(), owner, id); err != nil {
		return domainError(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type categoryResponse struct {
	Key   models.Category `json:"key"`
	Icon  string          `json:"icon"`
	Color string          `json:"color"`
}

// HandleCategories lists the fixed category set with its display hints.
// Route: GET /api/categories
func HandleCategories(w http.ResponseWriter, r *http.Request) error {
	cats := models.Categories()
	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryResponse{Key: c, Icon: c.Icon(), Color: c.Color()})
	}
	webutil.RespondWithJSON(w, http.StatusOK, out)
	return nil
}
