package routehandlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/upload"
	"github.com/meinedokbox/dokbox/webutil"
)

type uploadManager interface {
	Begin(ctx context.Context, ownerID string, candidates []models.UploadCandidate) (upload.Snapshot, error)
	Confirm(ctx context.Context, ownerID, batchID string) (upload.Snapshot, error)
	Cancel(ownerID, batchID string) (upload.Snapshot, error)
	Retry(ctx context.Context, ownerID, batchID string) (upload.Snapshot, error)
	Get(ownerID, batchID string) (upload.Snapshot, error)
}

// UploadHandler exposes the upload confirmation flow. Every response that
// concerns an existing batch carries its snapshot, errors included.
type UploadHandler struct {
	uploads      uploadManager
	maxFileBytes int64
	maxFiles     int
}

func NewUploadHandler(uploads uploadManager, maxFileBytes int64, maxFiles int) *UploadHandler {
	return &UploadHandler{uploads: uploads, maxFileBytes: maxFileBytes, maxFiles: maxFiles}
}

type batchErrorResponse struct {
	Error string          `json:"error"`
	Batch upload.Snapshot `json:"batch"`
}

// HandleBegin checks the posted files for duplicates and uploads them when
// none matched. With matches the batch waits in awaiting_user_decision.
// Route: POST /api/uploads
func (h *UploadHandler) HandleBegin(w http.ResponseWriter, r *http.Request) error {
	owner, err := ownerID(r)
	if err != nil {
		return err
	}
	candidates, err := readCandidates(w, r, h.maxFileBytes, h.maxFiles, "files[]", "files")
	if err != nil {
		return err
	}

	snap, err := h.uploads.Begin(r.Context(), owner, candidates)
	status := http.StatusOK
	if snap.State == upload.StateDone {
		status = http.StatusCreated
	}
	return respondBatch(w, status, snap, err)
}

// Route: GET /api/uploads/{id}
func (h *UploadHandler) HandleGet(w http.ResponseWriter, r *http.Request) error {
	owner, batchID, err := ownerAndBatch(r)
	if err != nil {
		return err
	}
	snap, err := h.uploads.Get(owner, batchID)
	return respondBatch(w, http.StatusOK, snap, err)
}

// Route: POST /api/uploads/{id}/confirm
func (h *UploadHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) error {
	owner, batchID, err := ownerAndBatch(r)
	if err != nil {
		return err
	}
	snap, err := h.uploads.Confirm(r.Context(), owner, batchID)
	return respondBatch(w, http.StatusOK, snap, err)
}

// Route: POST /api/uploads/{id}/cancel
func (h *UploadHandler) HandleCancel(w http.ResponseWriter, r *http.Request) error {
	owner, batchID, err := ownerAndBatch(r)
	if err != nil {
		return err
	}
	snap, err := h.uploads.Cancel(owner, batchID)
	return respondBatch(w, http.StatusOK, snap, err)
}

// Route: POST /api/uploads/{id}/retry
func (h *UploadHandler) HandleRetry(w http.ResponseWriter, r *http.Request) error {
	owner, batchID, err := ownerAndBatch(r)
	if err != nil {
		return err
	}
	snap, err := h.uploads.Retry(r.Context(), owner, batchID)
	return respondBatch(w, http.StatusOK, snap, err)
}

func ownerAndBatch(r *http.Request) (string, string, error) {
	owner, err := ownerID(r)
	if err != nil {
		return "", "", err
	}
	batchID, err := pathUUID(r, paramID)
	if err != nil {
		return "", "", err
	}
	return owner, batchID, nil
}

func respondBatch(w http.ResponseWriter, status int, snap upload.Snapshot, err error) error {
	if err == nil {
		webutil.RespondWithJSON(w, status, snap)
		return nil
	}
	mapped := domainError(err)
	var httpErr *webutil.HTTPError
	if snap.ID == "" || !errors.As(mapped, &httpErr) {
		return mapped
	}
	webutil.RespondWithJSON(w, httpErr.Code, batchErrorResponse{Error: httpErr.Message, Batch: snap})
	return nil
}
