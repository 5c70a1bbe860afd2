package routehandlers

import (
	"context"
	"net/http"

	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/webutil"
)

type whitelistService interface {
	List(ctx context.Context, ownerID string) ([]models.WhitelistEntry, error)
	Add(ctx context.Context, ownerID, email string) (*models.WhitelistEntry, error)
	Remove(ctx context.Context, ownerID, entryID string) error
}

// WhitelistHandler manages the senders allowed to mail documents in.
type WhitelistHandler struct {
	gate whitelistService
}

func NewWhitelistHandler(gate whitelistService) *WhitelistHandler {
	return &WhitelistHandler{gate: gate}
}

// Route: GET /api/whitelist
func (h *WhitelistHandler) HandleList(w http.ResponseWriter, r *http.Request) error {
	owner, err := ownerID(r)
	if err != nil {
		return err
	}
	entries, err := h.gate.List(r.Context(), owner)
	if err != nil {
		return domainError(err)
	}
	if entries == nil {
		entries = []models.WhitelistEntry{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, entries)
	return nil
}

// Route: POST /api/whitelist
func (h *WhitelistHandler) HandleAdd(w http.ResponseWriter, r *http.Request) error {
	owner, err := ownerID(r)
	if err != nil {
		return err
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	entry, err := h.gate.Add(r.Context(), owner, req.Email)
	if err != nil {
		return domainError(err)
	}
	webutil.RespondWithJSON(w, http.StatusCreated, entry)
	return nil
}

// Route: DELETE /api/whitelist/{id}
func (h *WhitelistHandler) HandleRemove(w http.ResponseWriter, r *http.Request) error {
	owner, err := ownerID(r)
	if err != nil {
		return err
	}
	entryID, err := pathUUID(r, paramID)
	if err != nil {
		return err
	}
	if err := h.gate.Remove(r.Context(), owner, entryID); err != nil {
		return domainError(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
