package routehandlers

import (
	"context"
	"net/http"

	"github.com/meinedokbox/dokbox/webutil"
)

type inboundService interface {
	Current(ctx context.Context, ownerID string) (string, error)
	Regenerate(ctx context.Context, ownerID string) (string, error)
}

type InboundHandler struct {
	inbound inboundService
}

func NewInboundHandler(inbound inboundService) *InboundHandler {
	return &InboundHandler{inbound: inbound}
}

type inboundAddressResponse struct {
	Address string `json:"address"`
}

// Route: GET /api/inbound-address
func (h *InboundHandler) HandleGet(w http.ResponseWriter, r *http.Request) error {
	owner, err := ownerID(r)
	if err != nil {
		return err
	}
	addr, err := h.inbound.Current(r.Context(), owner)
	if err != nil {
		return domainError(err)
	}
	webutil.RespondWithJSON(w, http.StatusOK, inboundAddressResponse{Address: addr})
	return nil
}

// HandleRegenerate replaces the address. The old one stops resolving as
// soon as this returns.
// Route: POST /api/inbound-address/regenerate
func (h *InboundHandler) HandleRegenerate(w http.ResponseWriter, r *http.Request) error {
	owner, err := ownerID(r)
	if err != nil {
		return err
	}
	addr, err := h.inbound.Regenerate(r.Context(), owner)
	if err != nil {
		return domainError(err)
	}
	webutil.RespondWithJSON(w, http.StatusOK, inboundAddressResponse{Address: addr})
	return nil
}
