package routehandlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meinedokbox/dokbox/auth"
	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/upload"
	"github.com/meinedokbox/dokbox/webutil"
)

const paramID = "id"

// domainError maps the domain sentinels onto HTTP errors. Anything else is
// returned unchanged and ends up as a 500 in webutil.MakeHandler.
func domainError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrInvalidFormat):
		return webutil.ErrBadRequestWrap("Invalid email address format", err)
	case errors.Is(err, auth.ErrWeakPassword):
		return webutil.ErrBadRequestWrap(auth.ErrWeakPassword.Error(), err)
	case errors.Is(err, upload.ErrEmptyBatch), errors.Is(err, upload.ErrTooManyFiles), errors.Is(err, upload.ErrEmptyFile):
		return webutil.ErrBadRequestWrap(err.Error(), err)
	case errors.Is(err, models.ErrDuplicateEntry):
		return webutil.ErrConflictWrap("Entry already exists", err)
	case errors.Is(err, models.ErrBatchInProgress):
		return webutil.ErrConflictWrap("Another upload is still waiting for a decision", err)
	case errors.Is(err, models.ErrInvalidTransition):
		return webutil.ErrConflictWrap("This action is not possible in the current upload state", err)
	case errors.Is(err, models.ErrNotFound):
		return webutil.ErrNotFoundWrap("Resource not found", err)
	case errors.Is(err, models.ErrUnauthorized):
		return webutil.NewHTTPErrorWrap(http.StatusUnauthorized, "Unauthorized", err)
	case errors.Is(err, models.ErrDuplicateCheckFailed):
		return webutil.ErrServiceUnavailableWrap("Duplicate check failed, nothing was uploaded", err)
	case errors.Is(err, models.ErrUploadFailed):
		return webutil.ErrBadGatewayWrap("Upload failed", err)
	}
	return err
}

// ownerID returns the authenticated user. Routes using it sit behind the
// session middleware, so an empty value is a wiring bug.
func ownerID(r *http.Request) (string, error) {
	id := webutil.UserIDFromContext(r.Context())
	if id == "" {
		return "", webutil.ErrUnauthorized("Not logged in")
	}
	return id, nil
}

func pathUUID(r *http.Request, name string) (string, error) {
	id := chi.URLParam(r, name)
	if _, err := uuid.Parse(id); err != nil {
		return "", webutil.ErrBadRequest(fmt.Sprintf("Invalid %s format in path", name))
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return webutil.ErrBadRequest("Invalid request payload: " + err.Error())
	}
	return nil
}
