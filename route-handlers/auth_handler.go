package routehandlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/meinedokbox/dokbox/auth"
	"github.com/meinedokbox/dokbox/datastore"
	"github.com/meinedokbox/dokbox/inbound"
	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/webutil"
	"github.com/meinedokbox/dokbox/whitelist"
)

const maxRegisterAttempts = 3

type userStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type sessionStore interface {
	CreateSession(ctx context.Context, userID string, ttl time.Duration) (*models.Session, error)
	DeleteAllByUserID(ctx context.Context, userID string) error
}

type addressFormatter interface {
	Address(token string) string
}

type AuthHandler struct {
	users         userStore
	sessions      sessionStore
	addresses     addressFormatter
	sessionTTL    time.Duration
	secureCookies bool
	newToken      func() (string, error)
}

func NewAuthHandler(users userStore, sessions sessionStore, addresses addressFormatter, sessionTTL time.Duration, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		users:         users,
		sessions:      sessions,
		addresses:     addresses,
		sessionTTL:    sessionTTL,
		secureCookies: secureCookies,
		newToken:      inbound.GenerateToken,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type meResponse struct {
	User           *models.User `json:"user"`
	InboundAddress string       `json:"inbound_address"`
}

// HandleRegister creates an account with a fresh inbound address and logs
// the user in.
// Route: POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) error {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	email, err := whitelist.Validate(req.Email)
	if err != nil {
		return domainError(err)
	}
	hash, err := auth.Hash(req.Password)
	if err != nil {
		return domainError(err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		Email:        email,
		PasswordHash: hash,
	}
	for attempt := 1; ; attempt++ {
		if user.InboundToken, err = h.newToken(); err != nil {
			return fmt.Errorf("failed to generate inbound token: %w", err)
		}
		err = h.users.CreateUser(r.Context(), user)
		if !errors.Is(err, datastore.ErrInboundTokenTaken) || attempt == maxRegisterAttempts {
			break
		}
	}
	if err != nil {
		if errors.Is(err, models.ErrDuplicateEntry) {
			return webutil.ErrConflictWrap("An account with this email already exists", err)
		}
		return fmt.Errorf("failed to create user %s: %w", email, err)
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		return err
	}
	slog.Info("user registered", "user_id", user.ID)
	webutil.RespondWithJSON(w, http.StatusCreated, meResponse{User: user, InboundAddress: h.addresses.Address(user.InboundToken)})
	return nil
}

// HandleLogin verifies the credentials and issues a session cookie.
// Route: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) error {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	user, err := h.users.GetUserByEmail(r.Context(), whitelist.Normalize(req.Email))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !auth.Verify(user.PasswordHash, req.Password) {
		return webutil.ErrUnauthorized("Invalid email or password")
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		return err
	}
	webutil.RespondWithJSON(w, http.StatusOK, meResponse{User: user, InboundAddress: h.addresses.Address(user.InboundToken)})
	return nil
}

// HandleLogout ends every session of the current user.
// Route: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) error {
	if userID := webutil.UserIDFromContext(r.Context()); userID != "" {
		if err := h.sessions.DeleteAllByUserID(r.Context(), userID); err != nil {
			return fmt.Errorf("failed to delete sessions: %w", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     webutil.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// HandleMe returns the current user and their inbound address.
// Route: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) error {
	userID, err := ownerID(r)
	if err != nil {
		return err
	}
	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		return domainError(err)
	}
	webutil.RespondWithJSON(w, http.StatusOK, meResponse{User: user, InboundAddress: h.addresses.Address(user.InboundToken)})
	return nil
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, userID string) error {
	session, err := h.sessions.CreateSession(r.Context(), userID, h.sessionTTL)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     webutil.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
	})
	return nil
}
