package routehandlers

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/webutil"
)

const maxDismissal = 365 * 24 * time.Hour

var reminderKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

type preferenceStore interface {
	GetReminder(ctx context.Context, ownerID, key string) (*models.ReminderPreference, error)
	UpsertReminder(ctx context.Context, pref *models.ReminderPreference) error
}

type whitelistLister interface {
	List(ctx context.Context, ownerID string) ([]models.WhitelistEntry, error)
}

// OnboardingHandler reports setup progress and stores dismissed reminders.
type OnboardingHandler struct {
	prefs     preferenceStore
	whitelist whitelistLister
	now       func() time.Time
}

func NewOnboardingHandler(prefs preferenceStore, whitelist whitelistLister) *OnboardingHandler {
	return &OnboardingHandler{prefs: prefs, whitelist: whitelist, now: time.Now}
}

type onboardingResponse struct {
	WhitelistEmpty           bool       `json:"whitelist_empty"`
	WhitelistCount           int        `json:"whitelist_count"`
	WhitelistReminderVisible bool       `json:"whitelist_reminder_visible"`
	WhitelistReminderUntil   *time.Time `json:"whitelist_reminder_dismissed_until,omitempty"`
}

// HandleOnboarding tells the client whether to prompt for whitelist
// entries. The prompt shows while the whitelist is empty and the reminder
// is not dismissed.
// Route: GET /api/onboarding
func (h *OnboardingHandler) HandleOnboarding(w http.ResponseWriter, r *http.Request) error {
	owner, err := ownerID(r)
	if err != nil {
		return err
	}
	entries, err := h.whitelist.List(r.Context(), owner)
	if err != nil {
		return domainError(err)
	}
	pref, err := h.prefs.GetReminder(r.Context(), owner, models.ReminderWhitelistSetup)
	if err != nil {
		return err
	}

	resp := onboardingResponse{
		WhitelistEmpty: len(entries) == 0,
		WhitelistCount: len(entries),
	}
	resp.WhitelistReminderVisible = resp.WhitelistEmpty && pref.Visible(h.now())
	if pref != nil {
		until := pref.DismissedUntil
		resp.WhitelistReminderUntil = &until
	}
	webutil.RespondWithJSON(w, http.StatusOK, resp)
	return nil
}

type dismissRequest struct {
	// DismissFor is a Go duration such as "72h"; empty or "0s" shows the
	// reminder again right away.
	DismissFor string `json:"dismiss_for"`
}

// Route: PUT /api/preferences/reminders/{key}
func (h *OnboardingHandler) HandleDismissReminder(w http.ResponseWriter, r *http.Request) error {
	owner, err := ownerID(r)
	if err != nil {
		return err
	}
	key := chi.URLParam(r, "key")
	if !reminderKeyPattern.MatchString(key) {
		return webutil.ErrBadRequest("Invalid reminder key")
	}

	var req dismissRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	var d time.Duration
	if req.DismissFor != "" {
		if d, err = time.ParseDuration(req.DismissFor); err != nil {
			return webutil.ErrBadRequest(fmt.Sprintf("Invalid dismiss_for %q", req.DismissFor))
		}
	}
	if d < 0 || d > maxDismissal {
		return webutil.ErrBadRequest("dismiss_for must be between 0 and 8760h")
	}

	pref := &models.ReminderPreference{
		OwnerUserID:    owner,
		Key:            key,
		DismissedUntil: h.now().UTC().Add(d),
	}
	if err := h.prefs.UpsertReminder(r.Context(), pref); err != nil {
		return err
	}
	webutil.RespondWithJSON(w, http.StatusOK, pref)
	return nil
}
