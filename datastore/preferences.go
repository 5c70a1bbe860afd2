package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/meinedokbox/dokbox/models"
)

type PreferenceRepository struct {
	db *sql.DB
}

func NewPreferenceRepository(db *sql.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// GetReminder returns the stored preference, or nil, nil if the user never
// dismissed the reminder.
func (r *PreferenceRepository) GetReminder(ctx context.Context, ownerID, key string) (*models.ReminderPreference, error) {
	query := `
		SELECT owner_user_id, key, dismissed_until
		FROM reminder_preferences
		WHERE owner_user_id = $1 AND key = $2
	`
	var pref models.ReminderPreference
	err := r.db.QueryRowContext(ctx, query, ownerID, key).Scan(&pref.OwnerUserID, &pref.Key, &pref.DismissedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reminder %s for owner %s: %w", key, ownerID, err)
	}
	return &pref, nil
}

// UpsertReminder stores when a dismissed reminder becomes visible again.
func (r *PreferenceRepository) UpsertReminder(ctx context.Context, pref *models.ReminderPreference) error {
	query := `
		INSERT INTO reminder_preferences (owner_user_id, key, dismissed_until)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_user_id, key) DO UPDATE SET dismissed_until = EXCLUDED.dismissed_until
	`
	if _, err := r.db.ExecContext(ctx, query, pref.OwnerUserID, pref.Key, pref.DismissedUntil); err != nil {
		return fmt.Errorf("failed to store reminder %s for owner %s: %w", pref.Key, pref.OwnerUserID, err)
	}
	return nil
}
