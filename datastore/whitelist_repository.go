package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/meinedokbox/dokbox/models"
)

const constraintWhitelistOwnerEmail = "whitelist_entries_owner_email_key"

// WhitelistRepository handles database operations for the whitelist_entries table.
type WhitelistRepository struct {
	db *sql.DB
}

// NewWhitelistRepository creates a new WhitelistRepository.
func NewWhitelistRepository(db *sql.DB) *WhitelistRepository {
	return &WhitelistRepository{db: db}
}

// AddEntry inserts a whitelist entry. The address must already be
// normalized. The check and insert run under the owner's row lock and the
// unique index backs them up, so two concurrent adds of the same address
// yield exactly one row.
func (r *WhitelistRepository) AddEntry(ctx context.Context, entry *models.WhitelistEntry) error {
	if _, err := uuid.Parse(entry.ID); err != nil {
		return fmt.Errorf("invalid whitelist entry ID format: %w", err)
	}
	if _, err := uuid.Parse(entry.OwnerUserID); err != nil {
		return fmt.Errorf("invalid owner ID format: %w", err)
	}
	if entry.AllowedEmail == "" {
		return fmt.Errorf("allowed email cannot be empty: %w", models.ErrInvalidFormat)
	}

	return withOwnerLock(ctx, r.db, entry.OwnerUserID, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM whitelist_entries WHERE owner_user_id = $1 AND allowed_email = $2)`,
			entry.OwnerUserID, entry.AllowedEmail,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check whitelist for %s: %w", entry.AllowedEmail, err)
		}
		if exists {
			return fmt.Errorf("%s: %w", entry.AllowedEmail, models.ErrDuplicateEntry)
		}

		query := `
			INSERT INTO whitelist_entries (id, owner_user_id, allowed_email, created_at)
			VALUES ($1, $2, $3, $4)
		`
		if _, err := tx.ExecContext(ctx, query, entry.ID, entry.OwnerUserID, entry.AllowedEmail, entry.CreatedAt); err != nil {
			if isUniqueViolation(err, constraintWhitelistOwnerEmail) {
				return fmt.Errorf("%s: %w", entry.AllowedEmail, models.ErrDuplicateEntry)
			}
			return fmt.Errorf("failed to insert whitelist entry: %w", err)
		}
		return nil
	})
}

// DeleteEntry removes an entry owned by ownerID. Unknown ids and ids owned
// by someone else are both reported as ErrNotFound.
func (r *WhitelistRepository) DeleteEntry(ctx context.Context, ownerID, entryID string) error {
	if _, err := uuid.Parse(entryID); err != nil {
		return fmt.Errorf("whitelist entry %q: %w", entryID, models.ErrNotFound)
	}
	if _, err := uuid.Parse(ownerID); err != nil {
		return fmt.Errorf("invalid owner ID format: %w", err)
	}

	return withOwnerLock(ctx, r.db, ownerID, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM whitelist_entries WHERE id = $1 AND owner_user_id = $2`, entryID, ownerID)
		if err != nil {
			return fmt.Errorf("failed to delete whitelist entry %s: %w", entryID, err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected for whitelist entry %s: %w", entryID, err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("whitelist entry %s: %w", entryID, models.ErrNotFound)
		}
		return nil
	})
}

// ListEntries returns the owner's entries ordered by address.
func (r *WhitelistRepository) ListEntries(ctx context.Context, ownerID string) ([]models.WhitelistEntry, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return nil, fmt.Errorf("invalid owner ID format: %w", err)
	}

	query := `
		SELECT id, owner_user_id, allowed_email, created_at
		FROM whitelist_entries
		WHERE owner_user_id = $1
		ORDER BY allowed_email ASC
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query whitelist for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	entries := []models.WhitelistEntry{}
	for rows.Next() {
		var entry models.WhitelistEntry
		if err := rows.Scan(&entry.ID, &entry.OwnerUserID, &entry.AllowedEmail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan whitelist row for owner %s: %w", ownerID, err)
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating whitelist rows for owner %s: %w", ownerID, err)
	}
	return entries, nil
}
