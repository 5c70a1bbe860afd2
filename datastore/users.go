package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/meinedokbox/dokbox/models"
)

const (
	constraintUserEmail        = "users_email_key"
	constraintUserInboundToken = "users_inbound_token_key"
)

// ErrInboundTokenTaken is returned when a freshly generated inbound token
// collides with one already assigned to another user.
var ErrInboundTokenTaken = errors.New("inbound token already in use")

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, created_at, email, password_hash, inbound_token`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.CreatedAt, &user.Email, &user.PasswordHash, &user.InboundToken); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a user. The email is expected to be normalized already.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	if _, err := uuid.Parse(user.ID); err != nil {
		return fmt.Errorf("invalid user ID format: %w", err)
	}
	if user.Email == "" || user.PasswordHash == "" || user.InboundToken == "" {
		return fmt.Errorf("missing required fields for creating user")
	}

	query := `
		INSERT INTO users (id, created_at, email, password_hash, inbound_token)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.CreatedAt, user.Email, user.PasswordHash, user.InboundToken)
	if err != nil {
		switch {
		case isUniqueViolation(err, constraintUserEmail):
			return fmt.Errorf("user %s: %w", user.Email, models.ErrDuplicateEntry)
		case isUniqueViolation(err, constraintUserInboundToken):
			return ErrInboundTokenTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("user %q: %w", userID, models.ErrNotFound)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return user, nil
}

// GetUserByEmail looks a user up by login email, case-insensitively.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// GetUserByInboundToken resolves the owner of an inbound address. Only the
// token currently stored for a user matches.
func (r *UserRepository) GetUserByInboundToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, fmt.Errorf("empty inbound token: %w", models.ErrNotFound)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE inbound_token = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no user for inbound token: %w", models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by inbound token: %w", err)
	}
	return user, nil
}

// RotateInboundToken replaces the user's inbound token in one transaction
// holding the user's row lock. The old token stops resolving at commit.
func (r *UserRepository) RotateInboundToken(ctx context.Context, userID, newToken string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("user %q: %w", userID, models.ErrNotFound)
	}
	if newToken == "" {
		return fmt.Errorf("new inbound token cannot be empty")
	}

	return withOwnerLock(ctx, r.db, userID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE users SET inbound_token = $1 WHERE id = $2`, newToken, userID)
		if err != nil {
			if isUniqueViolation(err, constraintUserInboundToken) {
				return ErrInboundTokenTaken
			}
			return fmt.Errorf("failed to update inbound token for user %s: %w", userID, err)
		}
		return nil
	})
}
