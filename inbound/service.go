// Package inbound issues, rotates and resolves the per-user receiving
// address <token>@<domain>.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/meinedokbox/dokbox/datastore"
	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/webutil"
)

const (
	tokenBytes = 16
	// A 128-bit token collides practically never; retries cover the rest.
	maxTokenAttempts = 3
)

// UserStore is the subset of the user repository the service needs.
// RotateInboundToken must replace the token atomically and return
// datastore.ErrInboundTokenTaken when another user already holds it.
type UserStore interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUserByInboundToken(ctx context.Context, token string) (*models.User, error)
	RotateInboundToken(ctx context.Context, userID, newToken string) error
}

type Service struct {
	users    UserStore
	domain   string
	newToken func() (string, error)
	logger   *slog.Logger
}

func NewService(users UserStore, domain string) *Service {
	return &Service{
		users:    users,
		domain:   strings.ToLower(domain),
		newToken: GenerateToken,
		logger:   slog.With("component", "inbound"),
	}
}

// GenerateToken returns a fresh opaque local part.
func GenerateToken() (string, error) {
	return webutil.GenerateRandomToken(tokenBytes)
}

// Address formats token as a full email address.
func (s *Service) Address(token string) string {
	return token + "@" + s.domain
}

// Domain is the receiving domain all addresses share.
func (s *Service) Domain() string {
	return s.domain
}

// Current returns the owner's valid receiving address.
func (s *Service) Current(ctx context.Context, ownerID string) (string, error) {
	user, err := s.users.GetUserByID(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("loading user %s: %w", ownerID, err)
	}
	return s.Address(user.InboundToken), nil
}

// Regenerate replaces the owner's address. The previous address stops
// resolving when the new one is committed. Concurrent calls for one owner
// are serialized by the store; the last committed token wins.
func (s *Service) Regenerate(ctx context.Context, ownerID string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return "", fmt.Errorf("generating inbound token: %w", err)
		}

		err = s.users.RotateInboundToken(ctx, ownerID, token)
		if err == nil {
			s.logger.Info("inbound address regenerated", "owner_id", ownerID)
			return s.Address(token), nil
		}
		if !errors.Is(err, datastore.ErrInboundTokenTaken) {
			return "", fmt.Errorf("rotating inbound token for %s: %w", ownerID, err)
		}
		s.logger.Warn("inbound token collision, retrying", "owner_id", ownerID, "attempt", attempt)
		lastErr = err
	}
	return "", fmt.Errorf("rotating inbound token for %s after %d attempts: %w", ownerID, maxTokenAttempts, lastErr)
}

// Resolve maps a recipient header (a single address or a list) to the
// owning user. Addresses on other domains and tokens that are not current
// resolve to models.ErrNotFound.
func (s *Service) Resolve(ctx context.Context, recipient string) (*models.User, error) {
	for _, token := range s.tokensFor(recipient) {
		user, err := s.users.GetUserByInboundToken(ctx, token)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("resolving inbound address: %w", err)
		}
	}
	return nil, fmt.Errorf("recipient %q: %w", recipient, models.ErrNotFound)
}

// tokensFor extracts the local parts of all addresses in recipient that
// belong to the receiving domain.
func (s *Service) tokensFor(recipient string) []string {
	var candidates []string
	addrs, err := enmime.ParseAddressList(recipient)
	if err == nil {
		for _, a := range addrs {
			candidates = append(candidates, a.Address)
		}
	} else {
		for _, part := range strings.Split(recipient, ",") {
			candidates = append(candidates, strings.Trim(strings.TrimSpace(part), "<>"))
		}
	}

	var tokens []string
	for _, c := range candidates {
		c = strings.ToLower(strings.TrimSpace(c))
		at := strings.LastIndex(c, "@")
		if at <= 0 || c[at+1:] != s.domain {
			continue
		}
		tokens = append(tokens, c[:at])
	}
	return tokens
}
