// Package whitelist decides which senders may contribute documents to a
// user's box by email.
package whitelist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meinedokbox/dokbox/models"
)

// Store persists whitelist entries. AddEntry must report an existing
// address with models.ErrDuplicateEntry and DeleteEntry must report an
// unknown or foreign id with models.ErrNotFound.
type Store interface {
	AddEntry(ctx context.Context, entry *models.WhitelistEntry) error
	DeleteEntry(ctx context.Context, ownerID, entryID string) error
	ListEntries(ctx context.Context, ownerID string) ([]models.WhitelistEntry, error)
}

// cacheTTL bounds how long a loaded list is served and how long an idle
// owner stays in memory.
const cacheTTL = 5 * time.Minute

type cachedList struct {
	entries   []models.WhitelistEntry
	emails    map[string]struct{}
	expiresAt time.Time
}

// Gate answers IsAllowed from a per-owner cache that every write through
// the gate invalidates before returning. Writes for one owner are
// serialized in-process; the store serializes them across processes.
type Gate struct {
	store  Store
	locks  *keyedMutex
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	cache     map[string]*cachedList
	gen       uint64
	nextPrune time.Time
}

func NewGate(store Store) *Gate {
	return &Gate{
		store:  store,
		locks:  newKeyedMutex(),
		logger: slog.With("component", "whitelist"),
		now:    time.Now,
		cache:  make(map[string]*cachedList),
	}
}

// IsAllowed reports whether sender is on owner's whitelist. Matching is
// exact after normalization. An empty whitelist allows nobody.
func (g *Gate) IsAllowed(ctx context.Context, ownerID, sender string) (bool, error) {
	email := Normalize(sender)
	if email == "" {
		return false, nil
	}

	list, err := g.load(ctx, ownerID)
	if err != nil {
		return false, err
	}
	_, ok := list.emails[email]
	return ok, nil
}

// List returns the owner's entries ordered by address.
func (g *Gate) List(ctx context.Context, ownerID string) ([]models.WhitelistEntry, error) {
	list, err := g.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]models.WhitelistEntry, len(list.entries))
	copy(out, list.entries)
	return out, nil
}

// Add validates and stores email for owner.
func (g *Gate) Add(ctx context.Context, ownerID, email string) (*models.WhitelistEntry, error) {
	normalized, err := Validate(email)
	if err != nil {
		return nil, err
	}

	unlock := g.locks.Lock(ownerID)
	defer unlock()
	defer g.invalidate(ownerID)

	entry := &models.WhitelistEntry{
		ID:           uuid.NewString(),
		OwnerUserID:  ownerID,
		AllowedEmail: normalized,
		CreatedAt:    g.now().UTC(),
	}
	if err := g.store.AddEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("adding %s to whitelist: %w", normalized, err)
	}

	g.logger.Info("whitelist entry added", "owner_id", ownerID, "entry_id", entry.ID)
	return entry, nil
}

// Remove deletes one of owner's entries. Ids that do not belong to owner
// yield models.ErrNotFound.
func (g *Gate) Remove(ctx context.Context, ownerID, entryID string) error {
	unlock := g.locks.Lock(ownerID)
	defer unlock()
	defer g.invalidate(ownerID)

	if err := g.store.DeleteEntry(ctx, ownerID, entryID); err != nil {
		return fmt.Errorf("removing whitelist entry %s: %w", entryID, err)
	}

	g.logger.Info("whitelist entry removed", "owner_id", ownerID, "entry_id", entryID)
	return nil
}

// invalidate drops the owner's cached list and bumps the generation so a
// load that started before the write cannot repopulate stale data.
func (g *Gate) invalidate(ownerID string) {
	g.mu.Lock()
	delete(g.cache, ownerID)
	g.gen++
	g.mu.Unlock()
}

func (g *Gate) load(ctx context.Context, ownerID string) (*cachedList, error) {
	now := g.now()
	g.mu.Lock()
	if list, ok := g.cache[ownerID]; ok && now.Before(list.expiresAt) {
		g.mu.Unlock()
		return list, nil
	}
	startGen := g.gen
	g.mu.Unlock()

	entries, err := g.store.ListEntries(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("loading whitelist for %s: %w", ownerID, err)
	}

	list := &cachedList{
		entries:   entries,
		emails:    make(map[string]struct{}, len(entries)),
		expiresAt: now.Add(cacheTTL),
	}
	for _, e := range entries {
		list.emails[Normalize(e.AllowedEmail)] = struct{}{}
	}

	g.mu.Lock()
	if g.gen == startGen {
		g.cache[ownerID] = list
	}
	g.pruneLocked(now)
	g.mu.Unlock()
	return list, nil
}

// pruneLocked drops expired lists, at most once per cacheTTL.
func (g *Gate) pruneLocked(now time.Time) {
	if now.Before(g.nextPrune) {
		return
	}
	for owner, list := range g.cache {
		if !now.Before(list.expiresAt) {
			delete(g.cache, owner)
		}
	}
	g.nextPrune = now.Add(cacheTTL)
}
