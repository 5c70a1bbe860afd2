package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meinedokbox/dokbox/models"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: pqUniqueViolation, Constraint: constraintWhitelistOwnerEmail}

	assert.True(t, isUniqueViolation(dup, ""))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", dup), constraintWhitelistOwnerEmail))
	assert.False(t, isUniqueViolation(dup, constraintUserEmail))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}, ""))
	assert.False(t, isUniqueViolation(errors.New("boom"), ""))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% \_x\\`, escapeLike(`100% _x\`))
}

// openTestDB connects to TEST_DATABASE_URL or skips the test.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := Open(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, users *UserRepository) *models.User {
	t.Helper()
	id := uuid.NewString()
	user := &models.User{
		ID:           id,
		CreatedAt:    time.Now().UTC(),
		Email:        id + "@example.com",
		PasswordHash: "x",
		InboundToken: "tok" + id[:8] + id[9:13],
	}
	require.NoError(t, users.CreateUser(context.Background(), user))
	return user
}

func TestWhitelistRepositoryPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	repo := NewWhitelistRepository(db)
	owner := createTestUser(t, users)
	other := createTestUser(t, users)

	entries, err := repo.ListEntries(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	entry := &models.WhitelistEntry{ID: uuid.NewString(), OwnerUserID: owner.ID, AllowedEmail: "a@b.de", CreatedAt: time.Now()}
	require.NoError(t, repo.AddEntry(ctx, entry))

	entries, err = repo.ListEntries(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a@b.de", entries[0].AllowedEmail)

	again := &models.WhitelistEntry{ID: uuid.NewString(), OwnerUserID: owner.ID, AllowedEmail: "a@b.de", CreatedAt: time.Now()}
	assert.ErrorIs(t, repo.AddEntry(ctx, again), models.ErrDuplicateEntry)

	assert.ErrorIs(t, repo.DeleteEntry(ctx, other.ID, entry.ID), models.ErrNotFound)
	require.NoError(t, repo.DeleteEntry(ctx, owner.ID, entry.ID))
	assert.ErrorIs(t, repo.DeleteEntry(ctx, owner.ID, entry.ID), models.ErrNotFound)
}

func TestWhitelistConcurrentAddPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, NewUserRepository(db))
	repo := NewWhitelistRepository(db)

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.AddEntry(ctx, &models.WhitelistEntry{
				ID: uuid.NewString(), OwnerUserID: owner.ID, AllowedEmail: "race@example.com", CreatedAt: time.Now(),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, models.ErrDuplicateEntry)
	}
	assert.Equal(t, 1, succeeded)

	entries, err := repo.ListEntries(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRotateInboundTokenPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	owner := createTestUser(t, users)
	oldToken := owner.InboundToken

	newToken := "new" + uuid.NewString()[:12]
	require.NoError(t, users.RotateInboundToken(ctx, owner.ID, newToken))

	_, err := users.GetUserByInboundToken(ctx, oldToken)
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := users.GetUserByInboundToken(ctx, newToken)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, got.ID)

	other := createTestUser(t, users)
	assert.ErrorIs(t, users.RotateInboundToken(ctx, other.ID, newToken), ErrInboundTokenTaken)
}
