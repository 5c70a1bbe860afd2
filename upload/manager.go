// Package upload runs the upload confirmation flow: every batch is checked
// for duplicates as a whole and, if any file matches a stored document,
// nothing is uploaded until the owner confirms or cancels.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meinedokbox/dokbox/duplicates"
	"github.com/meinedokbox/dokbox/models"
)

var (
	ErrEmptyBatch   = errors.New("upload batch has no files")
	ErrTooManyFiles = errors.New("upload batch has too many files")
	ErrEmptyFile    = errors.New("upload batch contains an empty file")
)

// Uploader stores candidates in order and reports how many were stored
// before the first failure. documents.Service implements it.
type Uploader interface {
	StoreCandidates(ctx context.Context, ownerID string, candidates []models.UploadCandidate) (int, error)
}

type Options struct {
	// CheckTimeout bounds the duplicate lookups of one batch.
	CheckTimeout time.Duration
	// ConfirmationTTL is how long after the decision a failed upload may be
	// retried without checking for duplicates again.
	ConfirmationTTL time.Duration
	// AbandonAfter is the idle time after which Sweep discards a batch.
	AbandonAfter time.Duration
	// MaxFiles caps the number of files per batch; zero means no cap.
	MaxFiles int
}

// Manager holds at most one unresolved batch per owner.
type Manager struct {
	detector duplicates.Detector
	uploader Uploader
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	batches map[string]*batch // by owner
}

func NewManager(detector duplicates.Detector, uploader Uploader, opts Options) *Manager {
	if opts.AbandonAfter <= 0 {
		opts.AbandonAfter = 2 * opts.ConfirmationTTL
	}
	return &Manager{
		detector: detector,
		uploader: uploader,
		opts:     opts,
		logger:   slog.With("component", "upload"),
		now:      time.Now,
		batches:  make(map[string]*batch),
	}
}

// Begin starts a batch, runs the duplicate checks and, if nothing matched,
// uploads every file. With at least one match the batch waits for Confirm
// or Cancel. The returned snapshot is valid even when err is not nil.
func (m *Manager) Begin(ctx context.Context, ownerID string, candidates []models.UploadCandidate) (Snapshot, error) {
	if len(candidates) == 0 {
		return Snapshot{}, ErrEmptyBatch
	}
	if m.opts.MaxFiles > 0 && len(candidates) > m.opts.MaxFiles {
		return Snapshot{}, fmt.Errorf("%w: at most %d files per batch", ErrTooManyFiles, m.opts.MaxFiles)
	}
	// The store refuses empty files; a batch holding one could never finish.
	for _, c := range candidates {
		if len(c.Data) == 0 {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrEmptyFile, c.Filename)
		}
	}

	now := m.now()
	b := &batch{
		id:         uuid.NewString(),
		ownerID:    ownerID,
		total:      len(candidates),
		state:      StateIdle,
		history:    []State{StateIdle},
		candidates: append([]models.UploadCandidate(nil), candidates...),
		createdAt:  now,
		updatedAt:  now,
	}
	for i := range b.candidates {
		b.candidates[i].Duplicate = nil
		if b.candidates[i].SizeBytes == 0 {
			b.candidates[i].SizeBytes = int64(len(b.candidates[i].Data))
		}
	}

	m.mu.Lock()
	if _, busy := m.batches[ownerID]; busy {
		m.mu.Unlock()
		return Snapshot{}, models.ErrBatchInProgress
	}
	m.batches[ownerID] = b
	b.op.Lock()
	m.mu.Unlock()
	defer b.op.Unlock()

	m.logger.Info("upload batch started", "owner_id", ownerID, "batch_id", b.id, "files", b.total)

	if err := m.check(ctx, b); err != nil {
		return b.snapshot(), err
	}
	return m.afterCheck(ctx, b)
}

// Confirm uploads the whole batch, duplicates included. Only valid while
// the batch awaits a decision.
func (m *Manager) Confirm(ctx context.Context, ownerID, batchID string) (Snapshot, error) {
	b, err := m.lookup(ownerID, batchID)
	if err != nil {
		return Snapshot{}, err
	}
	b.op.Lock()
	defer b.op.Unlock()

	if err := checkTransition(b.current(), StateUploadingAnyway); err != nil {
		return b.snapshot(), err
	}
	b.mu.Lock()
	b.confirmed = true
	b.mu.Unlock()

	m.logger.Info("upload batch confirmed", "owner_id", ownerID, "batch_id", batchID)
	return m.upload(ctx, b, StateUploadingAnyway, false)
}

// Cancel ends the batch without uploading anything further. No upload is
// ever in flight while a batch awaits a decision, so cancelling there
// stores nothing at all.
func (m *Manager) Cancel(ownerID, batchID string) (Snapshot, error) {
	b, err := m.lookup(ownerID, batchID)
	if err != nil {
		return Snapshot{}, err
	}
	b.op.Lock()
	defer b.op.Unlock()

	if err := b.set(StateCancelled, m.now()); err != nil {
		return b.snapshot(), err
	}
	snap := b.snapshot()
	m.finish(b)
	m.logger.Info("upload batch cancelled", "owner_id", ownerID, "batch_id", batchID, "stored", snap.Stored)
	return snap, nil
}

// Retry resumes a batch in StateCheckFailed or StateUploadFailed. A failed
// upload is resumed without asking again if the decision is younger than
// ConfirmationTTL; otherwise the remaining files are checked again.
func (m *Manager) Retry(ctx context.Context, ownerID, batchID string) (Snapshot, error) {
	b, err := m.lookup(ownerID, batchID)
	if err != nil {
		return Snapshot{}, err
	}
	b.op.Lock()
	defer b.op.Unlock()

	switch b.current() {
	case StateCheckFailed:
		if err := m.check(ctx, b); err != nil {
			return b.snapshot(), err
		}
		return m.afterCheck(ctx, b)

	case StateUploadFailed:
		b.mu.Lock()
		fresh := m.now().Sub(b.decidedAt) <= m.opts.ConfirmationTTL
		confirmed := b.confirmed
		b.mu.Unlock()

		if fresh {
			via := StateUploading
			if confirmed {
				via = StateUploadingAnyway
			}
			return m.upload(ctx, b, via, true)
		}

		b.mu.Lock()
		b.candidates = b.candidates[b.uploaded:]
		b.storedBefore += b.uploaded
		b.uploaded = 0
		b.confirmed = false
		b.mu.Unlock()
		if err := m.check(ctx, b); err != nil {
			return b.snapshot(), err
		}
		return m.afterCheck(ctx, b)

	default:
		return b.snapshot(), fmt.Errorf("%w: cannot retry from %s", models.ErrInvalidTransition, b.current())
	}
}

// Get returns the owner's batch. Batches of other owners and finished
// batches are not found.
func (m *Manager) Get(ownerID, batchID string) (Snapshot, error) {
	b, err := m.lookup(ownerID, batchID)
	if err != nil {
		return Snapshot{}, err
	}
	return b.snapshot(), nil
}

// Sweep discards batches that have been idle longer than AbandonAfter and
// returns how many it removed. Batches with a running operation are left
// alone.
func (m *Manager) Sweep(now time.Time) int {
	removed := 0
	for _, b := range m.idleBatches(now) {
		if m.discardIfIdle(b, now) {
			removed++
		}
	}
	return removed
}

func (m *Manager) idleBatches(now time.Time) []*batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []*batch
	for _, b := range m.batches {
		if b.idleAt(now) > m.opts.AbandonAfter {
			stale = append(stale, b)
		}
	}
	return stale
}

// discardIfIdle cancels b unless an operation holds it or touched it since
// it was found idle.
func (m *Manager) discardIfIdle(b *batch, now time.Time) bool {
	if !b.op.TryLock() {
		return false
	}
	defer b.op.Unlock()
	if b.idleAt(now) <= m.opts.AbandonAfter {
		return false
	}
	if b.current().CanTransition(StateCancelled) {
		_ = b.set(StateCancelled, now)
	}
	m.finish(b)
	m.logger.Info("abandoned upload batch discarded", "owner_id", b.ownerID, "batch_id", b.id)
	return true
}

// check runs the duplicate lookups for the batch's files. A failed lookup
// moves the batch to StateCheckFailed; it is never read as "no duplicate".
func (m *Manager) check(ctx context.Context, b *batch) error {
	if err := b.set(StateCheckingDuplicates, m.now()); err != nil {
		return err
	}

	b.mu.Lock()
	pending := append([]models.UploadCandidate(nil), b.candidates...)
	b.mu.Unlock()

	results, err := duplicates.CheckBatch(ctx, m.detector, b.ownerID, pending, m.opts.CheckTimeout)
	if err != nil {
		b.mu.Lock()
		b.lastErr = err
		b.mu.Unlock()
		_ = b.set(StateCheckFailed, m.now())
		m.logger.Warn("duplicate check failed", "owner_id", b.ownerID, "batch_id", b.id, "error", err)
		return err
	}

	b.mu.Lock()
	b.lastErr = nil
	for i := range b.candidates {
		b.candidates[i].Duplicate = results[i]
		if pending[i].ContentHash != "" {
			b.candidates[i].ContentHash = pending[i].ContentHash
		}
	}
	b.mu.Unlock()

	if duplicates.CountMatches(results) == 0 {
		return b.set(StateNoDuplicates, m.now())
	}
	if err := b.set(StateDuplicatesFound, m.now()); err != nil {
		return err
	}
	return b.set(StateAwaitingUserDecision, m.now())
}

// afterCheck uploads a batch without matches and leaves one with matches
// waiting for the decision.
func (m *Manager) afterCheck(ctx context.Context, b *batch) (Snapshot, error) {
	if b.current() == StateNoDuplicates {
		return m.upload(ctx, b, StateUploading, false)
	}
	snap := b.snapshot()
	m.logger.Info("duplicates found, awaiting decision", "owner_id", b.ownerID, "batch_id", b.id, "matches", snap.DuplicateCount)
	return snap, nil
}

// upload stores the files not stored yet. A resumed upload keeps the
// original decision time. On failure the batch stays resumable in
// StateUploadFailed.
func (m *Manager) upload(ctx context.Context, b *batch, via State, resume bool) (Snapshot, error) {
	now := m.now()
	if err := b.set(via, now); err != nil {
		return b.snapshot(), err
	}

	b.mu.Lock()
	if !resume {
		b.decidedAt = now
	}
	remaining := b.candidates[b.uploaded:]
	b.mu.Unlock()

	n, err := m.uploader.StoreCandidates(ctx, b.ownerID, remaining)

	b.mu.Lock()
	b.uploaded += n
	if err != nil {
		b.lastErr = err
	} else {
		b.lastErr = nil
	}
	b.mu.Unlock()

	if err != nil {
		_ = b.set(StateUploadFailed, m.now())
		m.logger.Error("upload failed", "owner_id", b.ownerID, "batch_id", b.id, "stored", n, "error", err)
		if !errors.Is(err, models.ErrUploadFailed) {
			err = fmt.Errorf("%w: %w", models.ErrUploadFailed, err)
		}
		return b.snapshot(), err
	}

	if err := b.set(StateDone, m.now()); err != nil {
		return b.snapshot(), err
	}
	snap := b.snapshot()
	m.finish(b)
	m.logger.Info("upload batch done", "owner_id", b.ownerID, "batch_id", b.id, "stored", snap.Stored)
	return snap, nil
}

// finish releases a terminal batch and frees the owner's slot.
func (m *Manager) finish(b *batch) {
	b.release()
	m.mu.Lock()
	if m.batches[b.ownerID] == b {
		delete(m.batches, b.ownerID)
	}
	m.mu.Unlock()
}

func (m *Manager) lookup(ownerID, batchID string) (*batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[ownerID]
	if !ok || b.id != batchID {
		return nil, fmt.Errorf("upload batch %s: %w", batchID, models.ErrNotFound)
	}
	return b, nil
}
