package upload

import (
	"sync"
	"time"

	"github.com/meinedokbox/dokbox/models"
)

type batch struct {
	id      string
	ownerID string
	total   int

	// op serializes operations on the batch; mu guards the fields below
	// so snapshots never wait for a running check or upload.
	op sync.Mutex
	mu sync.Mutex

	state      State
	history    []State
	candidates []models.UploadCandidate
	// uploaded counts stored candidates from the front of candidates.
	uploaded int
	// storedBefore counts candidates stored and dropped before a re-check.
	storedBefore int
	confirmed    bool
	decidedAt    time.Time
	createdAt    time.Time
	updatedAt    time.Time
	lastErr      error
}

// FileStatus describes one file of a batch.
type FileStatus struct {
	Filename    string                `json:"filename"`
	ContentType string                `json:"content_type"`
	SizeBytes   int64                 `json:"size_bytes"`
	Duplicate   *models.DuplicateInfo `json:"duplicate,omitempty"`
}

// Snapshot is a read-only view of a batch.
type Snapshot struct {
	ID             string       `json:"id"`
	State          State        `json:"state"`
	Files          []FileStatus `json:"files"`
	DuplicateCount int          `json:"duplicate_count"`
	Stored         int          `json:"stored"`
	Total          int          `json:"total"`
	Confirmed      bool         `json:"confirmed"`
	History        []State      `json:"history"`
	Error          string       `json:"error,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// set moves the batch to next. Callers hold b.op.
func (b *batch) set(next State, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := checkTransition(b.state, next); err != nil {
		return err
	}
	b.state = next
	b.history = append(b.history, next)
	b.updatedAt = now
	return nil
}

func (b *batch) idleAt(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.updatedAt)
}

func (b *batch) current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *batch) snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		ID:        b.id,
		State:     b.state,
		Files:     make([]FileStatus, 0, len(b.candidates)),
		Stored:    b.storedBefore + b.uploaded,
		Total:     b.total,
		Confirmed: b.confirmed,
		History:   append([]State(nil), b.history...),
		CreatedAt: b.createdAt,
		UpdatedAt: b.updatedAt,
	}
	for _, c := range b.candidates {
		s.Files = append(s.Files, FileStatus{
			Filename:    c.Filename,
			ContentType: c.ContentType,
			SizeBytes:   c.SizeBytes,
			Duplicate:   c.Duplicate,
		})
		if c.Duplicate != nil {
			s.DuplicateCount++
		}
	}
	if b.lastErr != nil {
		s.Error = b.lastErr.Error()
	}
	return s
}

// release drops the candidate bytes once the batch is terminal.
func (b *batch) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.candidates = nil
}
