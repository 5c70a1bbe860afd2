package duplicates

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/webutil"
)

type memDocs struct {
	byHash map[string]*models.Document
	err    error
}

func (m *memDocs) GetDocumentByContentHash(_ context.Context, ownerID, hash string) (*models.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	doc, ok := m.byHash[ownerID+"/"+hash]
	if !ok {
		return nil, nil
	}
	return doc, nil
}

func candidates(contents ...string) []models.UploadCandidate {
	out := make([]models.UploadCandidate, len(contents))
	for i, c := range contents {
		out[i] = models.UploadCandidate{Filename: c + ".pdf", Data: []byte(c)}
	}
	return out
}

func TestHashDetectorIsOwnerScoped(t *testing.T) {
	uploaded := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	hash := webutil.HashBytes([]byte("rechnung"))
	docs := &memDocs{byHash: map[string]*models.Document{
		"alice/" + hash: {ID: "doc-1", Title: "Rechnung März", UploadedAt: uploaded, Category: models.CategoryInvoice},
	}}
	d := NewHashDetector(docs)

	c := models.UploadCandidate{Filename: "scan.pdf", Data: []byte("rechnung")}
	info, err := d.Lookup(context.Background(), "alice", &c)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "doc-1", info.DocumentID)
	assert.Equal(t, "Rechnung März", info.Title)
	assert.Equal(t, uploaded, info.UploadedAt)
	assert.Equal(t, models.CategoryInvoice, info.Category)
	assert.Equal(t, hash, c.ContentHash)

	info, err = d.Lookup(context.Background(), "bob", &c)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestCheckBatchReportsPerFileResults(t *testing.T) {
	hash := webutil.HashBytes([]byte("two"))
	docs := &memDocs{byHash: map[string]*models.Document{
		"owner/" + hash: {ID: "existing", Title: "Two"},
	}}

	results, err := CheckBatch(context.Background(), NewHashDetector(docs), "owner", candidates("one", "two", "three"), time.Second)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Nil(t, results[0])
	require.NotNil(t, results[1])
	assert.Equal(t, "existing", results[1].DocumentID)
	assert.Nil(t, results[2])
	assert.Equal(t, 1, CountMatches(results))
}

func TestCheckBatchFailsClosed(t *testing.T) {
	docs := &memDocs{err: errors.New("connection refused")}

	results, err := CheckBatch(context.Background(), NewHashDetector(docs), "owner", candidates("one", "two"), time.Second)
	assert.ErrorIs(t, err, models.ErrDuplicateCheckFailed)
	assert.Nil(t, results)
}

type detectorFunc func(ctx context.Context, c *models.UploadCandidate) (*models.DuplicateInfo, error)

func (f detectorFunc) Lookup(ctx context.Context, _ string, c *models.UploadCandidate) (*models.DuplicateInfo, error) {
	return f(ctx, c)
}

func TestCheckBatchWaitsForAllLookups(t *testing.T) {
	var inFlight, maxInFlight, finished atomic.Int32
	var mu sync.Mutex
	release := make(chan struct{})

	d := detectorFunc(func(ctx context.Context, c *models.UploadCandidate) (*models.DuplicateInfo, error) {
		n := inFlight.Add(1)
		mu.Lock()
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		mu.Unlock()
		<-release
		inFlight.Add(-1)
		finished.Add(1)
		return nil, nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := CheckBatch(context.Background(), d, "owner", candidates("a", "b", "c", "d"), time.Second)
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool { return inFlight.Load() == 4 }, time.Second, time.Millisecond)
	close(release)
	<-done
	assert.Equal(t, int32(4), finished.Load())
	assert.Equal(t, int32(4), maxInFlight.Load(), "lookups run in parallel")
}

func TestCheckBatchTimeout(t *testing.T) {
	d := detectorFunc(func(ctx context.Context, c *models.UploadCandidate) (*models.DuplicateInfo, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := CheckBatch(context.Background(), d, "owner", candidates("slow"), 10*time.Millisecond)
	assert.ErrorIs(t, err, models.ErrDuplicateCheckFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
