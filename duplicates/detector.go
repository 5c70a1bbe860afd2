// Package duplicates finds previously stored documents that match upload
// candidates.
package duplicates

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/webutil"
)

const maxParallelLookups = 8

// Detector looks up one candidate. It returns nil, nil when the candidate
// is new.
type Detector interface {
	Lookup(ctx context.Context, ownerID string, candidate *models.UploadCandidate) (*models.DuplicateInfo, error)
}

// DocumentFinder is satisfied by datastore.DocumentRepository.
type DocumentFinder interface {
	GetDocumentByContentHash(ctx context.Context, ownerID, hash string) (*models.Document, error)
}

// HashDetector matches candidates by the SHA-256 of their bytes against the
// owner's stored documents.
type HashDetector struct {
	docs DocumentFinder
}

func NewHashDetector(docs DocumentFinder) *HashDetector {
	return &HashDetector{docs: docs}
}

func (d *HashDetector) Lookup(ctx context.Context, ownerID string, candidate *models.UploadCandidate) (*models.DuplicateInfo, error) {
	if candidate.ContentHash == "" {
		candidate.ContentHash = webutil.HashBytes(candidate.Data)
	}

	doc, err := d.docs.GetDocumentByContentHash(ctx, ownerID, candidate.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", candidate.Filename, err)
	}
	if doc == nil {
		return nil, nil
	}
	return doc.Duplicate(), nil
}

// CheckBatch runs one lookup per candidate in parallel and waits for all of
// them. The result has one slot per candidate, nil where no duplicate was
// found. If any lookup fails or the timeout expires the whole batch fails
// with models.ErrDuplicateCheckFailed; a failed lookup is never reported as
// "no duplicate".
func CheckBatch(ctx context.Context, detector Detector, ownerID string, candidates []models.UploadCandidate, timeout time.Duration) ([]*models.DuplicateInfo, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	results := make([]*models.DuplicateInfo, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)

	for i := range candidates {
		c := &candidates[i]
		g.Go(func() error {
			info, err := detector.Lookup(gctx, ownerID, c)
			if err != nil {
				return fmt.Errorf("file %q: %w", c.Filename, err)
			}
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("file %q: %w", c.Filename, err)
			}
			results[i] = info
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrDuplicateCheckFailed, err)
	}
	return results, nil
}

// CountMatches returns how many results carry a duplicate.
func CountMatches(results []*models.DuplicateInfo) int {
	n := 0
	for _, r := range results {
		if r != nil {
			n++
		}
	}
	return n
}
