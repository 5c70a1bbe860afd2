package storage

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meinedokbox/dokbox/models"
)

func TestLocalFileStorerRoundTrip(t *testing.T) {
	lfs := NewLocalFileStorer(t.TempDir())
	owner, doc := uuid.NewString(), uuid.NewString()

	rel, err := lfs.Store(owner, doc, []byte("%PDF-1.7"), ".PDF")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("documents", owner, doc+".pdf"), rel)

	rc, err := lfs.Open(rel)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(body))

	require.NoError(t, lfs.Delete(rel))
	_, err = lfs.Open(rel)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, lfs.Delete(rel), "deleting twice is fine")
}

func TestLocalFileStorerRejectsBadInput(t *testing.T) {
	lfs := NewLocalFileStorer(t.TempDir())

	_, err := lfs.Store("../etc", uuid.NewString(), []byte("x"), "pdf")
	assert.Error(t, err)

	_, err = lfs.Open("../../etc/passwd")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}

func TestSanitizeExtension(t *testing.T) {
	assert.Equal(t, "pdf", sanitizeExtension(".PDF"))
	assert.Equal(t, "", sanitizeExtension("p/df"))
	assert.Equal(t, "", sanitizeExtension("averyveryverylongext"))
	assert.Equal(t, "jpeg", sanitizeExtension("jpeg"))
}
