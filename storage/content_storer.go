package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/meinedokbox/dokbox/models"
)

// outputDirForStorage defines the base directory for storing documents locally.
const outputDirForStorage = "_output"

const documentsDir = "documents"

// ContentStorer stores document bytes and hands them back for download.
// Paths are relative to the storer's root.
type ContentStorer interface {
	Store(ownerID, documentID string, content []byte, extension string) (relativeStoragePath string, err error)
	Open(relativeStoragePath string) (io.ReadCloser, error)
	Delete(relativeStoragePath string) error
}

// LocalFileStorer implements ContentStorer on the local file system.
type LocalFileStorer struct {
	basePath string
}

// NewLocalFileStorer creates a new LocalFileStorer.
// If basePath is empty, it defaults to outputDirForStorage.
func NewLocalFileStorer(basePath string) *LocalFileStorer {
	if basePath == "" {
		basePath = outputDirForStorage
	}
	return &LocalFileStorer{basePath: basePath}
}

// Store writes content to <basePath>/documents/<ownerID>/<documentID>.<ext>
// and returns documents/<ownerID>/<documentID>.<ext>.
func (lfs *LocalFileStorer) Store(ownerID, documentID string, content []byte, extension string) (string, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return "", fmt.Errorf("invalid owner ID for storing content: %w", err)
	}
	if _, err := uuid.Parse(documentID); err != nil {
		return "", fmt.Errorf("invalid document ID for storing content: %w", err)
	}

	fileName := documentID
	if ext := sanitizeExtension(extension); ext != "" {
		fileName += "." + ext
	}
	relativeDir := filepath.Join(documentsDir, ownerID)
	relativeStoragePath := filepath.Join(relativeDir, fileName)

	fullStorageDir := filepath.Join(lfs.basePath, relativeDir)
	if err := os.MkdirAll(fullStorageDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	// Readers never see a partially written file.
	tmp, err := os.CreateTemp(fullStorageDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write document content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(lfs.basePath, relativeStoragePath)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to move document into place: %w", err)
	}

	slog.Debug("stored document content", "path", relativeStoragePath, "bytes", len(content))
	return relativeStoragePath, nil
}

// Open returns a reader for a stored document. Missing files are reported
// as models.ErrNotFound.
func (lfs *LocalFileStorer) Open(relativeStoragePath string) (io.ReadCloser, error) {
	full, err := lfs.resolve(relativeStoragePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stored file %s: %w", relativeStoragePath, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open stored file: %w", err)
	}
	return f, nil
}

// Delete removes a stored document. Deleting a missing file is not an error.
func (lfs *LocalFileStorer) Delete(relativeStoragePath string) error {
	full, err := lfs.resolve(relativeStoragePath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete stored file: %w", err)
	}
	return nil
}

// resolve maps a relative path onto the base directory and refuses paths
// that escape it.
func (lfs *LocalFileStorer) resolve(relativeStoragePath string) (string, error) {
	clean := filepath.Clean(relativeStoragePath)
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage path %q", relativeStoragePath)
	}
	return filepath.Join(lfs.basePath, clean), nil
}

func sanitizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if len(ext) > 10 {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
