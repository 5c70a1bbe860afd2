// Package documents stores, lists and serves a user's documents.
package documents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meinedokbox/dokbox/datastore"
	"github.com/meinedokbox/dokbox/models"
	"github.com/meinedokbox/dokbox/storage"
	"github.com/meinedokbox/dokbox/webutil"
)

// Repository is satisfied by datastore.DocumentRepository.
type Repository interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, ownerID, documentID string) (*models.Document, error)
	ListDocuments(ctx context.Context, ownerID string, filter datastore.DocumentFilter) ([]models.Document, error)
	DeleteDocument(ctx context.Context, ownerID, documentID string) (*models.Document, error)
}

// NewDocument is the input to Store.
type NewDocument struct {
	Filename    string
	ContentType string
	Data        []byte
	Source      models.DocumentSource
	SenderEmail string
	// Subject and Text feed the title fallback, the classifier and the excerpt.
	Subject string
	Text    string
}

type Service struct {
	repo       Repository
	storer     storage.ContentStorer
	classifier Classifier
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repo Repository, storer storage.ContentStorer, classifier Classifier) *Service {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	return &Service{
		repo:       repo,
		storer:     storer,
		classifier: classifier,
		logger:     slog.With("component", "documents"),
		now:        time.Now,
	}
}

// Store classifies and persists one document. Any failure is reported as
// models.ErrUploadFailed and leaves nothing behind.
func (s *Service) Store(ctx context.Context, ownerID string, in NewDocument) (*models.Document, error) {
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", models.ErrUploadFailed, in.Filename)
	}

	filename := safeFilename(in.Filename)
	contentType := detectContentType(filename, in.ContentType, in.Data)

	title := titleFromFilename(filename)
	if title == "" {
		title = strings.TrimSpace(in.Subject)
	}
	if title == "" {
		title = untitledDocument
	}

	text := in.Text
	if text == "" && strings.HasPrefix(contentType, "text/") {
		text = string(in.Data)
	}

	doc := &models.Document{
		ID:          uuid.NewString(),
		OwnerUserID: ownerID,
		Title:       title,
		Filename:    filename,
		ContentType: contentType,
		ContentHash: webutil.HashBytes(in.Data),
		SizeBytes:   int64(len(in.Data)),
		Source:      in.Source,
		SenderEmail: in.SenderEmail,
		Excerpt:     excerptFromText(text),
		UploadedAt:  s.now().UTC(),
	}
	if doc.Source == "" {
		doc.Source = models.DocumentSourceUpload
	}
	doc.Category = s.classifier.Classify(ctx, ClassifyInput{
		Filename:    filename,
		ContentType: contentType,
		Subject:     in.Subject,
		Text:        text,
	})
	if !doc.Category.Valid() {
		doc.Category = models.CategoryOther
	}

	path, err := s.storer.Store(ownerID, doc.ID, in.Data, filepath.Ext(filename))
	if err != nil {
		return nil, fmt.Errorf("%w: storing %s: %w", models.ErrUploadFailed, filename, err)
	}
	doc.StoragePath = path

	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		if delErr := s.storer.Delete(path); delErr != nil {
			s.logger.Error("failed to remove orphaned file", "path", path, "error", delErr)
		}
		return nil, fmt.Errorf("%w: saving record for %s: %w", models.ErrUploadFailed, filename, err)
	}

	s.logger.Info("document stored",
		"owner_id", ownerID,
		"document_id", doc.ID,
		"category", doc.Category,
		"source", doc.Source,
		"bytes", doc.SizeBytes,
	)
	return doc, nil
}

// StoreCandidates stores candidates in order and stops at the first
// failure. It returns how many were stored so a retry can resume after
// them.
func (s *Service) StoreCandidates(ctx context.Context, ownerID string, candidates []models.UploadCandidate) (int, error) {
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return i, fmt.Errorf("%w: %w", models.ErrUploadFailed, err)
		}
		_, err := s.Store(ctx, ownerID, NewDocument{
			Filename:    c.Filename,
			ContentType: c.ContentType,
			Data:        c.Data,
			Source:      models.DocumentSourceUpload,
		})
		if err != nil {
			return i, err
		}
	}
	return len(candidates), nil
}

func (s *Service) List(ctx context.Context, ownerID, query string, category models.Category) ([]models.Document, error) {
	return s.repo.ListDocuments(ctx, ownerID, datastore.DocumentFilter{Query: query, Category: category})
}

func (s *Service) Get(ctx context.Context, ownerID, documentID string) (*models.Document, error) {
	return s.repo.GetDocumentByID(ctx, ownerID, documentID)
}

// Open returns the document and a reader for its bytes. The caller closes
// the reader.
func (s *Service) Open(ctx context.Context, ownerID, documentID string) (*models.Document, io.ReadCloser, error) {
	doc, err := s.repo.GetDocumentByID(ctx, ownerID, documentID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storer.Open(doc.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening document %s: %w", documentID, err)
	}
	return doc, rc, nil
}

// Delete removes the record first and then the file; a file that cannot be
// removed is logged, not reported.
func (s *Service) Delete(ctx context.Context, ownerID, documentID string) error {
	doc, err := s.repo.DeleteDocument(ctx, ownerID, documentID)
	if err != nil {
		return err
	}
	if err := s.storer.Delete(doc.StoragePath); err != nil {
		s.logger.Error("failed to remove document file", "document_id", documentID, "path", doc.StoragePath, "error", err)
	}
	s.logger.Info("document deleted", "owner_id", ownerID, "document_id", documentID)
	return nil
}

func detectContentType(filename, declared string, data []byte) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
			return mediaType
		}
	}
	if byExt := mime.TypeByExtension(filepath.Ext(filename)); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mediaType
}
