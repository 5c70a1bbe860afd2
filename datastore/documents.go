package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/meinedokbox/dokbox/models"
)

// DocumentRepository handles database operations for documents.
type DocumentRepository struct {
	db *sql.DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// DocumentFilter narrows ListDocuments. Zero values match everything.
type DocumentFilter struct {
	Query    string
	Category models.Category
}

const documentColumns = `id, owner_user_id, title, filename, content_type, category, content_hash,
	size_bytes, storage_path, source, sender_email, excerpt, uploaded_at`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var doc models.Document
	var category, source string
	err := row.Scan(
		&doc.ID, &doc.OwnerUserID, &doc.Title, &doc.Filename, &doc.ContentType, &category,
		&doc.ContentHash, &doc.SizeBytes, &doc.StoragePath, &source, &doc.SenderEmail,
		&doc.Excerpt, &doc.UploadedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Category = models.ParseCategory(category)
	doc.Source = models.DocumentSource(source)
	return &doc, nil
}

// CreateDocument inserts a new document record.
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" || doc.OwnerUserID == "" || doc.ContentHash == "" || doc.StoragePath == "" || doc.Filename == "" {
		return fmt.Errorf("missing required fields for creating document")
	}
	if _, err := uuid.Parse(doc.ID); err != nil {
		return fmt.Errorf("invalid document ID format: %w", err)
	}
	if _, err := uuid.Parse(doc.OwnerUserID); err != nil {
		return fmt.Errorf("invalid owner ID format: %w", err)
	}

	query := `
		INSERT INTO documents (
			id, owner_user_id, title, filename, content_type, category, content_hash,
			size_bytes, storage_path, source, sender_email, excerpt, uploaded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.OwnerUserID, doc.Title, doc.Filename, doc.ContentType, string(doc.Category), doc.ContentHash,
		doc.SizeBytes, doc.StoragePath, string(doc.Source), doc.SenderEmail, doc.Excerpt, doc.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// GetDocumentByContentHash returns the owner's most recent document with the
// given hash. Returns nil, nil if there is none.
func (r *DocumentRepository) GetDocumentByContentHash(ctx context.Context, ownerID, hash string) (*models.Document, error) {
	// SHA-256 hashes are 64 hex characters.
	if len(hash) != 64 {
		return nil, fmt.Errorf("invalid content hash format (expected 64 hex characters)")
	}
	if _, err := uuid.Parse(ownerID); err != nil {
		return nil, fmt.Errorf("invalid owner ID format: %w", err)
	}

	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_user_id = $1 AND content_hash = $2
		ORDER BY uploaded_at DESC
		LIMIT 1
	`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, ownerID, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document by content hash: %w", err)
	}
	return doc, nil
}

// GetDocumentByID retrieves one of the owner's documents.
func (r *DocumentRepository) GetDocumentByID(ctx context.Context, ownerID, documentID string) (*models.Document, error) {
	if _, err := uuid.Parse(documentID); err != nil {
		return nil, fmt.Errorf("document %q: %w", documentID, models.ErrNotFound)
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND owner_user_id = $2`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, documentID, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document by ID: %w", err)
	}
	return doc, nil
}

// ListDocuments returns the owner's documents, newest first.
func (r *DocumentRepository) ListDocuments(ctx context.Context, ownerID string, filter DocumentFilter) ([]models.Document, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return nil, fmt.Errorf("invalid owner ID format: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + documentColumns + ` FROM documents WHERE owner_user_id = $1`)
	args := []any{ownerID}

	if filter.Category != "" {
		args = append(args, string(filter.Category))
		fmt.Fprintf(&sb, " AND category = $%d", len(args))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		fmt.Fprintf(&sb, " AND (title ILIKE $%d OR filename ILIKE $%d OR excerpt ILIKE $%d)", n, n, n)
	}
	sb.WriteString(" ORDER BY uploaded_at DESC")

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document row for owner %s: %w", ownerID, err)
		}
		docs = append(docs, *doc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows for owner %s: %w", ownerID, err)
	}
	return docs, nil
}

// DeleteDocument removes one of the owner's documents and returns the
// deleted record so the caller can remove the stored bytes.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, ownerID, documentID string) (*models.Document, error) {
	if _, err := uuid.Parse(documentID); err != nil {
		return nil, fmt.Errorf("document %q: %w", documentID, models.ErrNotFound)
	}

	query := `DELETE FROM documents WHERE id = $1 AND owner_user_id = $2 RETURNING ` + documentColumns
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, documentID, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return doc, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
