package models

import "time"

// DocumentSource records how a document entered the box.
type DocumentSource string

const (
	DocumentSourceUpload DocumentSource = "upload"
	DocumentSourceEmail  DocumentSource = "email"
)

type Document struct {
	ID          string         `json:"id"`
	OwnerUserID string         `json:"owner_user_id"`
	Title       string         `json:"title"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type"`
	Category    Category       `json:"category"`
	ContentHash string         `json:"content_hash"`
	SizeBytes   int64          `json:"size_bytes"`
	StoragePath string         `json:"-"`
	Source      DocumentSource `json:"source"`
	SenderEmail string         `json:"sender_email,omitempty"`
	Excerpt     string         `json:"excerpt,omitempty"`
	UploadedAt  time.Time      `json:"uploaded_at"`
}

// DuplicateInfo is the read-only view of a stored document that matched an
// upload candidate. It only informs the user; it never blocks storage.
type DuplicateInfo struct {
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	UploadedAt time.Time `json:"uploaded_at"`
	Category   Category  `json:"category"`
}

// Duplicate projects a document onto the fields shown in a duplicate warning.
func (d *Document) Duplicate() *DuplicateInfo {
	return &DuplicateInfo{
		DocumentID: d.ID,
		Title:      d.Title,
		UploadedAt: d.UploadedAt,
		Category:   d.Category,
	}
}
