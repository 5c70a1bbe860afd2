package models

// UploadCandidate is one file of an upload batch. It lives only as long as
// the batch and is never persisted.
type UploadCandidate struct {
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type"`
	SizeBytes   int64          `json:"size_bytes"`
	ContentHash string         `json:"content_hash,omitempty"`
	Data        []byte         `json:"-"`
	Duplicate   *DuplicateInfo `json:"duplicate,omitempty"`
}
