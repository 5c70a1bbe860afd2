package models

import "errors"

var (
	ErrInvalidFormat        = errors.New("invalid format")
	ErrDuplicateEntry       = errors.New("entry already exists")
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrDuplicateCheckFailed = errors.New("duplicate check failed")
	ErrUploadFailed         = errors.New("upload failed")

	// ErrBatchInProgress is returned when an owner starts a second upload
	// batch while another one is unresolved.
	ErrBatchInProgress   = errors.New("another upload batch is in progress")
	ErrInvalidTransition = errors.New("invalid upload state transition")
)
