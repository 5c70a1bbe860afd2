package models

import "time"

// WhitelistEntry is a sender address a user has allowed to contribute
// documents by email. Entries are created and deleted, never edited.
type WhitelistEntry struct {
	ID           string    `json:"id"`
	OwnerUserID  string    `json:"owner_user_id"`
	AllowedEmail string    `json:"allowed_email"`
	CreatedAt    time.Time `json:"created_at"`
}
