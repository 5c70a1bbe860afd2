package models

import "time"

// ReminderPreference stores until when a user has dismissed a reminder.
type ReminderPreference struct {
	OwnerUserID    string    `json:"owner_user_id"`
	Key            string    `json:"key"`
	DismissedUntil time.Time `json:"dismissed_until"`
}

// Visible reports whether the reminder should be shown at now.
func (p *ReminderPreference) Visible(now time.Time) bool {
	if p == nil {
		return true
	}
	return !now.Before(p.DismissedUntil)
}

const ReminderWhitelistSetup = "whitelist-setup"
