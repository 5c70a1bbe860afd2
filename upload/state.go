package upload

import (
	"fmt"

	"github.com/meinedokbox/dokbox/models"
)

// State is a step of the upload confirmation flow.
type State string

const (
	StateIdle                 State = "idle"
	StateCheckingDuplicates   State = "checking_duplicates"
	StateNoDuplicates         State = "no_duplicates"
	StateDuplicatesFound      State = "duplicates_found"
	StateAwaitingUserDecision State = "awaiting_user_decision"
	StateUploading            State = "uploading"
	StateUploadingAnyway      State = "uploading_anyway"
	StateDone                 State = "done"
	StateCancelled            State = "cancelled"

	// StateCheckFailed holds a batch whose duplicate lookups failed. Nothing
	// is uploaded until a retry completes the checks.
	StateCheckFailed State = "check_failed"
	// StateUploadFailed holds a batch whose upload failed after the
	// decision. It can be retried or cancelled.
	StateUploadFailed State = "upload_failed"
)

var transitions = map[State][]State{
	StateIdle:                 {StateCheckingDuplicates},
	StateCheckingDuplicates:   {StateNoDuplicates, StateDuplicatesFound, StateCheckFailed},
	StateNoDuplicates:         {StateUploading},
	StateDuplicatesFound:      {StateAwaitingUserDecision},
	StateAwaitingUserDecision: {StateCancelled, StateUploadingAnyway},
	StateUploading:            {StateDone, StateUploadFailed},
	StateUploadingAnyway:      {StateDone, StateUploadFailed},
	StateCheckFailed:          {StateCheckingDuplicates, StateCancelled},
	StateUploadFailed:         {StateUploading, StateUploadingAnyway, StateCheckingDuplicates, StateCancelled},
}

// Terminal reports whether s ends the flow.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled
}

// CanTransition reports whether the flow may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}
	return nil
}
