package patient

import "github.com/clinicore/intake/internal/platform/apperr"

// Status is the record's lifecycle stage: a strictly linear path. Nothing
// moves a record backward; the edit-request flow mutates fields only.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReviewed  Status = "reviewed"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReviewed, StatusCompleted:
		return true
	}
	return false
}

// next returns the single legal successor, or "" for the terminal state.
func (s Status) next() Status {
	switch s {
	case StatusPending:
		return StatusReviewed
	case StatusReviewed:
		return StatusCompleted
	}
	return ""
}

// Advance validates the transition from s to target. Transitions are
// all-or-nothing: on error the caller must leave the record untouched.
func (s Status) Advance(target Status) error {
	if !target.Valid() {
		return &apperr.InvalidTransitionError{From: string(s), To: string(target)}
	}
	if s.next() != target {
		return &apperr.InvalidTransitionError{From: string(s), To: string(target)}
	}
	return nil
}
