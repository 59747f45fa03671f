package participant

import "errors"

// Sentinel errors for participant operations, checked with errors.Is().
var (
	// ErrNotFound indicates no participant exists with the given user ID.
	ErrNotFound = errors.New("participant not found")

	// ErrInactive indicates the participant's status is not active, so
	// authentication and session creation are refused.
	ErrInactive = errors.New("participant not active")

	// ErrBadCredentials indicates the user ID / password pair did not match.
	ErrBadCredentials = errors.New("invalid credentials")

	// ErrDuplicate indicates the user ID or username is already registered.
	ErrDuplicate = errors.New("participant already exists")

	// ErrInvalidGroup indicates an unknown group assignment.
	ErrInvalidGroup = errors.New("invalid group")

	// ErrInvalidStatus indicates an unknown participation status.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrEmptyUpdate indicates a partial update listing no fields.
	ErrEmptyUpdate = errors.New("empty update")
)

// ValidGroup reports whether g is a known group assignment.
func ValidGroup(g string) bool {
	switch g {
	case GroupTreatment, GroupControl, GroupAdmin:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known participation status.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusInactive, StatusCompleted, StatusDropout:
		return true
	}
	return false
}
