package session

import "errors"

// Sentinel errors for session operations, part of the store's public API.
// Check with errors.Is().
var (
	// ErrParticipantNotFound indicates the user ID references no participant.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrParticipantInactive indicates the participant's status forbids
	// session creation or resumption. Not retryable without admin action.
	ErrParticipantInactive = errors.New("participant not active")

	// ErrUnknownSession indicates the session ID does not reference an
	// active session.
	ErrUnknownSession = errors.New("unknown or inactive session")

	// ErrTokenNotFound indicates the resumption token matches no session.
	ErrTokenNotFound = errors.New("session token not found")

	// ErrTokenExpired indicates the token's session has been deactivated
	// or idled past the inactivity window. Recoverable by logging in again.
	ErrTokenExpired = errors.New("session token expired")

	// ErrSequenceConflict indicates a write race on sequence assignment
	// persisted through the bounded internal retries. Transient.
	ErrSequenceConflict = errors.New("message sequence conflict")

	// ErrDuplicateHalf indicates this half of the exchange is already
	// durably recorded under the same key, by this or another process.
	// Callers treat it as already-done, not as failure.
	ErrDuplicateHalf = errors.New("exchange half already recorded")

	// ErrUnavailable indicates the backend could not be reached or the
	// operation failed for a non-domain reason. Surfaced as retry-later;
	// callers must not retry automatically within the same UI pass.
	ErrUnavailable = errors.New("session store unavailable")

	// ErrInvalidRole indicates a message role outside user/assistant/system.
	ErrInvalidRole = errors.New("invalid message role")
)

// ValidRole reports whether r is a known message role.
func ValidRole(r string) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}
