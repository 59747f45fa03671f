package session

import (
	"time"

	"github.com/google/uuid"
)

// Message role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// DefaultInactivityWindow is how long an active session stays resumable
// without being touched. Sessions idle beyond this are treated as abandoned.
const DefaultInactivityWindow = 7 * 24 * time.Hour

// Session represents one logical conversation lifetime for a participant.
type Session struct {
	ID           uuid.UUID
	UserID       string
	Token        uuid.UUID
	StartTime    time.Time
	LastAccessed time.Time
	EndTime      *time.Time
	IsActive     bool
	SessionCount int // per-user ordinal, research bookkeeping only
	MessageCount int // derived, maintained by the message write path
}

// Message is one turn in a session's log.
type Message struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	Role           string
	Content        string
	Length         int
	SequenceNumber int
	ExchangeKey    string // empty when the writer supplied none
	Timestamp      time.Time
	ResponseTime   *float64 // seconds since the previous turn; nil for the first
}

// Resolution is the result of ResolveOrCreate.
type Resolution struct {
	SessionID uuid.UUID
	Token     uuid.UUID
	Created   bool
}

// Identity is the result of resolving a session token.
type Identity struct {
	UserID    string
	SessionID uuid.UUID
}

// AppendParams describes one message to append to a session's log.
// SequenceNumber is deliberately absent: the store assigns it.
type AppendParams struct {
	SessionID    uuid.UUID
	Role         string
	Content      string
	ExchangeKey  string   // optional; ties the two halves of a logical turn
	ResponseTime *float64 // seconds, nil when not applicable
}

// ExchangeState reports which halves of a logical exchange are already
// durably recorded.
type ExchangeState struct {
	UserRecorded      bool
	AssistantRecorded bool
}

// Complete reports whether both halves are recorded.
func (e ExchangeState) Complete() bool {
	return e.UserRecorded && e.AssistantRecorded
}
