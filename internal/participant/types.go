// Package participant manages research participant records.
//
// Participants are owned by the admin workflow; the session layer consumes
// them read-only to decide whether a conversation session may be created.
package participant

import "time"

// Group assignment values.
const (
	GroupTreatment = "treatment"
	GroupControl   = "control"
	GroupAdmin     = "admin"
)

// Participation status values.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusCompleted = "completed"
	StatusDropout   = "dropout"
)

// Participant is one research participant record.
type Participant struct {
	UserID       string
	Username     string
	Name         string
	Group        string
	Status       string
	Phone        string
	Gender       string
	Age          int
	EnrolledDate time.Time
	SessionLimit int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Update is a partial-update request: only non-nil fields are applied.
// The caller states explicitly which columns it intends to change; there is
// no implicit "overwrite with whatever happens to be set" path.
type Update struct {
	Name         *string
	Password     *string
	Phone        *string
	Gender       *string
	Age          *int
	Status       *string
	SessionLimit *int
}

// IsEmpty reports whether the update would change nothing.
func (u Update) IsEmpty() bool {
	return u.Name == nil && u.Password == nil && u.Phone == nil &&
		u.Gender == nil && u.Age == nil && u.Status == nil && u.SessionLimit == nil
}

// Stats summarizes one participant's research activity.
type Stats struct {
	UserID            string
	Name              string
	Group             string
	Status            string
	CompletedSessions int
	TotalMessages     int
	LastSessionAt     *time.Time
}

// Summary aggregates study-wide participation counts.
type Summary struct {
	TotalParticipants   int
	ActiveParticipants  int
	TreatmentGroup      int
	ControlGroup        int
	CompletedCount      int
	DropoutCount        int
	AvgSessionsEach     float64
}
