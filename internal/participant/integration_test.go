//go:build integration
// +build integration

package participant_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Taoreunda/ptsd-homework-agent/internal/log"
	"github.com/Taoreunda/ptsd-homework-agent/internal/participant"
	"github.com/Taoreunda/ptsd-homework-agent/internal/session"
	"github.com/Taoreunda/ptsd-homework-agent/internal/testutil"
)

func TestParticipantLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.SetupTestDB(t)
	store := participant.NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	p := &participant.Participant{
		UserID: "p001",
		Name:   "민수",
		Group:  participant.GroupTreatment,
		Age:    34,
	}
	require.NoError(t, store.Create(ctx, p, "code-123"))

	// Duplicate registration is refused.
	err := store.Create(ctx, p, "code-123")
	assert.ErrorIs(t, err, participant.ErrDuplicate)

	got, err := store.Get(ctx, "p001")
	require.NoError(t, err)
	assert.Equal(t, "민수", got.Name)
	assert.Equal(t, participant.StatusActive, got.Status, "status defaults to active")
	assert.Equal(t, 34, got.Age)

	// Partial update touches only the named fields.
	newName := "김민수"
	newStatus := participant.StatusCompleted
	require.NoError(t, store.Apply(ctx, "p001", participant.Update{
		Name:   &newName,
		Status: &newStatus,
	}))

	got, err = store.Get(ctx, "p001")
	require.NoError(t, err)
	assert.Equal(t, "김민수", got.Name)
	assert.Equal(t, participant.StatusCompleted, got.Status)
	assert.Equal(t, 34, got.Age, "unnamed fields must be untouched")

	assert.ErrorIs(t, store.Apply(ctx, "p001", participant.Update{}), participant.ErrEmptyUpdate)
}

func TestAuthenticate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.SetupTestDB(t)
	store := participant.NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &participant.Participant{
		UserID: "p001", Name: "민수", Group: participant.GroupTreatment,
	}, "code-123"))

	p, err := store.Authenticate(ctx, "p001", "code-123")
	require.NoError(t, err)
	assert.Equal(t, "p001", p.UserID)

	_, err = store.Authenticate(ctx, "p001", "wrong")
	assert.ErrorIs(t, err, participant.ErrBadCredentials)

	// Unknown user is indistinguishable from a wrong password.
	_, err = store.Authenticate(ctx, "ghost", "code-123")
	assert.ErrorIs(t, err, participant.ErrBadCredentials)

	require.NoError(t, store.SetStatus(ctx, "p001", participant.StatusDropout))
	_, err = store.Authenticate(ctx, "p001", "code-123")
	assert.ErrorIs(t, err, participant.ErrInactive)
}

func TestDeleteCascadesSessions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.SetupTestDB(t)
	participants := participant.NewStore(db.Pool, log.NewNop())
	sessions := session.NewStore(db.Pool, time.Hour, log.NewNop())
	ctx := context.Background()

	require.NoError(t, participants.Create(ctx, &participant.Participant{
		UserID: "p001", Name: "민수", Group: participant.GroupControl,
	}, "code-123"))

	res, err := sessions.ResolveOrCreate(ctx, "p001")
	require.NoError(t, err)
	_, err = sessions.Append(ctx, session.AppendParams{
		SessionID: res.SessionID, Role: session.RoleUser, Content: "hello",
	})
	require.NoError(t, err)

	require.NoError(t, participants.Delete(ctx, "p001"))

	var count int
	err = db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count, "messages cascade with their participant")
}

func TestStatsAndSummary(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.SetupTestDB(t)
	participants := participant.NewStore(db.Pool, log.NewNop())
	sessions := session.NewStore(db.Pool, time.Hour, log.NewNop())
	ctx := context.Background()

	require.NoError(t, participants.Create(ctx, &participant.Participant{
		UserID: "p001", Name: "민수", Group: participant.GroupTreatment,
	}, "a"))
	require.NoError(t, participants.Create(ctx, &participant.Participant{
		UserID: "p002", Name: "영희", Group: participant.GroupControl,
	}, "b"))
	require.NoError(t, participants.Create(ctx, &participant.Participant{
		UserID: "adm1", Name: "연구자", Group: participant.GroupAdmin,
	}, "c"))

	res, err := sessions.ResolveOrCreate(ctx, "p001")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := sessions.Append(ctx, session.AppendParams{
			SessionID: res.SessionID, Role: session.RoleUser, Content: "m",
		})
		require.NoError(t, err)
	}

	// Give the admin more sessions than any participant; the study average
	// must not move.
	adm, err := sessions.ResolveOrCreate(ctx, "adm1")
	require.NoError(t, err)
	require.NoError(t, sessions.EndSession(ctx, adm.SessionID))
	_, err = sessions.ResolveOrCreate(ctx, "adm1")
	require.NoError(t, err)

	st, err := participants.Stats(ctx, "p001")
	require.NoError(t, err)
	assert.Equal(t, 1, st.CompletedSessions)
	assert.Equal(t, 3, st.TotalMessages)
	assert.NotNil(t, st.LastSessionAt)

	sum, err := participants.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalParticipants, "admins stay out of study counts")
	assert.Equal(t, 1, sum.TreatmentGroup)
	assert.Equal(t, 1, sum.ControlGroup)
	assert.InDelta(t, 1.0, sum.AvgSessionsEach, 0.001,
		"admin sessions must not skew the per-participant average")
}
