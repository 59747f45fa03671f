package testutil

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SeedParticipant inserts an active participant row directly, bypassing the
// store, so session tests do not depend on the participant package.
func SeedParticipant(t *testing.T, pool *pgxpool.Pool, userID, name string) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `
		INSERT INTO participants (user_id, password, name, group_type, status)
		VALUES ($1, $2, $3, 'treatment', 'active')`,
		userID, userID+"-pw", name)
	if err != nil {
		t.Fatalf("seeding participant %s: %v", userID, err)
	}
}
