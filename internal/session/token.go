package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tokens resolves opaque resumption tokens back to identities.
//
// A token is minted with its session (ResolveOrCreate) and stays bound to
// it for life; Issue rotates a session's token without creating a session.
// Tokens are honored only while the owning session is active, inside the
// inactivity window, and the participant is still eligible.
type Tokens struct {
	pool   *pgxpool.Pool
	window time.Duration
	logger *slog.Logger
}

// NewTokens creates a token resolver sharing the session store's pool and
// inactivity window.
func NewTokens(pool *pgxpool.Pool, window time.Duration, logger *slog.Logger) *Tokens {
	if window <= 0 {
		window = DefaultInactivityWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tokens{pool: pool, window: window, logger: logger}
}

// Issue rotates the token on the user's active session and returns the new
// one. The old token stops resolving immediately; other users' tokens are
// unaffected. Fails with ErrTokenNotFound when the user has no active
// session to attach a token to.
func (t *Tokens) Issue(ctx context.Context, userID string) (uuid.UUID, error) {
	token := uuid.New()
	tag, err := t.pool.Exec(ctx, `
		UPDATE sessions SET session_token = $1
		WHERE user_id = $2 AND is_active`, token, userID)
	if err != nil {
		return uuid.Nil, unavailable("issuing token", err)
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, fmt.Errorf("%w: no active session for %s", ErrTokenNotFound, userID)
	}

	t.logger.Debug("rotated session token", "user_id", userID)
	return token, nil
}

// Resolve maps a token to its participant and session.
//
// Fails with ErrTokenNotFound for unknown tokens, ErrTokenExpired when the
// session has been deactivated or idled past the window, and
// ErrParticipantInactive when the participant is no longer eligible.
func (t *Tokens) Resolve(ctx context.Context, token uuid.UUID) (Identity, error) {
	row := t.pool.QueryRow(ctx, `
		SELECT s.user_id, s.session_id, s.is_active, s.last_accessed, p.status
		FROM sessions s
		JOIN participants p ON p.user_id = s.user_id
		WHERE s.session_token = $1`, token)

	var (
		id           Identity
		isActive     bool
		lastAccessed time.Time
		status       string
	)
	err := row.Scan(&id.UserID, &id.SessionID, &isActive, &lastAccessed, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrTokenNotFound
		}
		return Identity{}, unavailable("resolving token", err)
	}

	if !isActive || time.Since(lastAccessed) > t.window {
		return Identity{}, fmt.Errorf("%w: session %s", ErrTokenExpired, id.SessionID)
	}
	if status != "active" {
		return Identity{}, fmt.Errorf("%w: %s (status=%s)", ErrParticipantInactive, id.UserID, status)
	}

	t.logger.Debug("resolved token", "user_id", id.UserID, "session_id", id.SessionID)
	return id, nil
}

// Touch bumps the liveness of the token's session, keeping it inside the
// inactivity window. Failure modes mirror Resolve: ErrTokenNotFound for an
// unknown token, ErrTokenExpired when the owning session has been ended.
func (t *Tokens) Touch(ctx context.Context, token uuid.UUID) error {
	tag, err := t.pool.Exec(ctx, `
		UPDATE sessions SET last_accessed = NOW()
		WHERE session_token = $1 AND is_active`, token)
	if err != nil {
		return unavailable("touching token", err)
	}
	if tag.RowsAffected() == 0 {
		var sessionID uuid.UUID
		err := t.pool.QueryRow(ctx,
			`SELECT session_id FROM sessions WHERE session_token = $1`, token).Scan(&sessionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTokenNotFound
			}
			return unavailable("touching token", err)
		}
		return fmt.Errorf("%w: session %s", ErrTokenExpired, sessionID)
	}
	return nil
}
