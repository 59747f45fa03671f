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

// Store manages session lifecycle and the per-session message log against
// PostgreSQL. Safe for concurrent use by multiple goroutines; correctness
// under concurrent UI passes comes from row-level locking inside
// transactions, not from anything in this process.
type Store struct {
	pool   *pgxpool.Pool
	window time.Duration // inactivity window; stale active sessions are not resumed
	logger *slog.Logger
}

// NewStore creates a session store.
// window <= 0 falls back to DefaultInactivityWindow.
func NewStore(pool *pgxpool.Pool, window time.Duration, logger *slog.Logger) *Store {
	if window <= 0 {
		window = DefaultInactivityWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, window: window, logger: logger}
}

// Window returns the configured inactivity window.
func (s *Store) Window() time.Duration { return s.window }

// unavailable wraps non-domain backend failures so callers can classify
// them with errors.Is(err, ErrUnavailable).
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// ResolveOrCreate returns the participant's single active session, creating
// one only when none is resumable.
//
// The whole check-then-create runs in one transaction that first locks the
// participant row (SELECT ... FOR UPDATE). That row is the per-user
// mutual-exclusion anchor: a concurrent resolution for the same user blocks
// on the lock and then observes the winner's committed session instead of
// creating a duplicate. The partial unique index one_active_session_per_user
// backstops the invariant at the schema level.
//
// An active session whose last_accessed is older than the inactivity window
// is deactivated here and replaced with a fresh one.
func (s *Store) ResolveOrCreate(ctx context.Context, userID string) (Resolution, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Resolution{}, unavailable("resolving session", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("resolve transaction rollback", "error", err)
		}
	}()

	// Per-user anchor. Serializes all resolutions for this participant.
	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM participants WHERE user_id = $1 FOR UPDATE`,
		userID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resolution{}, fmt.Errorf("%w: %s", ErrParticipantNotFound, userID)
		}
		return Resolution{}, unavailable("locking participant", err)
	}
	if status != "active" {
		return Resolution{}, fmt.Errorf("%w: %s (status=%s)", ErrParticipantInactive, userID, status)
	}

	var (
		sessionID    uuid.UUID
		token        uuid.UUID
		lastAccessed time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT session_id, session_token, last_accessed
		FROM sessions
		WHERE user_id = $1 AND is_active
		ORDER BY last_accessed DESC
		LIMIT 1`, userID).Scan(&sessionID, &token, &lastAccessed)

	switch {
	case err == nil && time.Since(lastAccessed) <= s.window:
		// Resume. This is what makes a page reload continue the same
		// conversation instead of starting a new one.
		if _, err := tx.Exec(ctx,
			`UPDATE sessions SET last_accessed = NOW() WHERE session_id = $1`,
			sessionID); err != nil {
			return Resolution{}, unavailable("touching session", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return Resolution{}, unavailable("resolving session", err)
		}
		s.logger.Debug("resumed session", "user_id", userID, "session_id", sessionID)
		return Resolution{SessionID: sessionID, Token: token, Created: false}, nil

	case err == nil:
		// Active but idle past the window: dead. Retire it in the same
		// transaction so the sweep never has to run first.
		if _, err := tx.Exec(ctx, `
			UPDATE sessions SET is_active = FALSE, end_time = NOW()
			WHERE session_id = $1`, sessionID); err != nil {
			return Resolution{}, unavailable("expiring stale session", err)
		}
		s.logger.Info("expired stale session during resolve",
			"user_id", userID, "session_id", sessionID, "idle", time.Since(lastAccessed))

	case errors.Is(err, pgx.ErrNoRows):
		// No active session; fall through to create.

	default:
		return Resolution{}, unavailable("finding active session", err)
	}

	var sessionCount int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(session_count), 0) + 1 FROM sessions WHERE user_id = $1`,
		userID).Scan(&sessionCount); err != nil {
		return Resolution{}, unavailable("counting sessions", err)
	}

	newID := uuid.New()
	newToken := uuid.New()
	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, session_token, session_count)
		VALUES ($1, $2, $3, $4)`,
		newID, userID, newToken, sessionCount); err != nil {
		return Resolution{}, unavailable("creating session", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Resolution{}, unavailable("resolving session", err)
	}

	s.logger.Info("created session",
		"user_id", userID, "session_id", newID, "session_count", sessionCount)
	return Resolution{SessionID: newID, Token: newToken, Created: true}, nil
}

// Get retrieves a session by ID, active or not.
func (s *Store) Get(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, session_token, start_time, last_accessed,
		       end_time, is_active, session_count, message_count
		FROM sessions WHERE session_id = $1`, sessionID)

	var sess Session
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Token, &sess.StartTime,
		&sess.LastAccessed, &sess.EndTime, &sess.IsActive,
		&sess.SessionCount, &sess.MessageCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
		}
		return nil, unavailable("getting session", err)
	}
	return &sess, nil
}

// ListForUser returns all of a participant's sessions, newest first.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, user_id, session_token, start_time, last_accessed,
		       end_time, is_active, session_count, message_count
		FROM sessions WHERE user_id = $1
		ORDER BY start_time DESC`, userID)
	if err != nil {
		return nil, unavailable("listing sessions", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Token, &sess.StartTime,
			&sess.LastAccessed, &sess.EndTime, &sess.IsActive,
			&sess.SessionCount, &sess.MessageCount); err != nil {
			return nil, unavailable("scanning session", err)
		}
		out = append(out, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("listing sessions", err)
	}
	return out, nil
}

// EndSession deactivates a session (explicit logout). Idempotent: ending a
// session that is already over succeeds.
func (s *Store) EndSession(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET is_active = FALSE, end_time = NOW()
		WHERE session_id = $1 AND is_active`, sessionID)
	if err != nil {
		return unavailable("ending session", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "already ended" from "never existed".
		if _, err := s.Get(ctx, sessionID); err != nil {
			return err
		}
		return nil
	}

	s.logger.Info("ended session", "session_id", sessionID)
	return nil
}

// ExpireInactive deactivates every active session untouched for longer than
// olderThan. Run periodically; ResolveOrCreate also retires stale sessions
// inline, so this is a sweep, not the only defense.
func (s *Store) ExpireInactive(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET is_active = FALSE, end_time = NOW()
		WHERE is_active AND last_accessed < $1`, cutoff)
	if err != nil {
		return 0, unavailable("expiring sessions", err)
	}

	if n := tag.RowsAffected(); n > 0 {
		s.logger.Info("expired inactive sessions", "count", n, "older_than", olderThan)
		return n, nil
	}
	return 0, nil
}
