package session

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// exchangeConstraint is the partial unique index on
// (session_id, exchange_key, role). A violation means the half is already
// recorded; retrying the identical insert can never succeed.
const exchangeConstraint = "messages_session_exchange_role_unique"

// appendRetries bounds retries when a sequence-number race slips past the
// session row lock (e.g. a competing writer on a different pool).
const appendRetries = 3

// Append adds one message to a session's log and returns the new message ID.
//
// The store, never the caller, assigns sequence_number (max+1 under the
// session row lock), computes the content length, and bumps the parent
// session's message_count and last_accessed in the same transaction. A
// unique violation on (session_id, sequence_number) is retried a bounded
// number of times before surfacing ErrSequenceConflict.
//
// Fails with ErrUnknownSession when sessionID does not reference an active
// session, and with ErrDuplicateHalf when the exchange key already has a
// message in this role — two racing passes for the same logical turn both
// reached the insert; the loser's half is already durable and must not be
// retried.
func (s *Store) Append(ctx context.Context, p AppendParams) (uuid.UUID, error) {
	if !ValidRole(p.Role) {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}

	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		id, err := s.appendOnce(ctx, p)
		if err == nil {
			return id, nil
		}
		if errors.Is(err, ErrDuplicateHalf) {
			return uuid.Nil, err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			s.logger.Debug("sequence conflict, retrying",
				"session_id", p.SessionID, "attempt", attempt+1)
			lastErr = err
			continue
		}
		return uuid.Nil, err
	}
	return uuid.Nil, fmt.Errorf("%w after %d attempts: %w", ErrSequenceConflict, appendRetries, lastErr)
}

func (s *Store) appendOnce(ctx context.Context, p AppendParams) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, unavailable("appending message", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("append transaction rollback", "error", err)
		}
	}()

	// Lock the session row so only one append per session assigns a
	// sequence number at a time.
	var isActive bool
	err = tx.QueryRow(ctx,
		`SELECT is_active FROM sessions WHERE session_id = $1 FOR UPDATE`,
		p.SessionID).Scan(&isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownSession, p.SessionID)
		}
		return uuid.Nil, unavailable("locking session", err)
	}
	if !isActive {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownSession, p.SessionID)
	}

	var maxSeq int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM messages WHERE session_id = $1`,
		p.SessionID).Scan(&maxSeq); err != nil {
		return uuid.Nil, unavailable("reading max sequence", err)
	}

	id := uuid.New()
	length := utf8.RuneCountInString(p.Content)
	if _, err := tx.Exec(ctx, `
		INSERT INTO messages (message_id, session_id, role, content, message_length,
		                      sequence_number, exchange_key, response_time_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`,
		id, p.SessionID, p.Role, p.Content, length,
		maxSeq+1, p.ExchangeKey, p.ResponseTime); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// Only the sequence-number race is retryable; a hit on the
			// exchange index means the same logical half already exists.
			if pgErr.ConstraintName == exchangeConstraint {
				return uuid.Nil, fmt.Errorf("%w: %s/%s", ErrDuplicateHalf, p.ExchangeKey, p.Role)
			}
			return uuid.Nil, err // raw, so Append can classify and retry
		}
		return uuid.Nil, unavailable("inserting message", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE sessions
		SET message_count = message_count + 1, last_accessed = NOW()
		WHERE session_id = $1`, p.SessionID); err != nil {
		return uuid.Nil, unavailable("updating session counters", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, unavailable("appending message", err)
	}

	s.logger.Debug("appended message",
		"session_id", p.SessionID, "role", p.Role,
		"sequence", maxSeq+1, "length", length)
	return id, nil
}

const messageColumns = `message_id, session_id, role, content, message_length,
	sequence_number, COALESCE(exchange_key, ''), timestamp, response_time_seconds`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Length,
		&m.SequenceNumber, &m.ExchangeKey, &m.Timestamp, &m.ResponseTime)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// History returns all of a session's messages ascending by sequence_number.
// Repeated calls with no intervening append return identical results.
func (s *Store) History(ctx context.Context, sessionID uuid.UUID) ([]*Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE session_id = $1 ORDER BY sequence_number ASC`, sessionID)
	if err != nil {
		return nil, unavailable("reading history", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, unavailable("scanning message", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("reading history", err)
	}
	return out, nil
}

// Last returns the most recent message in a session, or nil when the log
// is empty.
func (s *Store) Last(ctx context.Context, sessionID uuid.UUID) (*Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE session_id = $1 ORDER BY sequence_number DESC LIMIT 1`, sessionID)

	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("reading last message", err)
	}
	return m, nil
}

// Exchange reports which halves of the logical exchange identified by key
// are already recorded for the session. Drives idempotent turn recording:
// a retry appends only the missing half.
func (s *Store) Exchange(ctx context.Context, sessionID uuid.UUID, key string) (ExchangeState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role FROM messages
		WHERE session_id = $1 AND exchange_key = $2`, sessionID, key)
	if err != nil {
		return ExchangeState{}, unavailable("reading exchange state", err)
	}
	defer rows.Close()

	var state ExchangeState
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return ExchangeState{}, unavailable("scanning exchange state", err)
		}
		switch role {
		case RoleUser:
			state.UserRecorded = true
		case RoleAssistant:
			state.AssistantRecorded = true
		}
	}
	if err := rows.Err(); err != nil {
		return ExchangeState{}, unavailable("reading exchange state", err)
	}
	return state, nil
}
