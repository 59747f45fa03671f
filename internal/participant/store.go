package participant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// Store manages participant persistence.
// Safe for concurrent use; all mutations are single statements or run in
// transactions against the database.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a participant store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

const participantColumns = `user_id, COALESCE(username, ''), name, group_type, status,
	COALESCE(phone, ''), COALESCE(gender, ''), COALESCE(age, 0),
	COALESCE(enrolled_date, NOW()), COALESCE(session_limit, 0), created_at, updated_at`

func scanParticipant(row pgx.Row) (*Participant, error) {
	var p Participant
	err := row.Scan(&p.UserID, &p.Username, &p.Name, &p.Group, &p.Status,
		&p.Phone, &p.Gender, &p.Age, &p.EnrolledDate, &p.SessionLimit,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Authenticate verifies a user ID and password against an active participant
// row. Matches the research-code login model: a plain equality check, never
// logged with the password.
//
// Returns ErrBadCredentials when the pair does not match, ErrInactive when
// the participant exists but is not eligible to log in.
func (s *Store) Authenticate(ctx context.Context, userID, password string) (*Participant, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}

	var stored string
	err = s.pool.QueryRow(ctx, `SELECT password FROM participants WHERE user_id = $1`, userID).Scan(&stored)
	if err != nil {
		return nil, fmt.Errorf("reading credentials for %s: %w", userID, err)
	}
	if stored != password {
		s.logger.Warn("login failed", "user_id", userID)
		return nil, ErrBadCredentials
	}
	if p.Status != StatusActive {
		s.logger.Warn("login refused for non-active participant", "user_id", userID, "status", p.Status)
		return nil, ErrInactive
	}

	s.logger.Info("login succeeded", "user_id", userID, "group", p.Group)
	return p, nil
}

// Get retrieves a participant by user ID.
func (s *Store) Get(ctx context.Context, userID string) (*Participant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE user_id = $1`, userID)

	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("getting participant %s: %w", userID, err)
	}
	return p, nil
}

// List returns all participants ordered by user ID.
func (s *Store) List(ctx context.Context) ([]*Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM participants ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	defer rows.Close()

	var out []*Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	return out, nil
}

// Create registers a new participant. The password is stored as provided;
// these are study enrollment codes, not user-chosen credentials.
func (s *Store) Create(ctx context.Context, p *Participant, password string) error {
	if !ValidGroup(p.Group) {
		return fmt.Errorf("%w: %q", ErrInvalidGroup, p.Group)
	}
	status := p.Status
	if status == "" {
		status = StatusActive
	}
	if !ValidStatus(status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO participants (user_id, username, password, name, group_type, status,
		                          phone, gender, age, session_limit)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, 0), NULLIF($10, 0))`,
		p.UserID, p.Username, password, p.Name, p.Group, status,
		p.Phone, p.Gender, p.Age, p.SessionLimit)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicate, p.UserID)
		}
		return fmt.Errorf("creating participant %s: %w", p.UserID, err)
	}

	s.logger.Info("participant created", "user_id", p.UserID, "group", p.Group)
	return nil
}

// Apply performs a partial update: only the fields set in u change, applied
// as a typed merge in a single statement.
func (s *Store) Apply(ctx context.Context, userID string, u Update) error {
	if u.IsEmpty() {
		return ErrEmptyUpdate
	}
	if u.Status != nil && !ValidStatus(*u.Status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, *u.Status)
	}

	set := make([]string, 0, 8)
	args := make([]any, 0, 9)
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Password != nil {
		add("password", *u.Password)
	}
	if u.Phone != nil {
		add("phone", *u.Phone)
	}
	if u.Gender != nil {
		add("gender", *u.Gender)
	}
	if u.Age != nil {
		add("age", *u.Age)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.SessionLimit != nil {
		add("session_limit", *u.SessionLimit)
	}
	set = append(set, "updated_at = NOW()")

	args = append(args, userID)
	query := fmt.Sprintf("UPDATE participants SET %s WHERE user_id = $%d",
		strings.Join(set, ", "), len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating participant %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, userID)
	}

	s.logger.Info("participant updated", "user_id", userID, "fields", len(set)-1)
	return nil
}

// SetStatus updates only the participation status.
func (s *Store) SetStatus(ctx context.Context, userID, status string) error {
	return s.Apply(ctx, userID, Update{Status: &status})
}

// Delete removes a participant. Sessions and messages cascade at the
// database level.
func (s *Store) Delete(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM participants WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deleting participant %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, userID)
	}

	s.logger.Info("participant deleted", "user_id", userID)
	return nil
}

// Stats reports one participant's research activity.
func (s *Store) Stats(ctx context.Context, userID string) (*Stats, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT p.user_id, p.name, p.group_type, p.status,
		       COUNT(s.session_id),
		       COALESCE(SUM(s.message_count), 0),
		       MAX(s.last_accessed)
		FROM participants p
		LEFT JOIN sessions s ON s.user_id = p.user_id
		WHERE p.user_id = $1
		GROUP BY p.user_id, p.name, p.group_type, p.status`, userID)

	var st Stats
	err := row.Scan(&st.UserID, &st.Name, &st.Group, &st.Status,
		&st.CompletedSessions, &st.TotalMessages, &st.LastSessionAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("reading stats for %s: %w", userID, err)
	}
	return &st, nil
}

// Summary aggregates study-wide participation counts for the admin overview.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'active'),
		       COUNT(*) FILTER (WHERE group_type = 'treatment'),
		       COUNT(*) FILTER (WHERE group_type = 'control'),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'dropout'),
		       COALESCE((SELECT AVG(cnt) FROM (
		           SELECT COUNT(*)::float AS cnt
		           FROM sessions s
		           JOIN participants sp ON sp.user_id = s.user_id
		           WHERE sp.group_type <> 'admin'
		           GROUP BY s.user_id
		       ) per_user), 0)
		FROM participants
		WHERE group_type <> 'admin'`)

	var sum Summary
	err := row.Scan(&sum.TotalParticipants, &sum.ActiveParticipants,
		&sum.TreatmentGroup, &sum.ControlGroup,
		&sum.CompletedCount, &sum.DropoutCount, &sum.AvgSessionsEach)
	if err != nil {
		return nil, fmt.Errorf("reading participant summary: %w", err)
	}
	return &sum, nil
}
