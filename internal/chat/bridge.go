// Package chat reconstructs conversations from the durable message log and
// records logical exchanges exactly once.
//
// Bridge is the idempotency boundary: every logical "user asked, assistant
// answered" turn carries a caller-supplied exchange key, and recording is
// a no-op for halves already stored. Guard is a per-process latch that
// suppresses redundant re-executions cheaply; the durable exchange-key
// check in Bridge is the correctness mechanism, Guard only saves latency
// and model calls.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Taoreunda/ptsd-homework-agent/internal/session"
)

// Log is the slice of the session store the bridge needs. Defined here, by
// the consumer, so tests can substitute an in-memory fake.
type Log interface {
	Append(ctx context.Context, p session.AppendParams) (uuid.UUID, error)
	History(ctx context.Context, sessionID uuid.UUID) ([]*session.Message, error)
	Last(ctx context.Context, sessionID uuid.UUID) (*session.Message, error)
	Exchange(ctx context.Context, sessionID uuid.UUID, key string) (session.ExchangeState, error)
}

// Turn is one logical exchange to record.
type Turn struct {
	SessionID           uuid.UUID
	ExchangeKey         string
	UserText            string
	AssistantText       string
	UserStartedAt       time.Time
	AssistantFinishedAt time.Time
}

// Bridge translates logical exchanges into message-log appends and
// reconstructs model context windows from the log.
type Bridge struct {
	log    Log
	logger *slog.Logger
}

// NewBridge creates a conversation bridge over the given message log.
func NewBridge(log Log, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{log: log, logger: logger}
}

// AppendTurn records one logical exchange as two ordered appends
// (role=user then role=assistant), at most once per exchange key.
//
// Idempotency and partial recovery: halves already recorded under the key
// are skipped, so a retry after a crash between the two appends writes
// only the missing assistant half and never duplicates the user half. A
// fully recorded exchange returns success without writing.
//
// The assistant message's response time is AssistantFinishedAt minus
// UserStartedAt. The user message's response time is the gap since the
// previous assistant message, when one exists.
func (b *Bridge) AppendTurn(ctx context.Context, t Turn) error {
	if t.ExchangeKey == "" {
		return ErrMissingExchangeKey
	}

	state, err := b.log.Exchange(ctx, t.SessionID, t.ExchangeKey)
	if err != nil {
		return fmt.Errorf("checking exchange %s: %w", t.ExchangeKey, err)
	}
	if state.Complete() {
		b.logger.Debug("duplicate exchange suppressed",
			"session_id", t.SessionID, "exchange_key", t.ExchangeKey)
		return nil
	}

	if !state.UserRecorded {
		if err := b.RecordUserTurn(ctx, t.SessionID, t.ExchangeKey, t.UserText, t.UserStartedAt); err != nil {
			return err
		}
	}
	return b.RecordAssistantTurn(ctx, t.SessionID, t.ExchangeKey, t.AssistantText,
		t.UserStartedAt, t.AssistantFinishedAt)
}

// RecordUserTurn durably appends the user half of an exchange. Idempotent
// per exchange key. Called before the model request so that a crash
// mid-call loses nothing the participant typed.
func (b *Bridge) RecordUserTurn(ctx context.Context, sessionID uuid.UUID, key, text string, startedAt time.Time) error {
	if key == "" {
		return ErrMissingExchangeKey
	}

	state, err := b.log.Exchange(ctx, sessionID, key)
	if err != nil {
		return fmt.Errorf("checking exchange %s: %w", key, err)
	}
	if state.UserRecorded {
		return nil
	}

	var responseTime *float64
	last, err := b.log.Last(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reading previous turn: %w", err)
	}
	if last != nil && last.Role == session.RoleAssistant {
		gap := startedAt.Sub(last.Timestamp).Seconds()
		if gap >= 0 {
			responseTime = &gap
		}
	}

	_, err = b.log.Append(ctx, session.AppendParams{
		SessionID:    sessionID,
		Role:         session.RoleUser,
		Content:      text,
		ExchangeKey:  key,
		ResponseTime: responseTime,
	})
	if err != nil {
		// A straggler pass in another process can commit this half between
		// our state check and the insert. The half is durable either way.
		if errors.Is(err, session.ErrDuplicateHalf) {
			b.logger.Debug("user half recorded by a concurrent pass",
				"session_id", sessionID, "exchange_key", key)
			return nil
		}
		return fmt.Errorf("recording user turn: %w", err)
	}
	return nil
}

// RecordAssistantTurn durably appends the assistant half of an exchange.
// Idempotent per exchange key.
func (b *Bridge) RecordAssistantTurn(ctx context.Context, sessionID uuid.UUID, key, text string, userStartedAt, finishedAt time.Time) error {
	if key == "" {
		return ErrMissingExchangeKey
	}

	state, err := b.log.Exchange(ctx, sessionID, key)
	if err != nil {
		return fmt.Errorf("checking exchange %s: %w", key, err)
	}
	if state.AssistantRecorded {
		return nil
	}

	rt := finishedAt.Sub(userStartedAt).Seconds()
	_, err = b.log.Append(ctx, session.AppendParams{
		SessionID:    sessionID,
		Role:         session.RoleAssistant,
		Content:      text,
		ExchangeKey:  key,
		ResponseTime: &rt,
	})
	if err != nil {
		if errors.Is(err, session.ErrDuplicateHalf) {
			b.logger.Debug("assistant half recorded by a concurrent pass",
				"session_id", sessionID, "exchange_key", key)
			return nil
		}
		return fmt.Errorf("recording assistant turn: %w", err)
	}
	return nil
}

// HistoryForModel returns the most recent maxTurns exchanges as role/content
// pairs for the next model context window. Older turns fall out of the
// prompt but stay in durable storage. maxTurns <= 0 means no windowing.
func (b *Bridge) HistoryForModel(ctx context.Context, sessionID uuid.UUID, maxTurns int) ([]ModelMessage, error) {
	messages, err := b.log.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	out := make([]ModelMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role != session.RoleUser && m.Role != session.RoleAssistant {
			continue
		}
		out = append(out, ModelMessage{Role: m.Role, Content: m.Content})
	}

	if maxTurns > 0 && len(out) > maxTurns*2 {
		out = out[len(out)-maxTurns*2:]
	}
	return out, nil
}

// RecordedReply returns the assistant text stored under an exchange key,
// used to answer a duplicate submission without another model call.
func (b *Bridge) RecordedReply(ctx context.Context, sessionID uuid.UUID, key string) (string, error) {
	messages, err := b.log.History(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("loading history: %w", err)
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].ExchangeKey == key && messages[i].Role == session.RoleAssistant {
			return messages[i].Content, nil
		}
	}
	return "", fmt.Errorf("no recorded reply for exchange %s", key)
}
