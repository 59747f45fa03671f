package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// FlowConfig configures the turn-execution flow.
type FlowConfig struct {
	Bridge       *Bridge
	Client       Client
	Guard        *Guard // nil = no in-process suppression
	HistoryTurns int    // model context window, in exchanges
	Greeting     string // fmt template with one %s for the participant name
	Logger       *slog.Logger
}

// Exchange is one pending logical turn: the participant asked, the
// assistant has not answered yet.
type Exchange struct {
	SessionID   uuid.UUID
	ExchangeKey string
	UserText    string
	StartedAt   time.Time
}

// Result is the outcome of running an exchange.
type Result struct {
	AssistantText string
	// Duplicate is true when the exchange key was already fully recorded
	// and the stored reply was returned without a model call.
	Duplicate bool
}

// Flow sequences one logical turn end to end:
//
//	guard admit -> durable user append -> model call -> durable assistant append
//
// The model call sits between the two appends so that a crash mid-call
// leaves the log in a recoverable partial state (user turn recorded,
// assistant pending) rather than losing the participant's input. A retry
// with the same exchange key appends only the assistant half.
type Flow struct {
	bridge       *Bridge
	client       Client
	guard        *Guard
	historyTurns int
	greeting     string
	logger       *slog.Logger
}

// NewFlow creates a turn-execution flow.
func NewFlow(cfg FlowConfig) *Flow {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		bridge:       cfg.Bridge,
		client:       cfg.Client,
		guard:        cfg.Guard,
		historyTurns: cfg.HistoryTurns,
		greeting:     cfg.Greeting,
		logger:       logger,
	}
}

// Greeting renders the assistant opener for a fresh session.
func (f *Flow) Greeting(participantName string) string {
	if f.greeting == "" {
		return ""
	}
	return fmt.Sprintf(f.greeting, participantName)
}

// Run executes one logical exchange.
//
// A duplicate submission (same exchange key, already fully recorded)
// returns the stored assistant reply without touching the model. A
// submission whose key is currently being processed by another pass in
// this process fails with ErrExchangeInFlight. If the model call fails or
// is canceled, the user half stays recorded and the error propagates;
// retrying with the same key completes only the assistant half.
func (f *Flow) Run(ctx context.Context, ex Exchange) (Result, error) {
	if ex.ExchangeKey == "" {
		return Result{}, ErrMissingExchangeKey
	}
	if ex.StartedAt.IsZero() {
		ex.StartedAt = time.Now()
	}

	if f.guard != nil {
		if !f.guard.Admit(ex.SessionID, ex.ExchangeKey) {
			return Result{}, fmt.Errorf("%w: %s", ErrExchangeInFlight, ex.ExchangeKey)
		}
		defer f.guard.Done(ex.SessionID, ex.ExchangeKey)
	}

	// Durable idempotency check; the guard above is only an optimization.
	state, err := f.bridge.log.Exchange(ctx, ex.SessionID, ex.ExchangeKey)
	if err != nil {
		return Result{}, fmt.Errorf("checking exchange: %w", err)
	}
	if state.Complete() {
		reply, err := f.bridge.RecordedReply(ctx, ex.SessionID, ex.ExchangeKey)
		if err != nil {
			return Result{}, err
		}
		f.logger.Info("duplicate exchange answered from log",
			"session_id", ex.SessionID, "exchange_key", ex.ExchangeKey)
		return Result{AssistantText: reply, Duplicate: true}, nil
	}

	// User half first, so the model call can crash without losing input.
	if err := f.bridge.RecordUserTurn(ctx, ex.SessionID, ex.ExchangeKey, ex.UserText, ex.StartedAt); err != nil {
		return Result{}, err
	}

	history, err := f.bridge.HistoryForModel(ctx, ex.SessionID, f.historyTurns)
	if err != nil {
		return Result{}, err
	}

	reply, err := f.client.Complete(ctx, history)
	if err != nil {
		return Result{}, fmt.Errorf("model call for exchange %s: %w", ex.ExchangeKey, err)
	}

	if err := f.bridge.RecordAssistantTurn(ctx, ex.SessionID, ex.ExchangeKey, reply,
		ex.StartedAt, time.Now()); err != nil {
		return Result{}, err
	}

	f.logger.Debug("exchange completed",
		"session_id", ex.SessionID, "exchange_key", ex.ExchangeKey,
		"user_len", len(ex.UserText), "assistant_len", len(reply))
	return Result{AssistantText: reply}, nil
}
