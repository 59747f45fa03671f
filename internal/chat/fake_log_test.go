package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Taoreunda/ptsd-homework-agent/internal/session"
)

// fakeLog is an in-memory Log with the same sequencing semantics as the
// durable store: the log assigns sequence numbers, never the caller.
type fakeLog struct {
	mu       sync.Mutex
	messages map[uuid.UUID][]*session.Message

	appendErr   error // injected failure for the next Append
	exchangeErr error
	now         time.Time // advance manually to control timestamps
}

func newFakeLog() *fakeLog {
	return &fakeLog{
		messages: make(map[uuid.UUID][]*session.Message),
		now:      time.Unix(1_700_000_000, 0),
	}
}

func (f *fakeLog) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeLog) Append(_ context.Context, p session.AppendParams) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.appendErr != nil {
		err := f.appendErr
		f.appendErr = nil
		return uuid.Nil, err
	}

	msgs := f.messages[p.SessionID]
	for _, m := range msgs {
		if p.ExchangeKey != "" && m.ExchangeKey == p.ExchangeKey && m.Role == p.Role {
			return uuid.Nil, fmt.Errorf("%w: %s/%s", session.ErrDuplicateHalf, p.ExchangeKey, p.Role)
		}
	}

	m := &session.Message{
		ID:             uuid.New(),
		SessionID:      p.SessionID,
		Role:           p.Role,
		Content:        p.Content,
		Length:         len([]rune(p.Content)),
		SequenceNumber: len(msgs) + 1,
		ExchangeKey:    p.ExchangeKey,
		Timestamp:      f.now,
		ResponseTime:   p.ResponseTime,
	}
	f.messages[p.SessionID] = append(msgs, m)
	return m.ID, nil
}

func (f *fakeLog) History(_ context.Context, sessionID uuid.UUID) ([]*session.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*session.Message, len(f.messages[sessionID]))
	copy(out, f.messages[sessionID])
	return out, nil
}

func (f *fakeLog) Last(_ context.Context, sessionID uuid.UUID) (*session.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[sessionID]
	if len(msgs) == 0 {
		return nil, nil
	}
	return msgs[len(msgs)-1], nil
}

func (f *fakeLog) Exchange(_ context.Context, sessionID uuid.UUID, key string) (session.ExchangeState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.exchangeErr != nil {
		err := f.exchangeErr
		f.exchangeErr = nil
		return session.ExchangeState{}, err
	}

	var state session.ExchangeState
	for _, m := range f.messages[sessionID] {
		if m.ExchangeKey != key {
			continue
		}
		switch m.Role {
		case session.RoleUser:
			state.UserRecorded = true
		case session.RoleAssistant:
			state.AssistantRecorded = true
		}
	}
	return state, nil
}
