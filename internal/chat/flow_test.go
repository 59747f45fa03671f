package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Taoreunda/ptsd-homework-agent/internal/log"
	"github.com/Taoreunda/ptsd-homework-agent/internal/session"
)

// mockClient scripts model completions and records invocations.
type mockClient struct {
	reply    string
	err      error
	calls    int
	lastSeen []ModelMessage
}

func (m *mockClient) Complete(_ context.Context, history []ModelMessage) (string, error) {
	m.calls++
	m.lastSeen = history
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func newTestFlow(fake *fakeLog, client Client) *Flow {
	return NewFlow(FlowConfig{
		Bridge:       NewBridge(fake, log.NewNop()),
		Client:       client,
		Guard:        NewGuard(time.Minute),
		HistoryTurns: 10,
		Greeting:     "%s님, 안녕하세요. 오늘 어떤 이야기를 해보고 싶으신가요?",
		Logger:       log.NewNop(),
	})
}

func TestFlowRunRecordsExchange(t *testing.T) {
	fake := newFakeLog()
	client := &mockClient{reply: "hi there"}
	flow := newTestFlow(fake, client)
	sid := uuid.New()

	res, err := flow.Run(context.Background(), Exchange{
		SessionID:   sid,
		ExchangeKey: "turn-1",
		UserText:    "hello",
		StartedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.AssistantText != "hi there" {
		t.Errorf("AssistantText = %q, want %q", res.AssistantText, "hi there")
	}
	if res.Duplicate {
		t.Error("first run should not be marked duplicate")
	}
	if client.calls != 1 {
		t.Errorf("model calls = %d, want 1", client.calls)
	}

	// The model context must already include the pending user message.
	if n := len(client.lastSeen); n == 0 || client.lastSeen[n-1].Content != "hello" {
		t.Errorf("model context should end with the user message, got %+v", client.lastSeen)
	}

	history, _ := fake.History(context.Background(), sid)
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
}

func TestFlowRunDuplicateAnsweredFromLog(t *testing.T) {
	fake := newFakeLog()
	client := &mockClient{reply: "hi there"}
	flow := newTestFlow(fake, client)
	sid := uuid.New()
	ex := Exchange{SessionID: sid, ExchangeKey: "turn-1", UserText: "hello", StartedAt: time.Now()}

	if _, err := flow.Run(context.Background(), ex); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}

	res, err := flow.Run(context.Background(), ex)
	if err != nil {
		t.Fatalf("duplicate Run() error: %v", err)
	}
	if !res.Duplicate {
		t.Error("second run should be marked duplicate")
	}
	if res.AssistantText != "hi there" {
		t.Errorf("duplicate should return the stored reply, got %q", res.AssistantText)
	}
	if client.calls != 1 {
		t.Errorf("duplicate must not trigger a model call; calls = %d", client.calls)
	}

	history, _ := fake.History(context.Background(), sid)
	if len(history) != 2 {
		t.Errorf("expected 2 messages total, got %d", len(history))
	}
}

func TestFlowRunModelFailureLeavesUserHalf(t *testing.T) {
	fake := newFakeLog()
	client := &mockClient{err: errors.New("connection refused")}
	flow := newTestFlow(fake, client)
	sid := uuid.New()
	ex := Exchange{SessionID: sid, ExchangeKey: "turn-1", UserText: "hello", StartedAt: time.Now()}

	if _, err := flow.Run(context.Background(), ex); err == nil {
		t.Fatal("Run() should propagate model failure")
	}

	// The participant's input survived the crash.
	history, _ := fake.History(context.Background(), sid)
	if len(history) != 1 || history[0].Role != session.RoleUser {
		t.Fatalf("expected exactly the user half, got %d messages", len(history))
	}

	// Retry with the same key completes only the assistant half.
	client.err = nil
	client.reply = "recovered"
	res, err := flow.Run(context.Background(), ex)
	if err != nil {
		t.Fatalf("retry Run() error: %v", err)
	}
	if res.AssistantText != "recovered" {
		t.Errorf("retry reply = %q, want %q", res.AssistantText, "recovered")
	}

	history, _ = fake.History(context.Background(), sid)
	if len(history) != 2 {
		t.Fatalf("expected 2 messages after recovery, got %d", len(history))
	}
	if history[0].Role != session.RoleUser || history[1].Role != session.RoleAssistant {
		t.Errorf("recovery broke ordering: %s then %s", history[0].Role, history[1].Role)
	}
}

func TestFlowRunGuardSuppresssesInFlight(t *testing.T) {
	fake := newFakeLog()
	client := &mockClient{reply: "ok"}
	flow := newTestFlow(fake, client)
	sid := uuid.New()

	// Hold the latch as if another pass were mid-exchange.
	flow.guard.Admit(sid, "turn-1")

	_, err := flow.Run(context.Background(), Exchange{
		SessionID: sid, ExchangeKey: "turn-1", UserText: "hello",
	})
	if !errors.Is(err, ErrExchangeInFlight) {
		t.Errorf("Run() = %v, want ErrExchangeInFlight", err)
	}
	if client.calls != 0 {
		t.Errorf("suppressed run must not call the model; calls = %d", client.calls)
	}
}

func TestFlowRunRequiresExchangeKey(t *testing.T) {
	flow := newTestFlow(newFakeLog(), &mockClient{reply: "x"})

	_, err := flow.Run(context.Background(), Exchange{SessionID: uuid.New(), UserText: "hello"})
	if !errors.Is(err, ErrMissingExchangeKey) {
		t.Errorf("Run() = %v, want ErrMissingExchangeKey", err)
	}
}

func TestFlowGreeting(t *testing.T) {
	flow := newTestFlow(newFakeLog(), &mockClient{})

	got := flow.Greeting("민수")
	want := "민수님, 안녕하세요. 오늘 어떤 이야기를 해보고 싶으신가요?"
	if got != want {
		t.Errorf("Greeting() = %q, want %q", got, want)
	}
}

func TestRetryableErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("429 rate limit exceeded"), true},
		{"server error", errors.New("upstream returned 503"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"auth failure", errors.New("401 invalid api key"), false},
		{"bad request", errors.New("400 invalid request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithRetryRecoversTransientFailure(t *testing.T) {
	calls := 0
	inner := clientFunc(func(ctx context.Context, history []ModelMessage) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("503 service unavailable")
		}
		return "ok", nil
	})

	client := WithRetry(inner, RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})

	got, err := client.Complete(context.Background(), nil)
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got != "ok" || calls != 2 {
		t.Errorf("Complete() = %q after %d calls, want ok after 2", got, calls)
	}
}

func TestWithRetryStopsOnPermanentFailure(t *testing.T) {
	calls := 0
	inner := clientFunc(func(ctx context.Context, history []ModelMessage) (string, error) {
		calls++
		return "", errors.New("401 invalid api key")
	})

	client := WithRetry(inner, RetryConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})

	if _, err := client.Complete(context.Background(), nil); err == nil {
		t.Fatal("Complete() should fail on permanent error")
	}
	if calls != 1 {
		t.Errorf("permanent failure retried %d times, want 1 call", calls)
	}
}

// clientFunc adapts a function to the Client interface.
type clientFunc func(ctx context.Context, history []ModelMessage) (string, error)

func (f clientFunc) Complete(ctx context.Context, history []ModelMessage) (string, error) {
	return f(ctx, history)
}
