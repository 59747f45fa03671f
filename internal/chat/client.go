package chat

import "context"

// ModelMessage is one role/content pair in the model context window.
type ModelMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the language-model collaborator: windowed history in (ending
// with the pending user message), completion text out. Implementations
// must honor ctx cancellation; a canceled call is never recorded.
type Client interface {
	Complete(ctx context.Context, history []ModelMessage) (string, error)
}
