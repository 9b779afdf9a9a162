// Package companion implements the chat companion conversation.
package companion

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/tranquili/internal/domain"
)

// ReplyRequest is what a responder sees for one user turn.
type ReplyRequest struct {
	UserID  string
	Message string
	// History holds the most recent turns, oldest first, including Message.
	History []domain.ChatMessage
}

// Responder produces the companion's reply to a user turn.
type Responder interface {
	Reply(ctx context.Context, req ReplyRequest) (string, error)
	Close() error
}

// Ensure implementations satisfy Responder.
var (
	_ Responder = (*GrpcResponder)(nil)
	_ Responder = EchoResponder{}
)

// EchoResponder answers without any model. Used when no companion sidecar is
// configured.
type EchoResponder struct{}

// Reply reflects the user's message back with a gentle prompt.
func (EchoResponder) Reply(_ context.Context, req ReplyRequest) (string, error) {
	msg := strings.TrimSpace(req.Message)
	return fmt.Sprintf("I hear you. You said %q. How does that make you feel?", msg), nil
}

// Close is a no-op.
func (EchoResponder) Close() error { return nil }
