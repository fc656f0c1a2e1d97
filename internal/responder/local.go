package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/driftline/chatshell/internal/model"
)

// Local is a deterministic offline responder. It needs no network or API key
// and keeps the shell usable when no provider is configured.
type Local struct{}

// NewLocal creates a local responder.
func NewLocal() *Local { return &Local{} }

// Name returns the provider name.
func (r *Local) Name() string { return "local" }

// Reply produces a canned response derived from the latest user message.
func (r *Local) Reply(ctx context.Context, history []model.ContextMessage) (string, error) {
	last := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleUser {
			last = history[i].Content
			break
		}
	}
	if last == "" {
		return "Hello! Ask me anything.", nil
	}

	lower := strings.ToLower(last)
	switch {
	case strings.Contains(lower, "hello"), strings.Contains(lower, "hi "):
		return "Hello! How can I help you today?", nil
	case strings.HasSuffix(strings.TrimSpace(last), "?"):
		return fmt.Sprintf("That's a good question. I don't have a model loaded, but you asked: %q", last), nil
	default:
		return fmt.Sprintf("I heard: %q. Configure an openai or anthropic provider for real answers.", last), nil
	}
}
