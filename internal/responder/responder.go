// Package responder provides the text-generation collaborator: given an
// ordered context window it returns plain reply text. The store never
// interprets this text.
package responder

import (
	"context"

	"go.uber.org/zap"

	"github.com/driftline/chatshell/internal/config"
	"github.com/driftline/chatshell/internal/model"
	"github.com/driftline/chatshell/pkg/logger"
)

// Responder generates a reply from an ordered, oldest-first context window.
type Responder interface {
	Reply(ctx context.Context, history []model.ContextMessage) (string, error)

	// Name returns the provider name.
	Name() string
}

// New selects a responder from configuration. A configured provider without a
// usable API key degrades to the local responder so the shell stays usable
// offline.
func New(cfg *config.Config, log *logger.Logger) Responder {
	switch cfg.Responder.Provider {
	case "openai":
		r, err := NewOpenAI(cfg.OpenAIAPIKey, cfg.Responder)
		if err == nil {
			return r
		}
		log.Warn("openai responder unavailable, using local responder", zap.Error(err))
	case "anthropic":
		r, err := NewAnthropic(cfg.AnthropicAPIKey, cfg.Responder)
		if err == nil {
			return r
		}
		log.Warn("anthropic responder unavailable, using local responder", zap.Error(err))
	}
	return NewLocal()
}
