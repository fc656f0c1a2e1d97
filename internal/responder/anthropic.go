package responder

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/driftline/chatshell/internal/config"
	"github.com/driftline/chatshell/internal/model"
	"github.com/driftline/chatshell/pkg/metrics"
)

// Anthropic generates replies via the Anthropic messages API.
type Anthropic struct {
	client *anthropic.Client
	cfg    config.ResponderConfig
}

// NewAnthropic creates an Anthropic responder.
func NewAnthropic(apiKey string, cfg config.ResponderConfig) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-20241022"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		cfg:    cfg,
	}, nil
}

// Name returns the provider name.
func (r *Anthropic) Name() string { return "anthropic" }

// Reply sends the context window as a messages request.
func (r *Anthropic) Reply(ctx context.Context, history []model.ContextMessage) (string, error) {
	start := time.Now()

	messages := make([]anthropic.MessageParam, len(history))
	for i, msg := range history {
		messages[i] = anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		}
	}

	resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(r.cfg.Model),
		MaxTokens: anthropic.F(int64(r.cfg.MaxTokens)),
		Messages:  anthropic.F(messages),
	})
	metrics.RecordResponder(r.Name(), err, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}
	if content == "" {
		return "", errors.New("empty messages response")
	}
	return content, nil
}
