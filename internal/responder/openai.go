package responder

import (
	"context"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/driftline/chatshell/internal/config"
	"github.com/driftline/chatshell/internal/model"
	"github.com/driftline/chatshell/pkg/metrics"
)

// OpenAI generates replies via the OpenAI chat completions API.
type OpenAI struct {
	client *openai.Client
	cfg    config.ResponderConfig
}

// NewOpenAI creates an OpenAI responder.
func NewOpenAI(apiKey string, cfg config.ResponderConfig) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	return &OpenAI{client: openai.NewClient(apiKey), cfg: cfg}, nil
}

// Name returns the provider name.
func (r *OpenAI) Name() string { return "openai" }

// Reply sends the context window as a chat completion request.
func (r *OpenAI) Reply(ctx context.Context, history []model.ContextMessage) (string, error) {
	start := time.Now()

	messages := make([]openai.ChatCompletionMessage, len(history))
	for i, msg := range history {
		messages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		Messages:    messages,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: float32(r.cfg.Temperature),
	})
	metrics.RecordResponder(r.Name(), err, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}
