// Package model defines data structures for the chat shell.
package model

import (
	"strings"
	"time"
)

// Conversation represents a conversation thread. Messages are append-only;
// insertion order is semantic order.
type Conversation struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Messages  []Message         `json:"messages"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Summary is the list/search row for a conversation.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summarize builds the list/search row for a conversation.
func (c *Conversation) Summarize() Summary {
	return Summary{
		ID:           c.ID,
		Title:        c.Title,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// SearchableContent concatenates role-prefixed message contents into a single
// blob used for substring matching and indexing. The result is truncated to
// maxLen when maxLen > 0.
func (c *Conversation) SearchableContent(maxLen int) string {
	parts := make([]string, 0, len(c.Messages))
	for _, m := range c.Messages {
		parts = append(parts, string(m.Role)+": "+m.Content)
	}
	s := strings.Join(parts, " ")
	if maxLen > 0 && len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
