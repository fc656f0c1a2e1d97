// Package store provides durable conversation persistence behind a single
// backend contract, with a Redis-indexed implementation and a plain-file
// fallback.
package store

import (
	"context"
	"errors"

	"github.com/driftline/chatshell/internal/model"
)

// ErrNotFound is returned when a referenced conversation exists neither in the
// session's hot cache nor in the backend.
var ErrNotFound = errors.New("conversation not found")

// Backend is the persistence contract implemented identically by the Redis
// and file backends. Operations never panic and never leak backend-specific
// errors: Load reports absence and unavailability the same way, and batch
// operations return safe zero values when the backend is unreachable.
type Backend interface {
	// Save overwrites any prior persisted state for the conversation's id.
	Save(ctx context.Context, conv *model.Conversation) error

	// Load returns the conversation with the given id, or ok=false if it is
	// absent or the backend is unavailable.
	Load(ctx context.Context, id string) (*model.Conversation, bool)

	// Delete removes the conversation and reports whether a record existed.
	Delete(ctx context.Context, id string) bool

	// List returns summaries ordered by updated_at descending, paginated by
	// offset and limit applied after sorting.
	List(ctx context.Context, limit, offset int) []model.Summary

	// Search returns summaries whose title or message content contains the
	// query, case-insensitively, ordered like List.
	Search(ctx context.Context, query string, limit int) []model.Summary

	// Stats returns backend-specific health and size information.
	Stats(ctx context.Context) map[string]any

	// Cleanup deletes every conversation whose updated_at is strictly older
	// than now minus the given number of days and returns the count removed.
	Cleanup(ctx context.Context, days int) int

	// Name identifies the backend in logs and metrics.
	Name() string
}
