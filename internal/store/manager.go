package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driftline/chatshell/internal/config"
	"github.com/driftline/chatshell/internal/model"
	"github.com/driftline/chatshell/pkg/logger"
	"github.com/driftline/chatshell/pkg/metrics"
)

// SelectBackend picks the storage backend exactly once. Redis is preferred
// when enabled; any connection failure falls back to the file backend for the
// remainder of the process, even if Redis becomes reachable later.
func SelectBackend(cfg *config.Config, log *logger.Logger) (Backend, error) {
	if cfg.UseRedis {
		rs, err := NewRedisStore(cfg.Redis, log)
		if err == nil {
			log.Info("using redis conversation storage")
			return rs, nil
		}
		log.Warn("redis storage unavailable, falling back to file storage", zap.Error(err))
	}
	fs, err := NewFileStore(cfg.Conversation.SaveDirectory, log)
	if err != nil {
		return nil, err
	}
	log.Info("using file conversation storage", zap.String("dir", cfg.Conversation.SaveDirectory))
	return fs, nil
}

// Manager is the sole store entry point used by the rest of the application.
// It owns id and timestamp generation, keeps a hot in-memory map of
// conversations touched this session, and persists the full snapshot
// synchronously on every mutation. Backends are pure persistence mechanisms.
type Manager struct {
	backend Backend
	cfg     *config.Config
	log     *logger.Logger

	mu  sync.RWMutex
	hot map[string]*model.Conversation
}

// NewManager creates a manager over an already-selected backend.
func NewManager(backend Backend, cfg *config.Config, log *logger.Logger) *Manager {
	return &Manager{
		backend: backend,
		cfg:     cfg,
		log:     log,
		hot:     make(map[string]*model.Conversation),
	}
}

// BackendName reports which backend this session is bound to.
func (m *Manager) BackendName() string { return m.backend.Name() }

// Create starts a new, empty conversation and persists it.
func (m *Manager) Create(ctx context.Context, title string) (*model.Conversation, error) {
	now := time.Now().UTC()
	if title == "" {
		title = "Conversation " + now.Format("2006-01-02 15:04")
	}

	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Title:     title,
		Messages:  []model.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.hot[conv.ID] = conv
	m.mu.Unlock()

	err := m.backend.Save(ctx, conv)
	metrics.RecordStoreOperation(m.backend.Name(), "save", err == nil)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	metrics.ConversationsCreatedTotal.Inc()
	m.log.Info("created conversation", zap.String("conversation_id", conv.ID))
	return conv, nil
}

// get returns the hot conversation for id, loading it from the backend on a
// cold id. The hot map stays authoritative for the rest of the session.
func (m *Manager) get(ctx context.Context, id string) (*model.Conversation, bool) {
	m.mu.RLock()
	conv, ok := m.hot[id]
	m.mu.RUnlock()
	if ok {
		return conv, true
	}

	conv, ok = m.backend.Load(ctx, id)
	metrics.RecordStoreOperation(m.backend.Name(), "load", ok)
	if !ok {
		return nil, false
	}

	m.mu.Lock()
	m.hot[id] = conv
	m.mu.Unlock()
	return conv, true
}

// Append adds a message to a conversation and persists the updated snapshot
// before returning. It returns ErrNotFound when the conversation is absent
// from both the hot cache and the backend.
func (m *Manager) Append(ctx context.Context, id string, role model.Role, content string, metadata map[string]string) (string, error) {
	conv, ok := m.get(ctx, id)
	if !ok {
		return "", fmt.Errorf("append to conversation %s: %w", id, ErrNotFound)
	}

	now := time.Now().UTC()
	msg := model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      role,
		Content:   content,
		Timestamp: now,
		Metadata:  metadata,
	}

	m.mu.Lock()
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = now
	m.mu.Unlock()

	err := m.backend.Save(ctx, conv)
	metrics.RecordStoreOperation(m.backend.Name(), "save", err == nil)
	if err != nil {
		return msg.ID, fmt.Errorf("persist conversation %s: %w", id, err)
	}

	metrics.MessagesTotal.WithLabelValues(string(role)).Inc()
	m.log.Debug("appended message",
		zap.String("conversation_id", id), zap.String("role", string(role)))
	return msg.ID, nil
}

// Messages returns all messages of a conversation, or nil if it is unknown.
func (m *Manager) Messages(ctx context.Context, id string) []model.Message {
	conv, ok := m.get(ctx, id)
	if !ok {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Message, len(conv.Messages))
	copy(out, conv.Messages)
	return out
}

// Context returns the last n messages of a conversation, oldest first, as the
// tuples handed to the responder. When n <= 0 the configured window applies.
// Message content is never truncated or summarized here.
func (m *Manager) Context(ctx context.Context, id string, n int) []model.ContextMessage {
	if n <= 0 {
		n = m.cfg.Conversation.MaxContextMessages
	}
	msgs := m.Messages(ctx, id)
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	window := make([]model.ContextMessage, len(msgs))
	for i, msg := range msgs {
		window[i] = model.ContextMessage{
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		}
	}
	return window
}

// Open loads a conversation into the hot set so it becomes the active thread.
func (m *Manager) Open(ctx context.Context, id string) bool {
	_, ok := m.get(ctx, id)
	return ok
}

// Save re-persists the current snapshot of a hot conversation.
func (m *Manager) Save(ctx context.Context, id string) error {
	m.mu.RLock()
	conv, ok := m.hot[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("save conversation %s: %w", id, ErrNotFound)
	}
	err := m.backend.Save(ctx, conv)
	metrics.RecordStoreOperation(m.backend.Name(), "save", err == nil)
	return err
}

// SummaryLine renders a one-line description of a conversation.
func (m *Manager) SummaryLine(ctx context.Context, id string) string {
	conv, ok := m.get(ctx, id)
	if !ok {
		return "conversation not found"
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(conv.Messages) == 0 {
		return fmt.Sprintf("Empty conversation created at %s", conv.CreatedAt.Format(time.RFC3339))
	}
	last := conv.Messages[len(conv.Messages)-1].Timestamp
	return fmt.Sprintf("%s - %d messages, last activity: %s",
		conv.Title, len(conv.Messages), last.Format(time.RFC3339))
}

// List returns conversation summaries, newest activity first.
func (m *Manager) List(ctx context.Context, limit, offset int) []model.Summary {
	return m.backend.List(ctx, limit, offset)
}

// Search returns summaries matching the query.
func (m *Manager) Search(ctx context.Context, query string, limit int) []model.Summary {
	return m.backend.Search(ctx, query, limit)
}

// Delete removes a conversation from the hot set and the backend.
func (m *Manager) Delete(ctx context.Context, id string) bool {
	m.mu.Lock()
	delete(m.hot, id)
	m.mu.Unlock()

	ok := m.backend.Delete(ctx, id)
	metrics.RecordStoreOperation(m.backend.Name(), "delete", ok)
	if ok {
		m.log.Info("deleted conversation", zap.String("conversation_id", id))
	}
	return ok
}

// Cleanup removes conversations untouched for the given number of days.
func (m *Manager) Cleanup(ctx context.Context, days int) int {
	deleted := m.backend.Cleanup(ctx, days)
	metrics.CleanupDeletedTotal.Add(float64(deleted))

	// Evict anything the sweep removed from the hot set as well.
	if deleted > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		m.mu.Lock()
		for id, conv := range m.hot {
			if conv.UpdatedAt.Before(cutoff) {
				delete(m.hot, id)
			}
		}
		m.mu.Unlock()
	}
	return deleted
}

// Stats returns the backend's health and size information.
func (m *Manager) Stats(ctx context.Context) map[string]any {
	return m.backend.Stats(ctx)
}
