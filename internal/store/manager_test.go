package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/driftline/chatshell/internal/config"
	"github.com/driftline/chatshell/internal/model"
	"github.com/driftline/chatshell/pkg/logger"
)

func testManagerConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.UseRedis = false
	cfg.Conversation.SaveDirectory = dir
	return cfg
}

func newTestManager(t *testing.T, dir string) *Manager {
	t.Helper()
	cfg := testManagerConfig(dir)
	backend, err := SelectBackend(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("SelectBackend: %v", err)
	}
	return NewManager(backend, cfg, logger.NewNop())
}

func TestManager_CreateAssignsIdentity(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	ctx := context.Background()

	conv, err := m.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if conv.ID == "" {
		t.Fatal("no id assigned")
	}
	if conv.Title == "" {
		t.Fatal("no default title assigned")
	}
	if !conv.CreatedAt.Equal(conv.UpdatedAt) {
		t.Fatalf("fresh conversation timestamps differ: %v vs %v", conv.CreatedAt, conv.UpdatedAt)
	}
	if len(conv.Messages) != 0 {
		t.Fatalf("fresh conversation has %d messages", len(conv.Messages))
	}

	other, err := m.Create(ctx, "second")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if other.ID == conv.ID {
		t.Fatal("duplicate conversation ids")
	}
}

func TestManager_AppendUpdatesTimestamps(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	ctx := context.Background()

	conv, err := m.Create(ctx, "t")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	created := conv.CreatedAt

	time.Sleep(10 * time.Millisecond)
	msgID, err := m.Append(ctx, conv.ID, model.RoleUser, "hello", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if msgID == "" {
		t.Fatal("no message id assigned")
	}

	msgs := m.Messages(ctx, conv.ID)
	if len(msgs) != 1 || msgs[0].Content != "hello" || msgs[0].Role != model.RoleUser {
		t.Fatalf("Messages = %+v", msgs)
	}
	if !conv.CreatedAt.Equal(created) {
		t.Fatal("CreatedAt changed on append")
	}
	if !conv.UpdatedAt.Equal(msgs[0].Timestamp) {
		t.Fatalf("UpdatedAt %v != last mutation %v", conv.UpdatedAt, msgs[0].Timestamp)
	}
}

func TestManager_AppendUnknownConversation(t *testing.T) {
	m := newTestManager(t, t.TempDir())

	_, err := m.Append(context.Background(), "ghost", model.RoleUser, "hi", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Append(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestManager_AppendColdIDLoadsFromBackend(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// persist directly through the backend, bypassing this manager's hot set
	fs, err := NewFileStore(dir, logger.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	cold := testConversation("cold", "from disk", time.Now().UTC(), "earlier message")
	if err := fs.Save(ctx, cold); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m := newTestManager(t, dir)
	if _, err := m.Append(ctx, "cold", model.RoleUser, "follow-up", nil); err != nil {
		t.Fatalf("Append(cold) = %v", err)
	}
	msgs := m.Messages(ctx, "cold")
	if len(msgs) != 2 || msgs[0].Content != "earlier message" || msgs[1].Content != "follow-up" {
		t.Fatalf("Messages after cold append = %+v", msgs)
	}
}

func TestManager_CrossSessionDurability(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := newTestManager(t, dir)
	conv, err := first.Create(ctx, "durable")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := first.Append(ctx, conv.ID, model.RoleUser, "remember me", nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	want := first.Messages(ctx, conv.ID)[0]

	// a fresh manager over the same backend simulates a process restart
	second := newTestManager(t, dir)
	msgs := second.Messages(ctx, conv.ID)
	if len(msgs) != 1 {
		t.Fatalf("restarted Messages = %d, want 1", len(msgs))
	}
	if msgs[0].Content != want.Content || !msgs[0].Timestamp.Equal(want.Timestamp) {
		t.Fatalf("restarted message = %+v, want %+v", msgs[0], want)
	}
}

func TestManager_ContextWindow(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	ctx := context.Background()

	conv, err := m.Create(ctx, "windowed")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	role := model.RoleUser
	for i := 1; i <= 12; i++ {
		if _, err := m.Append(ctx, conv.ID, role, fmt.Sprintf("turn %d", i), nil); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if role == model.RoleUser {
			role = model.RoleAssistant
		} else {
			role = model.RoleUser
		}
	}

	window := m.Context(ctx, conv.ID, 0) // default window of 10
	if len(window) != 10 {
		t.Fatalf("window = %d messages, want 10", len(window))
	}
	if window[0].Content != "turn 3" {
		t.Fatalf("window starts with %q, want oldest retained turn", window[0].Content)
	}
	if window[9].Content != "turn 12" {
		t.Fatalf("window ends with %q, want newest turn", window[9].Content)
	}
	for i := 1; i < len(window); i++ {
		if window[i].Timestamp.Before(window[i-1].Timestamp) {
			t.Fatal("window is not oldest-first")
		}
	}
}

func TestManager_ContextShorterThanWindow(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	ctx := context.Background()

	conv, err := m.Create(ctx, "short")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Append(ctx, conv.ID, model.RoleUser, "only one", nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	window := m.Context(ctx, conv.ID, 10)
	if len(window) != 1 || window[0].Content != "only one" {
		t.Fatalf("window = %+v", window)
	}
}

func TestManager_DeleteEvictsHotSet(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	ctx := context.Background()

	conv, err := m.Create(ctx, "doomed")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !m.Delete(ctx, conv.ID) {
		t.Fatal("Delete = false")
	}
	if _, err := m.Append(ctx, conv.ID, model.RoleUser, "hi", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Append after delete = %v, want ErrNotFound", err)
	}
}

func TestSelectBackend_FallsBackToFileOnce(t *testing.T) {
	cfg := testManagerConfig(t.TempDir())
	cfg.UseRedis = true
	cfg.Redis.Addr = "127.0.0.1:1" // unreachable
	cfg.Redis.DialTimeout = 100 * time.Millisecond

	backend, err := SelectBackend(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("SelectBackend: %v", err)
	}
	if backend.Name() != "file" {
		t.Fatalf("backend = %s, want file fallback", backend.Name())
	}

	// the selection is never re-evaluated: the manager stays bound to the
	// file backend for the whole session
	m := NewManager(backend, cfg, logger.NewNop())
	ctx := context.Background()
	conv, err := m.Create(ctx, "after fallback")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.BackendName() != "file" {
		t.Fatalf("BackendName = %s, want file", m.BackendName())
	}
	if _, ok := backend.Load(ctx, conv.ID); !ok {
		t.Fatal("conversation not persisted by fallback backend")
	}
}

func TestManager_SummaryLine(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	ctx := context.Background()

	conv, err := m.Create(ctx, "greetings")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if line := m.SummaryLine(ctx, conv.ID); line == "" || line == "conversation not found" {
		t.Fatalf("SummaryLine = %q", line)
	}
	if line := m.SummaryLine(ctx, "ghost"); line != "conversation not found" {
		t.Fatalf("SummaryLine(ghost) = %q", line)
	}
}
