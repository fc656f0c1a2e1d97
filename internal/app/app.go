// Package app runs the interactive chat session.
package app

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/driftline/chatshell/internal/config"
	"github.com/driftline/chatshell/internal/model"
	"github.com/driftline/chatshell/internal/responder"
	"github.com/driftline/chatshell/internal/store"
	"github.com/driftline/chatshell/internal/ui"
	"github.com/driftline/chatshell/pkg/logger"
)

// Version is the application version shown in the banner.
const Version = "1.0.0"

// App wires the UI, the store manager and the responder into a REPL. It only
// ever talks to the manager's public surface, never to a backend directly.
type App struct {
	cfg       *config.Config
	ui        *ui.UI
	manager   *store.Manager
	responder responder.Responder
	log       *logger.Logger

	currentID string
	debug     bool
	running   bool
}

// New creates the application.
func New(cfg *config.Config, u *ui.UI, m *store.Manager, r responder.Responder, log *logger.Logger) *App {
	return &App{cfg: cfg, ui: u, manager: m, responder: r, log: log}
}

// Run starts a new conversation and processes input until /quit, EOF, or
// context cancellation.
func (a *App) Run(ctx context.Context) error {
	a.ui.Header(Version)
	a.ui.Welcome(a.manager.BackendName())
	a.ui.Help()

	conv, err := a.manager.Create(ctx, "")
	if err != nil {
		a.ui.Error("Failed to start a conversation: %v", err)
		a.log.Error("initial conversation creation failed", zap.Error(err))
	} else {
		a.currentID = conv.ID
	}

	a.running = true
	for a.running {
		if ctx.Err() != nil {
			break
		}

		line, err := a.ui.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			a.log.Error("input error", zap.Error(err))
			break
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			a.handleCommand(ctx, line)
			continue
		}
		a.chat(ctx, line)
	}

	a.ui.Info("Goodbye!")
	return nil
}

func (a *App) handleCommand(ctx context.Context, line string) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "/help", "/h":
		a.ui.Help()
	case "/clear", "/c":
		a.ui.ClearScreen()
	case "/new", "/n":
		a.newConversation(ctx)
	case "/history", "/hist":
		a.showHistory(ctx)
	case "/save", "/s":
		a.saveConversation(ctx)
	case "/load", "/l":
		a.loadConversation(ctx)
	case "/list":
		a.listConversations(ctx)
	case "/search":
		a.searchConversations(ctx, arg)
	case "/stats":
		a.ui.Stats(a.manager.Stats(ctx))
	case "/cleanup":
		a.cleanup(ctx)
	case "/debug":
		a.debug = !a.debug
		a.ui.Info("Debug mode: %v", a.debug)
	case "/quit", "/q", "/exit":
		a.running = false
	default:
		a.ui.Error("Unknown command %s. Type /help for commands.", cmd)
	}
}

// chat runs one exchange: persist the user turn, hand the context window to
// the responder, persist the reply. Any failure prints a single line and the
// session continues.
func (a *App) chat(ctx context.Context, input string) {
	if a.currentID == "" {
		a.ui.Error("No active conversation. Use /new to start one.")
		return
	}

	if _, err := a.manager.Append(ctx, a.currentID, model.RoleUser, input, nil); err != nil {
		a.ui.Error("Failed to record your message: %v", err)
		a.log.Error("append user message failed",
			zap.String("conversation_id", a.currentID), zap.Error(err))
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		// persistence failed but the in-memory turn exists; keep going
	}

	a.ui.StartTyping()
	window := a.manager.Context(ctx, a.currentID, 0)
	start := time.Now()
	reply, err := a.responder.Reply(ctx, window)
	a.ui.StopTyping()

	if a.debug {
		a.ui.Info("[debug] %d messages in context, reply in %s",
			len(window), time.Since(start).Round(time.Millisecond))
	}

	if err != nil {
		a.ui.Error("Failed to generate a response: %v", err)
		a.log.Error("responder failed", zap.Error(err))
		return
	}

	a.ui.AssistantReply(reply)

	if _, err := a.manager.Append(ctx, a.currentID, model.RoleAssistant, reply, nil); err != nil {
		a.ui.Error("Failed to save the response: %v", err)
		a.log.Error("append assistant message failed",
			zap.String("conversation_id", a.currentID), zap.Error(err))
	}
}

func (a *App) newConversation(ctx context.Context) {
	conv, err := a.manager.Create(ctx, "")
	if err != nil {
		a.ui.Error("Failed to start a new conversation: %v", err)
		return
	}
	a.currentID = conv.ID
	a.ui.Success("Started new conversation")
}

func (a *App) showHistory(ctx context.Context) {
	if a.currentID == "" {
		a.ui.Error("No active conversation")
		return
	}
	a.ui.History(a.manager.Messages(ctx, a.currentID))
}

func (a *App) saveConversation(ctx context.Context) {
	if a.currentID == "" {
		a.ui.Error("No active conversation to save")
		return
	}
	if err := a.manager.Save(ctx, a.currentID); err != nil {
		a.ui.Error("Failed to save conversation: %v", err)
		return
	}
	a.ui.Success("Conversation saved")
}

func (a *App) loadConversation(ctx context.Context) {
	summaries := a.manager.List(ctx, 10, 0)
	if len(summaries) == 0 {
		a.ui.Info("No saved conversations found")
		return
	}

	a.ui.Info("Recent conversations:")
	a.ui.Summaries(summaries)

	line, err := a.ui.ReadLine()
	if err != nil || line == "" {
		return
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(summaries) {
		a.ui.Error("Invalid conversation number")
		return
	}

	id := summaries[n-1].ID
	if !a.manager.Open(ctx, id) {
		a.ui.Error("Failed to load conversation")
		return
	}
	a.currentID = id
	a.ui.Success("Loaded conversation: %s", summaries[n-1].Title)
}

func (a *App) listConversations(ctx context.Context) {
	summaries := a.manager.List(ctx, 20, 0)
	if len(summaries) == 0 {
		a.ui.Info("No conversations found")
		return
	}
	a.ui.Info("Found %d conversations:", len(summaries))
	a.ui.Summaries(summaries)
}

func (a *App) searchConversations(ctx context.Context, query string) {
	if query == "" {
		a.ui.Error("Usage: /search <query>")
		return
	}
	results := a.manager.Search(ctx, query, 10)
	if len(results) == 0 {
		a.ui.Info("No conversations found matching %q", query)
		return
	}
	a.ui.Info("Found %d conversations matching %q:", len(results), query)
	a.ui.Summaries(results)
}

func (a *App) cleanup(ctx context.Context) {
	if !a.ui.Confirm("Delete conversations older than 30 days?") {
		return
	}
	deleted := a.manager.Cleanup(ctx, 30)
	a.ui.Success("Cleaned up %d old conversations", deleted)
}
