// Package ui handles terminal input and output for the chat shell.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/driftline/chatshell/internal/config"
	"github.com/driftline/chatshell/internal/model"
)

// Palette holds the color set used for terminal output. It is constructed
// once and never mutated afterwards; no global color state is shared.
type Palette struct {
	Header    *color.Color
	Info      *color.Color
	Success   *color.Color
	Error     *color.Color
	Prompt    *color.Color
	Assistant *color.Color
	Dim       *color.Color
}

// NewPalette builds the palette. When colors are disabled every entry prints
// plain text.
func NewPalette(enabled bool) Palette {
	p := Palette{
		Header:    color.New(color.FgHiCyan, color.Bold),
		Info:      color.New(color.FgCyan),
		Success:   color.New(color.FgGreen),
		Error:     color.New(color.FgRed),
		Prompt:    color.New(color.FgHiBlue, color.Bold),
		Assistant: color.New(color.FgHiGreen),
		Dim:       color.New(color.Faint),
	}
	if !enabled {
		for _, c := range []*color.Color{p.Header, p.Info, p.Success, p.Error, p.Prompt, p.Assistant, p.Dim} {
			c.DisableColor()
		}
	}
	return p
}

// UI renders the interactive session. All output goes through out so tests
// can capture it.
type UI struct {
	cfg     config.UIConfig
	palette Palette
	out     io.Writer
	in      *bufio.Reader
	typing  *TypingIndicator
}

// New creates a UI over the given reader and writer.
func New(cfg config.UIConfig, in io.Reader, out io.Writer) *UI {
	return &UI{
		cfg:     cfg,
		palette: NewPalette(cfg.ColorsEnabled),
		out:     out,
		in:      bufio.NewReader(in),
	}
}

// Header prints the application banner.
func (u *UI) Header(version string) {
	u.palette.Header.Fprintf(u.out, "chatshell %s — conversations that stick around\n\n", version)
}

// Welcome prints the greeting shown after startup.
func (u *UI) Welcome(backend string) {
	u.palette.Success.Fprintln(u.out, "Welcome! Type a message and press Enter to chat.")
	u.palette.Dim.Fprintf(u.out, "Conversation storage: %s. Type /help for commands.\n\n", backend)
}

// Help prints the command reference.
func (u *UI) Help() {
	lines := []string{
		"/help, /h        show this help",
		"/clear, /c       clear the screen",
		"/new, /n         start a new conversation",
		"/history         show the current conversation",
		"/save, /s        save the current conversation",
		"/load, /l        load a saved conversation",
		"/list            list conversations",
		"/search <query>  search conversations",
		"/stats           show storage statistics",
		"/cleanup         delete conversations older than 30 days",
		"/debug           toggle debug mode",
		"/quit, /q        exit",
	}
	u.palette.Info.Fprintln(u.out, "Available commands:")
	for _, line := range lines {
		fmt.Fprintln(u.out, "  "+line)
	}
	fmt.Fprintln(u.out)
}

// ReadLine prompts for and returns one line of user input.
func (u *UI) ReadLine() (string, error) {
	u.palette.Prompt.Fprint(u.out, "You: ")
	line, err := u.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question and returns true on "y"/"yes".
func (u *UI) Confirm(question string) bool {
	u.palette.Info.Fprintf(u.out, "%s [y/N]: ", question)
	line, err := u.in.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// Info prints an informational line.
func (u *UI) Info(format string, args ...any) {
	u.palette.Info.Fprintf(u.out, format+"\n", args...)
}

// Success prints a success line.
func (u *UI) Success(format string, args ...any) {
	u.palette.Success.Fprintf(u.out, format+"\n", args...)
}

// Error prints a single-line failure message; the session always continues.
func (u *UI) Error(format string, args ...any) {
	u.palette.Error.Fprintf(u.out, format+"\n", args...)
}

// AssistantReply prints the assistant's response.
func (u *UI) AssistantReply(text string) {
	u.palette.Assistant.Fprint(u.out, "Assistant: ")
	fmt.Fprintln(u.out, text)
	fmt.Fprintln(u.out)
}

// History renders a conversation's messages in order.
func (u *UI) History(msgs []model.Message) {
	if len(msgs) == 0 {
		u.Info("No messages yet.")
		return
	}
	for _, msg := range msgs {
		speaker := u.palette.Prompt
		label := "You"
		if msg.Role == model.RoleAssistant {
			speaker = u.palette.Assistant
			label = "Assistant"
		}
		if u.cfg.ShowTimestamps {
			u.palette.Dim.Fprintf(u.out, "[%s] ", msg.Timestamp.Local().Format("2006-01-02 15:04"))
		}
		speaker.Fprintf(u.out, "%s: ", label)
		fmt.Fprintln(u.out, msg.Content)
	}
	fmt.Fprintln(u.out)
}

// Summaries renders list/search results.
func (u *UI) Summaries(summaries []model.Summary) {
	for i, s := range summaries {
		u.Info("%d. %s (%d messages, updated %s)",
			i+1, s.Title, s.MessageCount, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
}

// Stats renders a stats mapping in stable-ish display form.
func (u *UI) Stats(stats map[string]any) {
	if len(stats) == 0 {
		u.Error("Could not retrieve statistics")
		return
	}
	u.Info("Storage statistics:")
	for key, value := range stats {
		u.Info("  %s: %v", strings.ReplaceAll(key, "_", " "), value)
	}
}

// ClearScreen clears the terminal.
func (u *UI) ClearScreen() {
	fmt.Fprint(u.out, "\033[2J\033[H")
}

// StartTyping begins the typing indicator if enabled.
func (u *UI) StartTyping() {
	if !u.cfg.TypingIndicator || u.typing != nil {
		return
	}
	u.typing = StartTypingIndicator(u.out)
}

// StopTyping stops the typing indicator if one is running.
func (u *UI) StopTyping() {
	if u.typing == nil {
		return
	}
	u.typing.Stop()
	u.typing = nil
}
