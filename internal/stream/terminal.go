package stream

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Terminal writes directly to a local writer (the CLI's stdout), styling
// tool-call and thinking markers with lipgloss the way an interactive
// session would. Safe for concurrent use; a write error marks the handle
// closed and all further calls become no-ops.
type Terminal struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool

	toolStyle  lipgloss.Style
	thinkStyle lipgloss.Style
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{
		w:          w,
		toolStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		thinkStyle: lipgloss.NewStyle().Faint(true),
	}
}

func (t *Terminal) send(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if _, err := io.WriteString(t.w, s); err != nil {
		t.closed = true
	}
}

func (t *Terminal) Write(chunk string) { t.send(chunk) }

func (t *Terminal) StartToolCall(id, name string, args any) {
	t.send(t.toolStyle.Render(fmt.Sprintf("\n[tool %s %s %v]\n", name, id, args)))
}

func (t *Terminal) FinishToolCall(id, status, details string) {
	t.send(t.toolStyle.Render(fmt.Sprintf("[tool %s %s: %s]\n", id, status, details)))
}

func (t *Terminal) StartThinking() { t.send(t.thinkStyle.Render("\n[thinking]\n")) }

func (t *Terminal) UpdateThinking(chunk string) { t.send(t.thinkStyle.Render(chunk)) }

func (t *Terminal) FinishThinking() { t.send(t.thinkStyle.Render("\n[/thinking]\n")) }

func (t *Terminal) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

var _ Handle = (*Terminal)(nil)
