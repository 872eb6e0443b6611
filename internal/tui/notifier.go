package tui

import (
	"sync/atomic"

	"github.com/MegaGrindStone/sse-chat/internal/models"
	tea "github.com/charmbracelet/bubbletea"
)

// Notifier is a chat.Viewport that coalesces transcript changes into a single pending redraw for the
// terminal event loop.
type Notifier struct {
	changes chan struct{}
	follow  atomic.Bool
}

type transcriptChangedMsg struct{}

// NewNotifier creates a Notifier with no pending change.
func NewNotifier() *Notifier {
	return &Notifier{changes: make(chan struct{}, 1)}
}

// Changed implements chat.Viewport. It never blocks.
func (n *Notifier) Changed(msg models.Message, appended bool) {
	if appended && msg.Author == models.AuthorUser {
		n.follow.Store(true)
	}
	select {
	case n.changes <- struct{}{}:
	default:
	}
}

// takeFollow reports whether a user message was appended since the last call.
func (n *Notifier) takeFollow() bool {
	return n.follow.Swap(false)
}

func (n *Notifier) wait() tea.Cmd {
	return func() tea.Msg {
		<-n.changes
		return transcriptChangedMsg{}
	}
}
