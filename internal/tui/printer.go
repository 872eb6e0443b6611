package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/MegaGrindStone/sse-chat/internal/chat"
	"github.com/MegaGrindStone/sse-chat/internal/models"
)

// Printer is a chat.Viewport that writes the transcript to a plain writer, for pipes and the ask
// command. Text replaced in place on the newest message is written as the missing suffix so the
// output reads like a growing reply; replacements that do not extend what was printed, or that touch
// an older message, are written as a new block.
type Printer struct {
	w io.Writer

	mu      sync.Mutex
	lastID  string
	printed string
	open    bool
	quiet   bool
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// NewReplyPrinter creates a Printer that writes only the bot replies, without headers. It is meant
// for scripting, where stdout should carry nothing but the answer.
func NewReplyPrinter(w io.Writer) *Printer {
	return &Printer{w: w, quiet: true}
}

// Changed implements chat.Viewport.
func (p *Printer) Changed(msg models.Message, appended bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.quiet && msg.Author != models.AuthorBot {
		return
	}

	text := msg.Text
	if msg.Author == models.AuthorBot && text == chat.PlaceholderText {
		text = ""
	}

	switch {
	case !appended && msg.ID == p.lastID && strings.HasPrefix(text, p.printed):
		fmt.Fprint(p.w, text[len(p.printed):])
	default:
		p.endLocked()
		if !p.quiet {
			fmt.Fprintf(p.w, "[%s] %s:\n", msg.DisplayTimestamp(), authorLabel(msg.Author))
		}
		fmt.Fprint(p.w, text)
	}

	p.lastID = msg.ID
	p.printed = text
	p.open = true
}

// Close terminates the last line.
func (p *Printer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endLocked()
	return nil
}

func (p *Printer) endLocked() {
	if p.open {
		fmt.Fprintln(p.w)
		p.open = false
	}
}

func authorLabel(a models.Author) string {
	if a == models.AuthorUser {
		return "you"
	}
	return "bot"
}
