package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/MegaGrindStone/sse-chat/internal/chat"
	"github.com/MegaGrindStone/sse-chat/internal/models"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	botStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("118"))
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	bodyStyle      = lipgloss.NewStyle().PaddingLeft(2)
)

const helpText = "enter send · esc cancel · pgup/pgdn scroll · ctrl+c quit"

// Options configures the terminal UI.
type Options struct {
	// Title is shown in the header line.
	Title string
	// Markdown renders bot replies as markdown.
	Markdown bool
}

// Model is the bubbletea model of the chat: a scrolling transcript above a single-line input.
// The transcript of ctl must report its changes to notifier.
type Model struct {
	ctx      context.Context
	ctl      *chat.Controller
	notifier *Notifier
	opts     Options
	logger   zerolog.Logger

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	markdown *glamour.TermRenderer

	width int
	ready bool
}

// New creates the model. Queries are submitted with ctx, so cancelling it cancels every stream.
func New(ctx context.Context, ctl *chat.Controller, notifier *Notifier, opts Options, logger zerolog.Logger) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask anything"
	ti.Prompt = "> "
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))

	if opts.Title == "" {
		opts.Title = "sse-chat"
	}

	return Model{
		ctx:      ctx,
		ctl:      ctl,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("module", "tui").Logger(),
		input:    ti,
		spinner:  sp,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.notifier.wait())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case transcriptChangedMsg:
		m.refresh()
		return m, m.notifier.wait()

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.ctl.CancelAll()
			return m, tea.Quit
		case tea.KeyEsc:
			m.ctl.CancelAll()
			return m, nil
		case tea.KeyEnter:
			if _, ok := m.ctl.Submit(m.ctx, m.input.Value()); ok {
				m.input.Reset()
			}
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	case tea.MouseMsg:
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		m.viewport.View(),
		m.input.View(),
	)
}

func (m Model) header() string {
	status := statusStyle.Render("ready")
	if n := len(m.ctl.Active()); n > 0 {
		label := "streaming"
		if n > 1 {
			label = fmt.Sprintf("streaming %d replies", n)
		}
		status = m.spinner.View() + " " + statusStyle.Render(label)
	}
	return titleStyle.Render(m.opts.Title) + "  " + status + "  " + statusStyle.Render(helpText)
}

func (m *Model) resize(width, height int) {
	m.width = width
	vpHeight := max(height-2, 1)

	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.Width = max(width-len(m.input.Prompt)-1, 1)

	if m.opts.Markdown {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(max(width-4, 20)),
		)
		if err != nil {
			m.logger.Warn().Err(err).Msg("Markdown rendering disabled")
			m.markdown = nil
			return
		}
		m.markdown = r
	}
}

// refresh redraws the transcript. The view follows the newest content when it was already at the
// bottom, or when the user just sent a message; otherwise the scroll position is kept.
func (m *Model) refresh() {
	follow := m.notifier.takeFollow()
	if !m.ready {
		return
	}

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.render(m.ctl.Transcript().Messages()))
	if follow || atBottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) render(msgs []models.Message) string {
	var sb strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		label := botStyle.Render(authorLabel(msg.Author))
		if msg.Author == models.AuthorUser {
			label = userStyle.Render(authorLabel(msg.Author))
		}
		sb.WriteString(label + " " + timestampStyle.Render(msg.DisplayTimestamp()) + "\n")
		sb.WriteString(m.renderBody(msg))
	}
	return sb.String()
}

func (m Model) renderBody(msg models.Message) string {
	if msg.Author == models.AuthorBot && m.markdown != nil && msg.Text != chat.PlaceholderText {
		out, err := m.markdown.Render(msg.Text)
		if err == nil {
			return strings.Trim(out, "\n")
		}
		m.logger.Debug().Err(err).Str("message", msg.ID).Msg("Failed to render markdown")
	}
	return bodyStyle.Width(max(m.width-2, 10)).Render(msg.Text)
}
