package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/diogo/geminichat/internal/attach"
	apierrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/gateway"
	"github.com/diogo/geminichat/internal/models"
	"github.com/diogo/geminichat/internal/render"
)

// Message types for the TUI
type (
	// InboundMsg carries one server message into the program
	InboundMsg struct {
		Message models.InboundMessage
	}
	// DisconnectedMsg reports that the connection is gone
	DisconnectedMsg struct {
		Err error
	}
	sentMsg struct {
		images []string
		err    error
	}
)

// Sender starts a turn. conversation.Tracker implements it.
type Sender interface {
	Send(ctx context.Context, message string, images []string) error
}

// Options configures the chat model
type Options struct {
	Endpoint        string
	Theme           string
	Markdown        render.Options
	CopyToClipboard bool
	// ConnErr reports why the connection ended, if known
	ConnErr func() error
	// Images are resolved references attached to the first message
	Images []string
	// ResolveImage turns a "/image" argument into a reference the server
	// accepts. Defaults to attach.Resolve.
	ResolveImage func(string) (string, error)
}

type messageKind int

const (
	kindUser messageKind = iota
	kindModel
	kindError
)

type chatMessage struct {
	kind    messageKind
	content string
	images  []string
}

// Model represents the TUI state
type Model struct {
	sender  Sender
	opts    Options
	styles  styles
	copyFn  func(string) error
	resolve func(string) (string, error)

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	messages     []chatMessage
	attachments  []string
	pendingEcho  string
	lastResponse string
	progress     string
	waiting      bool
	connected    bool
	ready        bool
	notice       string
	err          error

	width  int
	height int
}

// NewChatModel creates a new chat TUI model
func NewChatModel(sender Sender, opts Options) Model {
	theme := render.ResolveTUITheme(opts.Theme)
	s := newStyles(theme)
	if opts.Markdown.Style == "" {
		opts.Markdown = render.DefaultOptions().WithStyle(theme.MarkdownStyle)
	}

	ta := textarea.New()
	ta.Placeholder = "Type your message here..."
	ta.CharLimit = 4000
	ta.ShowLineNumbers = false
	ta.SetHeight(2)
	ta.Focus()

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(theme.Text)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(theme.TextDim)
	ta.BlurredStyle = ta.FocusedStyle

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = s.loading

	resolve := opts.ResolveImage
	if resolve == nil {
		resolve = attach.Resolve
	}

	return Model{
		sender:      sender,
		opts:        opts,
		styles:      s,
		copyFn:      clipboard.WriteAll,
		resolve:     resolve,
		attachments: append([]string(nil), opts.Images...),
		textarea:    ta,
		spinner:     sp,
		connected:   true,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 4
		inputHeight := 6
		statusHeight := 2
		padding := 2

		vpHeight := m.height - headerHeight - inputHeight - statusHeight - padding
		if vpHeight < 5 {
			vpHeight = 5
		}
		contentWidth := m.width - 4

		if !m.ready {
			m.viewport = viewport.New(contentWidth, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = contentWidth
			m.viewport.Height = vpHeight
		}
		m.textarea.SetWidth(contentWidth - 4)
		m.updateViewport()

	case tea.KeyMsg:
		m.notice = ""
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "ctrl+y":
			m.copyLastResponse()
			return m, nil

		case "enter":
			input := strings.TrimSpace(m.textarea.Value())
			if m.waiting || (input == "" && len(m.attachments) == 0) {
				return m, nil
			}
			if input == "exit" || input == "quit" || input == "/exit" || input == "/quit" {
				return m, tea.Quit
			}
			if input == "/image" || strings.HasPrefix(input, "/image ") {
				m.attachImage(strings.TrimSpace(strings.TrimPrefix(input, "/image")))
				m.textarea.Reset()
				return m, nil
			}
			if input == "/detach" {
				m.attachments = nil
				m.notice = "Attachments removed"
				m.textarea.Reset()
				return m, nil
			}
			if !m.connected {
				m.err = apierrors.ErrClosed
				return m, nil
			}

			images := m.attachments
			m.attachments = nil
			m.messages = append(m.messages, chatMessage{kind: kindUser, content: input, images: images})
			m.pendingEcho = input
			m.updateViewport()
			m.viewport.GotoBottom()

			m.waiting = true
			m.progress = ""
			m.err = nil
			m.textarea.Reset()

			return m, tea.Batch(m.sendMessage(input, images), m.spinner.Tick)
		}

	case sentMsg:
		if msg.err != nil {
			m.waiting = false
			m.pendingEcho = ""
			m.err = msg.err
			m.attachments = append(append([]string(nil), msg.images...), m.attachments...)
		}

	case InboundMsg:
		m.handleInbound(msg.Message)

	case DisconnectedMsg:
		m.connected = false
		m.waiting = false
		m.err = msg.Err
		if m.err == nil {
			m.err = apierrors.ErrServerDisconnect
		}

	case spinner.TickMsg:
		if m.waiting {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	// Only key presses reach the textarea, so escape sequences don't leak in
	if !m.waiting {
		if _, ok := msg.(tea.KeyMsg); ok {
			m.textarea, cmd = m.textarea.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) handleInbound(msg models.InboundMessage) {
	if msg.Role == models.RoleUser {
		if m.pendingEcho != "" && msg.Message == m.pendingEcho {
			m.pendingEcho = ""
			return
		}
		m.messages = append(m.messages, chatMessage{kind: kindUser, content: msg.Message, images: msg.Images})
		m.updateViewport()
		m.viewport.GotoBottom()
		return
	}

	switch msg.Status {
	case models.StatusProgress:
		m.progress = msg.Message
		return
	case models.StatusSuccess:
		m.messages = append(m.messages, chatMessage{kind: kindModel, content: msg.Message, images: msg.Images})
		m.lastResponse = msg.Message
		if m.opts.CopyToClipboard {
			m.copyLastResponse()
		}
	case models.StatusError:
		m.messages = append(m.messages, chatMessage{kind: kindError, content: msg.Message})
	}

	m.waiting = false
	m.progress = ""
	m.updateViewport()
	m.viewport.GotoBottom()
}

func (m *Model) copyLastResponse() {
	if m.lastResponse == "" {
		m.notice = "Nothing to copy yet"
		return
	}
	if err := m.copyFn(m.lastResponse); err != nil {
		m.notice = "Copy failed: " + err.Error()
		return
	}
	m.notice = "Response copied to clipboard"
}

// attachImage resolves ref and queues it for the next message
func (m *Model) attachImage(ref string) {
	if ref == "" {
		m.notice = "Usage: /image <path | url | data uri>"
		return
	}
	resolved, err := m.resolve(ref)
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.attachments = append(m.attachments, resolved)
	m.notice = fmt.Sprintf("%d image(s) attached to the next message", len(m.attachments))
}

// sendMessage creates a command that starts a turn
func (m Model) sendMessage(prompt string, images []string) tea.Cmd {
	sender := m.sender
	return func() tea.Msg {
		return sentMsg{images: images, err: sender.Send(context.Background(), prompt, images)}
	}
}

// View renders the TUI
func (m Model) View() string {
	if !m.ready {
		return m.styles.loading.Render("  Initializing...")
	}

	s := m.styles
	contentWidth := m.width - 4
	var sections []string

	conn := s.connected.Render("● connected")
	if !m.connected {
		conn = s.offline.Render("● disconnected")
	}
	headerContent := lipgloss.JoinHorizontal(lipgloss.Center,
		s.title.Render("✦ Gemini Chat"),
		s.hint.Render("  •  "),
		s.subtitle.Render(m.opts.Endpoint),
		s.hint.Render("  •  "),
		conn,
	)
	sections = append(sections, s.header.Width(contentWidth).Render(headerContent))

	messagesContent := m.viewport.View()
	if len(m.messages) == 0 {
		messagesContent = m.renderWelcome()
	}
	sections = append(sections, s.messagesArea.
		Width(contentWidth).
		Height(m.viewport.Height).
		Render(messagesContent))

	var inputContent string
	if m.waiting {
		status := m.progress
		if status == "" {
			status = "Waiting for Gemini..."
		}
		inputContent = m.spinner.View() + " " + s.progress.Render(status)
	} else {
		inputContent = lipgloss.JoinVertical(lipgloss.Left,
			s.inputLabel.Render("You"),
			m.textarea.View(),
		)
	}
	sections = append(sections, s.inputPanel.Width(contentWidth).Render(inputContent))

	sections = append(sections, m.renderStatusBar(contentWidth))

	if m.err != nil {
		sections = append(sections, m.formatError(m.err))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderWelcome() string {
	width := m.viewport.Width - 4
	s := m.styles

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		s.welcomeIcon.Width(width).Render("✦"),
		"",
		s.welcomeTitle.Width(width).Render("Welcome to Gemini Chat"),
		"",
		s.welcome.Width(width).Render("Start a conversation by typing a message below"),
		"",
	)

	topPadding := (m.viewport.Height - lipgloss.Height(content)) / 2
	if topPadding < 0 {
		topPadding = 0
	}
	return strings.Repeat("\n", topPadding) + content
}

func (m Model) renderStatusBar(width int) string {
	s := m.styles
	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Enter", "Send"},
		{"Ctrl+Y", "Copy"},
		{"↑↓", "Scroll"},
		{"Esc", "Quit"},
	}

	items := make([]string, 0, len(shortcuts))
	for _, sc := range shortcuts {
		items = append(items, s.statusKey.Render(sc.key)+s.statusDesc.Render(" "+sc.desc))
	}

	bar := strings.Join(items, "  │  ")
	if n := len(m.attachments); n > 0 {
		bar += "  " + s.imageLink.Render(fmt.Sprintf("📎 %d", n))
	}
	if m.notice != "" {
		bar += "  " + s.notice.Render(m.notice)
	}
	return s.statusBar.Width(width).Align(lipgloss.Center).Render(bar)
}

// updateViewport refreshes the viewport content with styled messages
func (m *Model) updateViewport() {
	var content strings.Builder
	s := m.styles
	bubbleWidth := m.viewport.Width - 6

	for i, msg := range m.messages {
		if i > 0 {
			content.WriteString("\n")
		}

		switch msg.kind {
		case kindUser:
			content.WriteString(s.userLabel.Render("⬤ You") + "\n")
			content.WriteString(s.userBubble.Width(bubbleWidth).Render(m.withImages(msg.content, msg.images)))

		case kindModel:
			content.WriteString(s.assistantLabel.Render("✦ Gemini") + "\n")
			rendered, err := render.Markdown(msg.content, m.opts.Markdown.WithWidth(bubbleWidth-4))
			if err != nil {
				rendered = msg.content
			}
			body := m.withImages(strings.TrimRight(rendered, "\n"), msg.images)
			content.WriteString(s.assistantBubble.Width(bubbleWidth).Render(body))

		case kindError:
			content.WriteString(s.errorLabel.Render("⚠ Error") + "\n")
			content.WriteString(s.errorBubble.Width(bubbleWidth).Render(msg.content))
		}
		content.WriteString("\n")
	}

	m.viewport.SetContent(content.String())
}

// withImages appends one label line per image reference to body
func (m Model) withImages(body string, images []string) string {
	for j, ref := range images {
		if body != "" {
			body += "\n"
		}
		body += m.styles.imageLink.Render(render.ImageLabel(j, ref))
	}
	return body
}

func (m Model) formatError(err error) string {
	var sb strings.Builder
	sb.WriteString(m.styles.errorText.Render("⚠ Error: " + err.Error()))
	if hint := ErrorHint(err); hint != "" {
		sb.WriteString("\n")
		sb.WriteString(m.styles.errorHint.Render("💡 " + hint))
	}
	return sb.String()
}

// Run starts the chat TUI. Inbound messages from gw are injected into the
// program; the program ends when the user quits or ctx is cancelled.
func Run(ctx context.Context, gw *gateway.Gateway, sender Sender, opts Options) error {
	p := tea.NewProgram(NewChatModel(sender, opts), tea.WithAltScreen(), tea.WithContext(ctx))

	sub := gw.Subscribe(func(msg models.InboundMessage) {
		p.Send(InboundMsg{Message: msg})
	})
	defer sub.Unsubscribe()

	go func() {
		select {
		case <-gw.Done():
			var err error
			if opts.ConnErr != nil {
				err = opts.ConnErr()
			}
			p.Send(DisconnectedMsg{Err: err})
		case <-ctx.Done():
		}
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
