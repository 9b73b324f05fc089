// Package tui provides the interactive chat interface for geminichat.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	apierrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/render"
)

// styles holds every lipgloss style the chat view uses, derived from one theme
type styles struct {
	theme render.TUITheme

	header    lipgloss.Style
	title     lipgloss.Style
	subtitle  lipgloss.Style
	hint      lipgloss.Style
	connected lipgloss.Style
	offline   lipgloss.Style

	messagesArea    lipgloss.Style
	userLabel       lipgloss.Style
	userBubble      lipgloss.Style
	assistantLabel  lipgloss.Style
	assistantBubble lipgloss.Style
	errorLabel      lipgloss.Style
	errorBubble     lipgloss.Style
	imageLink       lipgloss.Style

	inputPanel lipgloss.Style
	inputLabel lipgloss.Style
	loading    lipgloss.Style
	progress   lipgloss.Style

	statusBar  lipgloss.Style
	statusKey  lipgloss.Style
	statusDesc lipgloss.Style
	notice     lipgloss.Style

	errorText lipgloss.Style
	errorHint lipgloss.Style

	welcome      lipgloss.Style
	welcomeTitle lipgloss.Style
	welcomeIcon  lipgloss.Style
}

func newStyles(theme render.TUITheme) styles {
	return styles{
		theme: theme,

		header: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 2).
			MarginBottom(1),
		title:     lipgloss.NewStyle().Foreground(theme.Primary).Bold(true),
		subtitle:  lipgloss.NewStyle().Foreground(theme.TextDim),
		hint:      lipgloss.NewStyle().Foreground(theme.TextMute).Italic(true),
		connected: lipgloss.NewStyle().Foreground(theme.Secondary),
		offline:   lipgloss.NewStyle().Foreground(theme.Error).Bold(true),

		messagesArea: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(1),
		userLabel: lipgloss.NewStyle().
			Foreground(theme.Secondary).
			Bold(true).
			MarginLeft(4),
		userBubble: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Secondary).
			Padding(0, 1).
			MarginLeft(4),
		assistantLabel: lipgloss.NewStyle().Foreground(theme.Primary).Bold(true),
		assistantBubble: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Primary).
			Foreground(theme.Text).
			Padding(0, 1).
			MarginRight(4),
		errorLabel: lipgloss.NewStyle().Foreground(theme.Error).Bold(true),
		errorBubble: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(theme.Error).
			Foreground(theme.Error).
			Padding(0, 1).
			MarginRight(4),
		imageLink: lipgloss.NewStyle().Foreground(theme.Accent).Underline(true),

		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1).
			MarginTop(1),
		inputLabel: lipgloss.NewStyle().Foreground(theme.Secondary).Bold(true),
		loading:    lipgloss.NewStyle().Foreground(theme.Accent),
		progress:   lipgloss.NewStyle().Foreground(theme.TextDim).Italic(true),

		statusBar:  lipgloss.NewStyle().Foreground(theme.TextMute).MarginTop(1),
		statusKey:  lipgloss.NewStyle().Foreground(theme.Primary).Bold(true),
		statusDesc: lipgloss.NewStyle().Foreground(theme.TextDim),
		notice:     lipgloss.NewStyle().Foreground(theme.Warning),

		errorText: lipgloss.NewStyle().Foreground(theme.Error).Bold(true),
		errorHint: lipgloss.NewStyle().Foreground(theme.TextDim).PaddingLeft(2),

		welcome:      lipgloss.NewStyle().Foreground(theme.TextDim).Align(lipgloss.Center),
		welcomeTitle: lipgloss.NewStyle().Foreground(theme.Primary).Bold(true).Align(lipgloss.Center),
		welcomeIcon:  lipgloss.NewStyle().Foreground(theme.Accent).Bold(true).Align(lipgloss.Center),
	}
}

// ErrorHint returns a one-line suggestion for err, or "" when none applies
func ErrorHint(err error) string {
	switch {
	case apierrors.IsConnectionError(err):
		return "Check that the relay server is running and the endpoint is correct"
	case apierrors.IsTimeoutError(err):
		return "The server stopped answering heartbeats. Try again"
	case apierrors.IsClosed(err):
		return "The connection is closed. Restart to reconnect"
	case apierrors.IsResponseError(err):
		return "The model reported an error. Rephrase or try again later"
	case apierrors.IsProtocolError(err):
		return "The server sent data this client does not understand"
	}
	return ""
}

// FormatError returns a styled error message with additional context
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	s := newStyles(render.ResolveTUITheme(""))

	var sb strings.Builder
	sb.WriteString(s.errorText.Render(fmt.Sprintf("✗ %v", err)))

	if endpoint := apierrors.GetEndpoint(err); endpoint != "" {
		sb.WriteString("\n")
		sb.WriteString(s.errorHint.Render("Endpoint: " + endpoint))
	}
	if hint := ErrorHint(err); hint != "" {
		sb.WriteString("\n")
		sb.WriteString(s.errorHint.Render("Hint: " + hint))
	}

	return sb.String()
}
