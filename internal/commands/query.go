package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/diogo/geminichat/internal/attach"
	"github.com/diogo/geminichat/internal/config"
	"github.com/diogo/geminichat/internal/conversation"
	apierrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/models"
	"github.com/diogo/geminichat/internal/render"
	"github.com/diogo/geminichat/internal/tui"
)

// Styles matching the chat TUI
var (
	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true)

	assistantBubbleStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(colorPrimary).
				Foreground(colorText).
				Padding(0, 1).
				MarginTop(1).
				MarginBottom(1)
)

type queryOptions struct {
	images []string
	output string
	raw    bool
}

// runQuery sends one prompt, waits for the model to finish and prints the
// final reply. A reply with status "error" is returned as a ResponseError.
func runQuery(ctx context.Context, deps *Dependencies, prompt string, opts queryOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" && len(opts.images) == 0 {
		return fmt.Errorf("prompt cannot be empty")
	}

	cfg, err := deps.effectiveConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(deps.Stderr, cfg.Verbose)

	images, err := attach.ResolveAll(opts.images)
	if err != nil {
		return err
	}

	decorated := !opts.raw && deps.IsTTY()

	var spin *spinner
	if decorated {
		spin = newSpinner(deps.Stderr, "Connecting to "+cfg.Endpoint)
		spin.start()
	}
	fail := func(err error) error {
		if spin != nil {
			spin.stopWithError()
		}
		return err
	}

	var trackerOpts []conversation.Option
	if spin != nil {
		trackerOpts = append(trackerOpts, conversation.WithProgressHandler(func(msg models.InboundMessage) {
			spin.setMessage(msg.Message)
		}))
	}

	session, err := deps.Connect(ctx, cfg, logger, trackerOpts...)
	if err != nil {
		return fail(err)
	}
	defer session.Close()

	if spin != nil {
		spin.setMessage("Waiting for response")
	}

	waitCtx := ctx
	if d := cfg.ResponseTimeoutDuration(); d > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	startTime := time.Now()
	if err := session.Tracker.Send(waitCtx, prompt, images); err != nil {
		return fail(err)
	}

	reply, err := session.Tracker.Wait(waitCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = apierrors.NewTimeoutError(fmt.Sprintf("no response within %s", cfg.ResponseTimeoutDuration()))
	}
	if err != nil {
		return fail(err)
	}
	if spin != nil {
		spin.stopWithSuccess("Done")
	}
	logger.Info("response received",
		"conversation", session.Tracker.ID(),
		"progress", len(session.Tracker.Progress()),
		"images", len(reply.Images),
		"took", time.Since(startTime).Round(time.Millisecond))

	return writeReply(deps, cfg, reply, opts, decorated)
}

func writeReply(deps *Dependencies, cfg config.Config, reply models.InboundMessage, opts queryOptions, decorated bool) error {
	text := plainReply(reply)

	if cfg.CopyToClipboard {
		if err := deps.Clipboard(reply.Message); err != nil {
			warnMsg := lipgloss.NewStyle().Foreground(colorError).Render(
				fmt.Sprintf("⚠ Failed to copy to clipboard: %v", err),
			)
			fmt.Fprintln(deps.Stderr, warnMsg)
		} else if decorated {
			clipMsg := lipgloss.NewStyle().Foreground(colorSuccess).Render("✓ Copied to clipboard")
			fmt.Fprintln(deps.Stderr, clipMsg)
		}
	}

	if opts.output != "" {
		if err := os.WriteFile(opts.output, []byte(text), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if decorated {
			successMsg := lipgloss.NewStyle().Foreground(colorSuccess).Render(
				fmt.Sprintf("✓ Response saved to %s", opts.output),
			)
			fmt.Fprintln(deps.Stderr, successMsg)
		}
		return nil
	}

	if !decorated {
		_, err := io.WriteString(deps.Stdout, text)
		return err
	}

	bubbleWidth := getTerminalWidth() - 4
	if bubbleWidth < 40 {
		bubbleWidth = 40
	}
	if bubbleWidth > 120 {
		bubbleWidth = 120
	}
	contentWidth := bubbleWidth - 4

	fmt.Fprintln(deps.Stdout, assistantLabelStyle.Render("✦ Model"))

	renderOpts := render.OptionsFromConfig(cfg).WithWidth(contentWidth)
	rendered, err := render.Markdown(render.ResponseMarkdown(reply.Message, reply.Images), renderOpts)
	if err != nil {
		rendered = render.ResponseMarkdown(reply.Message, reply.Images)
	}
	rendered = strings.TrimRight(rendered, "\n")

	fmt.Fprintln(deps.Stdout, assistantBubbleStyle.Width(bubbleWidth).Render(rendered))
	return nil
}

// plainReply is the undecorated reply: the text, then one image reference
// per line
func plainReply(reply models.InboundMessage) string {
	var sb strings.Builder
	sb.WriteString(reply.Message)
	if !strings.HasSuffix(reply.Message, "\n") {
		sb.WriteString("\n")
	}
	for _, ref := range reply.Images {
		sb.WriteString(ref)
		sb.WriteString("\n")
	}
	return sb.String()
}

// getTerminalWidth returns the terminal width or a default value
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// isStdoutTTY returns true if stdout is connected to a terminal
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// formatErrorMessage formats an error with additional context from structured errors
func formatErrorMessage(err error, context string) string {
	if err == nil {
		return ""
	}

	errorStyle := lipgloss.NewStyle().Foreground(colorError)
	dimStyle := lipgloss.NewStyle().Foreground(colorTextDim)

	var sb strings.Builder
	sb.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s: %v", context, err)))

	if endpoint := apierrors.GetEndpoint(err); endpoint != "" {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("\n  Endpoint: %s", endpoint)))
	}
	if hint := tui.ErrorHint(err); hint != "" {
		sb.WriteString(dimStyle.Render("\n  Hint: " + hint))
	}

	return sb.String()
}
