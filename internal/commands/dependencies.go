package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/atotto/clipboard"

	"github.com/diogo/geminichat/internal/config"
	"github.com/diogo/geminichat/internal/conversation"
	"github.com/diogo/geminichat/internal/render"
	"github.com/diogo/geminichat/internal/tui"
)

// TUIInterface defines the methods required from the TUI package.
type TUIInterface interface {
	RunChat(ctx context.Context, session *Session, opts tui.Options) error
}

// Dependencies holds the external dependencies for the commands.
// This allows for dependency injection and easier testing.
type Dependencies struct {
	// LoadConfig returns the effective configuration before flag overrides.
	LoadConfig func() (config.Config, error)

	// Connect opens a session to the relay server.
	Connect func(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...conversation.Option) (*Session, error)

	// TUI is the terminal user interface.
	TUI TUIInterface

	// Clipboard writes text to the system clipboard.
	Clipboard func(string) error

	Stdout io.Writer
	Stderr io.Writer

	// IsTTY reports whether Stdout is a terminal.
	IsTTY func() bool
}

// DefaultTUI is the production implementation of TUIInterface.
type DefaultTUI struct{}

// RunChat runs the bubbletea chat program on session
func (d *DefaultTUI) RunChat(ctx context.Context, session *Session, opts tui.Options) error {
	return tui.Run(ctx, session.Gateway, session.Tracker, opts)
}

// NewDependencies creates a new Dependencies struct with default implementations.
func NewDependencies() *Dependencies {
	return &Dependencies{
		LoadConfig: config.LoadConfig,
		Connect:    Connect,
		TUI:        &DefaultTUI{},
		Clipboard:  clipboard.WriteAll,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		IsTTY:      isStdoutTTY,
	}
}

// effectiveConfig loads the configuration and applies global flag overrides
func (d *Dependencies) effectiveConfig() (config.Config, error) {
	cfg, err := d.LoadConfig()
	if err != nil {
		return cfg, err
	}
	if endpointFlag != "" {
		cfg.Endpoint = endpointFlag
	}
	if verboseFlag {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, render.ValidateStyle(render.OptionsFromConfig(cfg).Style)
}

// newLogger returns a text logger on w: Info with verbose, Warn otherwise
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
