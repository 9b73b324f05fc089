package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diogo/geminichat/internal/attach"
	"github.com/diogo/geminichat/internal/render"
	"github.com/diogo/geminichat/internal/tui"
)

var chatImageFlags []string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Args:  cobra.NoArgs,
	Long: `Start an interactive chat session over one Socket.IO connection.

Progress updates from the server are shown while a reply is generated.
Images given with -i are attached to the first message; during the chat,
'/image <path>' attaches one to the next message and '/detach' drops them.
Type 'exit', 'quit', or press Ctrl+C to end the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context(), deps, chatImageFlags)
	},
}

func init() {
	chatCmd.Flags().StringArrayVarP(&chatImageFlags, "image", "i", nil, "Image to attach to the first message (repeatable)")
}

func runChat(ctx context.Context, deps *Dependencies, imageRefs []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := deps.effectiveConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	// bubbletea owns the terminal, so connection logs only reach stderr
	// when asked for.
	logger := newLogger(deps.Stderr, cfg.Verbose)

	images, err := attach.ResolveAll(imageRefs)
	if err != nil {
		return err
	}

	var spin *spinner
	if deps.IsTTY() {
		spin = newSpinner(deps.Stderr, "Connecting to "+cfg.Endpoint)
		spin.start()
	}
	session, err := deps.Connect(ctx, cfg, logger)
	if err != nil {
		if spin != nil {
			spin.stopWithError()
		}
		return err
	}
	if spin != nil {
		spin.stopWithSuccess("Connected")
	}
	defer session.Close()

	return deps.TUI.RunChat(ctx, session, tui.Options{
		Endpoint:        session.Conn.Endpoint(),
		Theme:           cfg.TUITheme,
		Markdown:        render.OptionsFromConfig(cfg),
		CopyToClipboard: cfg.CopyToClipboard,
		ConnErr:         session.Conn.Err,
		Images:          images,
	})
}
