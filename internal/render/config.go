package render

import (
	"os"

	"github.com/diogo/geminichat/internal/config"
)

// OptionsFromConfig builds render options from the markdown section of cfg.
// GLAMOUR_STYLE takes precedence over the configured style.
func OptionsFromConfig(cfg config.Config) Options {
	opts := DefaultOptions()

	md := cfg.Markdown
	if md.Style != "" {
		opts = opts.WithStyle(md.Style)
	}
	opts = opts.WithEmoji(md.EnableEmoji)
	opts.PreserveNewLines = md.PreserveNewLines
	opts.TableWrap = md.TableWrap
	opts.InlineTableLinks = md.InlineTableLinks

	if style := os.Getenv("GLAMOUR_STYLE"); style != "" {
		opts = opts.WithStyle(style)
	}

	return opts
}
