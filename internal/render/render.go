// Package render turns model replies into styled terminal output.
package render

import (
	"fmt"
	"strings"
)

// Options configures the markdown renderer behavior.
type Options struct {
	Width int // maximum output width (default: 80)

	// Style is a glamour built-in style name or a path to a JSON style file
	Style string

	EnableEmoji      bool
	PreserveNewLines bool
	TableWrap        bool
	InlineTableLinks bool
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		Width:            80,
		Style:            StyleDark,
		EnableEmoji:      true,
		PreserveNewLines: true,
		TableWrap:        true,
	}
}

// WithWidth returns Options with the specified width.
func (o Options) WithWidth(width int) Options {
	o.Width = width
	return o
}

// WithStyle returns Options with the specified style.
func (o Options) WithStyle(style string) Options {
	o.Style = style
	return o
}

// WithEmoji returns Options with emoji support enabled/disabled.
func (o Options) WithEmoji(enabled bool) Options {
	o.EnableEmoji = enabled
	return o
}

// Markdown renders markdown content for terminal display.
// Uses a pooled renderer; glamour renderers are not safe for concurrent use.
func Markdown(content string, opts Options) (string, error) {
	renderer, err := globalPool.get(opts)
	if err != nil {
		return "", err
	}
	defer globalPool.put(opts, renderer)

	return renderer.Render(content)
}

// ResponseMarkdown appends the reply's image references to its text as a
// markdown list. Inline data URIs are summarized rather than printed.
func ResponseMarkdown(text string, images []string) string {
	if len(images) == 0 {
		return text
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(text, "\n"))
	sb.WriteString("\n\n")
	for i, ref := range images {
		fmt.Fprintf(&sb, "- %s\n", ImageLabel(i, ref))
	}
	return sb.String()
}

// ImageLabel describes image i of a reply in one line
func ImageLabel(i int, ref string) string {
	switch {
	case strings.HasPrefix(ref, "data:"):
		mimeType := strings.TrimPrefix(ref, "data:")
		if end := strings.IndexAny(mimeType, ";,"); end >= 0 {
			mimeType = mimeType[:end]
		}
		return fmt.Sprintf("image %d: inline %s (%d bytes encoded)", i+1, mimeType, len(ref))
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return fmt.Sprintf("[image %d](%s)", i+1, ref)
	default:
		return fmt.Sprintf("image %d: base64 data (%d bytes)", i+1, len(ref))
	}
}
