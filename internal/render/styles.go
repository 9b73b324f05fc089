package render

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
)

// Glamour built-in style names
const (
	StyleDark    = styles.DarkStyle
	StyleLight   = styles.LightStyle
	StyleDracula = styles.DraculaStyle
	StyleNoTTY   = styles.NoTTYStyle
	StyleASCII   = styles.AsciiStyle
)

// StyleInfo describes a markdown style for display
type StyleInfo struct {
	Name        string
	Description string
}

// AvailableStyles lists the built-in markdown styles.
func AvailableStyles() []StyleInfo {
	return []StyleInfo{
		{Name: StyleDark, Description: "Dark theme (default)"},
		{Name: StyleLight, Description: "Light theme for bright terminals"},
		{Name: StyleDracula, Description: "Dracula color scheme"},
		{Name: StyleNoTTY, Description: "Plain text (no styling)"},
		{Name: StyleASCII, Description: "ASCII-only output"},
	}
}

// IsBuiltinStyle reports whether style names a glamour built-in style
// rather than a path to a JSON style file.
func IsBuiltinStyle(style string) bool {
	_, ok := styles.DefaultStyles[style]
	return ok
}

// ValidateStyle accepts a built-in style name or a readable JSON style file
func ValidateStyle(style string) error {
	if style == "" || IsBuiltinStyle(style) {
		return nil
	}
	info, err := os.Stat(style)
	if err != nil {
		return fmt.Errorf("unknown markdown style %q: not a built-in style or readable file", style)
	}
	if info.IsDir() {
		return fmt.Errorf("markdown style %q is a directory", style)
	}
	return nil
}

func styleOption(style string) glamour.TermRendererOption {
	if cfg, ok := styles.DefaultStyles[style]; ok {
		return glamour.WithStyles(*cfg)
	}
	return glamour.WithStylePath(style)
}
