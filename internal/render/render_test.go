package render

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.Width != 80 {
		t.Errorf("expected Width=80, got %d", opts.Width)
	}
	if opts.Style != "dark" {
		t.Errorf("expected Style='dark', got %s", opts.Style)
	}
	if !opts.EnableEmoji || !opts.PreserveNewLines || !opts.TableWrap {
		t.Errorf("unexpected defaults: %+v", opts)
	}
	if opts.InlineTableLinks {
		t.Error("expected InlineTableLinks=false")
	}
}

func TestOptionsChaining(t *testing.T) {
	opts := DefaultOptions().WithWidth(100).WithStyle("light").WithEmoji(false)

	if opts.Width != 100 {
		t.Errorf("expected Width=100, got %d", opts.Width)
	}
	if opts.Style != "light" {
		t.Errorf("expected Style='light', got %s", opts.Style)
	}
	if opts.EnableEmoji {
		t.Error("expected EnableEmoji=false")
	}
}

func TestMarkdown(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		width    int
		contains string
	}{
		{"heading", "# Hello World", 80, "Hello"},
		{"bold", "This is **bold** text", 80, "bold"},
		{"code_block", "```go\nfmt.Println(\"hello\")\n```", 80, "Println"},
		{"table", "| A | B |\n|---|---|\n| 1 | 2 |", 80, "A"},
		{"narrow_width", "# Long heading that should wrap", 40, "Long"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			output, err := Markdown(tc.input, DefaultOptions().WithWidth(tc.width))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(output, tc.contains) {
				t.Errorf("output should contain %q, got: %s", tc.contains, output)
			}
		})
	}
}

func TestMarkdownEmoji(t *testing.T) {
	input := "Hello :smile: world"

	output, err := Markdown(input, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(output, ":smile:") {
		t.Errorf("emoji should have been converted, got: %s", output)
	}

	output, err = Markdown(input, DefaultOptions().WithEmoji(false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, ":smile:") {
		t.Errorf("emoji should NOT have been converted, got: %s", output)
	}
}

func TestMarkdown_BuiltinStyles(t *testing.T) {
	for _, s := range AvailableStyles() {
		t.Run(s.Name, func(t *testing.T) {
			if !IsBuiltinStyle(s.Name) {
				t.Errorf("IsBuiltinStyle(%q) = false", s.Name)
			}
			if _, err := Markdown("# Title", DefaultOptions().WithStyle(s.Name)); err != nil {
				t.Errorf("render with %s failed: %v", s.Name, err)
			}
		})
	}
}

func TestMarkdownInvalidStyle(t *testing.T) {
	if IsBuiltinStyle("nonexistent_style_path") {
		t.Error("unknown style reported as built-in")
	}
	_, err := Markdown("# Test", DefaultOptions().WithStyle("nonexistent_style_path"))
	if err == nil {
		t.Error("expected error for invalid style path")
	}
}

func TestValidateStyle(t *testing.T) {
	dir := t.TempDir()
	stylePath := filepath.Join(dir, "style.json")
	if err := os.WriteFile(stylePath, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		style   string
		wantErr bool
	}{
		{"empty", "", false},
		{"builtin", StyleDracula, false},
		{"style file", stylePath, false},
		{"missing file", filepath.Join(dir, "missing.json"), true},
		{"directory", dir, true},
		{"typo", "drakula", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateStyle(tt.style); (err != nil) != tt.wantErr {
				t.Errorf("ValidateStyle(%q) error = %v, wantErr %v", tt.style, err, tt.wantErr)
			}
		})
	}
}

func TestRendererPool_ReusesPerOptions(t *testing.T) {
	ClearCache()
	defer ClearCache()

	opts := DefaultOptions().WithWidth(60)
	for i := 0; i < 3; i++ {
		if _, err := Markdown("text", opts); err != nil {
			t.Fatalf("render failed: %v", err)
		}
	}
	if CacheSize() != 1 {
		t.Errorf("CacheSize() = %d, want 1", CacheSize())
	}

	if _, err := Markdown("text", opts.WithWidth(70)); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if CacheSize() != 2 {
		t.Errorf("CacheSize() = %d, want 2", CacheSize())
	}
}

func TestRendererPool_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := Markdown("**concurrent** render", DefaultOptions()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent render failed: %v", err)
	}
}

func TestResponseMarkdown(t *testing.T) {
	if got := ResponseMarkdown("plain", nil); got != "plain" {
		t.Errorf("ResponseMarkdown without images = %q", got)
	}

	got := ResponseMarkdown("Here you go\n", []string{
		"https://x/cat.png",
		"data:image/png;base64,iVBORw0KGgo=",
		"aGVsbG8=",
	})
	wants := []string{
		"Here you go\n\n",
		"- [image 1](https://x/cat.png)\n",
		"- image 2: inline image/png (34 bytes encoded)\n",
		"- image 3: base64 data (8 bytes)\n",
	}
	for _, w := range wants {
		if !strings.Contains(got, w) {
			t.Errorf("ResponseMarkdown() = %q, missing %q", got, w)
		}
	}
}

func TestTUIThemes(t *testing.T) {
	for _, theme := range AvailableTUIThemes() {
		got, ok := TUIThemeByName(theme.Name)
		if !ok || got.Name != theme.Name {
			t.Errorf("TUIThemeByName(%q) = %v, %v", theme.Name, got.Name, ok)
		}
		if !IsBuiltinStyle(theme.MarkdownStyle) {
			t.Errorf("theme %s uses unknown markdown style %q", theme.Name, theme.MarkdownStyle)
		}
	}

	if ResolveTUITheme("missing").Name != DefaultTUITheme {
		t.Error("unknown theme should resolve to the default")
	}
	if ResolveTUITheme("dracula").Name != "dracula" {
		t.Error("ResolveTUITheme(dracula) returned another theme")
	}
}
