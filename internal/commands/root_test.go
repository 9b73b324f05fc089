package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommand_Help(t *testing.T) {
	cmd := rootCmd
	if cmd.Use != "geminichat [prompt]" {
		t.Errorf("Expected use 'geminichat [prompt]', got %s", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("Short description should not be empty")
	}

	if cmd.Long == "" {
		t.Error("Long description should not be empty")
	}
}

func TestRootCommand_Args(t *testing.T) {
	if rootCmd.Args == nil {
		t.Fatal("Args validation should be configured")
	}
	if err := rootCmd.Args(rootCmd, []string{"a", "b"}); err == nil {
		t.Error("two positional prompts should be rejected")
	}
}

func TestRootCommand_Flags(t *testing.T) {
	for _, name := range []string{"output", "file", "image", "raw", "version"} {
		if rootCmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s not registered", name)
		}
	}
	for _, name := range []string{"endpoint", "verbose"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag --%s not registered", name)
		}
	}
	if f := rootCmd.Flags().ShorthandLookup("i"); f == nil || f.Name != "image" {
		t.Error("-i should be the shorthand for --image")
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"chat", "config"} {
		if !names[want] {
			t.Errorf("subcommand %q not registered", want)
		}
	}
}

func TestRootCommand_Version(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		_ = rootCmd.Flags().Set("version", "false")
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(out.String(), "geminichat "+Version) {
		t.Errorf("version output = %q", out.String())
	}
}

func TestReadPrompt(t *testing.T) {
	dir := t.TempDir()
	promptFile := filepath.Join(dir, "prompt.md")
	if err := os.WriteFile(promptFile, []byte("from file"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		file   string
		args   []string
		want   string
		wantOK bool
		errMsg string
	}{
		{name: "positional argument", args: []string{"from arg"}, want: "from arg", wantOK: true},
		{name: "file wins over argument", file: promptFile, args: []string{"from arg"}, want: "from file", wantOK: true},
		{name: "nothing given", wantOK: false},
		{name: "missing file", file: filepath.Join(dir, "missing.md"), errMsg: "failed to read file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fileFlag = tt.file
			defer func() { fileFlag = "" }()

			got, ok, err := readPrompt(tt.args, strings.NewReader("ignored"))
			if tt.errMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
					t.Fatalf("readPrompt() error = %v, want %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("readPrompt() error: %v", err)
			}
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("readPrompt() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestReadPrompt_PipedStdin(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if _, err := w.WriteString("from stdin"); err != nil {
		t.Fatal(err)
	}
	w.Close()

	got, ok, err := readPrompt([]string{"from arg"}, r)
	if err != nil {
		t.Fatalf("readPrompt() error: %v", err)
	}
	if !ok || got != "from stdin" {
		t.Errorf("readPrompt() = (%q, %v), want piped input", got, ok)
	}
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer

	newLogger(&buf, false).Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be suppressed without verbose, got %q", buf.String())
	}

	newLogger(&buf, true).Info("shown", "endpoint", "http://x")
	if !strings.Contains(buf.String(), "shown") || !strings.Contains(buf.String(), "endpoint=http://x") {
		t.Errorf("verbose logger output = %q", buf.String())
	}
}
