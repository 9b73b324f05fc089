// Package commands provides CLI commands for geminichat.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	endpointFlag string
	verboseFlag  bool

	// Query flags
	outputFlag string
	fileFlag   string
	imageFlags []string
	rawFlag    bool

	// Version info (set at build time)
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// deps is replaced in tests
var deps = NewDependencies()

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "geminichat [prompt]",
	Short: "Chat with Gemini through a Socket.IO relay server",
	Long: `geminichat talks to a Gemini relay server over a persistent Socket.IO
connection. Each prompt is sent as a "message" event; progress updates and
the final reply arrive as "message" events from the server.

Examples:
  geminichat chat                          Start interactive chat
  geminichat "What is Go?"                 Send a single query
  geminichat -i cat.png "What is this?"    Attach an image
  geminichat -f prompt.md                  Read prompt from file
  cat prompt.md | geminichat               Read prompt from stdin
  geminichat "Hello" -o response.md        Save response to file
  geminichat --endpoint http://10.0.0.2:5000 chat`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Fprintf(cmd.OutOrStdout(), "geminichat %s (built %s)\n", Version, BuildTime)
			return nil
		}

		prompt, ok, err := readPrompt(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if !ok {
			return cmd.Help()
		}

		return runQuery(cmd.Context(), deps, prompt, queryOptions{
			images: imageFlags,
			output: outputFlag,
			raw:    rawFlag,
		})
	},
}

// readPrompt picks the prompt from -f, piped stdin or the positional
// argument, in that order. ok is false when none was given.
func readPrompt(args []string, stdin io.Reader) (prompt string, ok bool, err error) {
	if fileFlag != "" {
		data, err := os.ReadFile(fileFlag)
		if err != nil {
			return "", false, fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), true, nil
	}

	if f, isFile := stdin.(*os.File); isFile {
		stat, err := f.Stat()
		if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
			data, err := io.ReadAll(f)
			if err != nil {
				return "", false, fmt.Errorf("failed to read stdin: %w", err)
			}
			if len(data) > 0 {
				return string(data), true, nil
			}
		}
	}

	if len(args) > 0 {
		return args[0], true, nil
	}
	return "", false, nil
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, formatErrorMessage(err, "Error"))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&endpointFlag, "endpoint", "", "Relay server URL (default from config, then http://127.0.0.1:5000)")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "Log connection details to stderr")
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Save response to file")
	rootCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Read prompt from file")
	rootCmd.Flags().StringArrayVarP(&imageFlags, "image", "i", nil, "Image to attach: file path, URL, data URI or base64 (repeatable)")
	rootCmd.Flags().BoolVar(&rawFlag, "raw", false, "Print only the response text")
	rootCmd.Flags().BoolP("version", "v", false, "Show version and exit")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(configCmd)
}
