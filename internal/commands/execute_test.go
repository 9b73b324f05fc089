package commands

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestExecuteWrapperSuccess(t *testing.T) {
	old := rootCmd
	rootCmd = &cobra.Command{
		Use: "test",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Context() == nil {
				t.Error("command should run with a context")
			}
			return nil
		},
	}
	rootCmd.SetArgs([]string{})
	defer func() { rootCmd = old }()

	// Should not call os.Exit for successful execution
	Execute()
}
