package cmd

import (
	"github.com/spf13/cobra"

	"multidrive/internal/logger"
)

var rmCmd = &cobra.Command{
	Use:   "rm <account-id> <node-id>",
	Short: "Delete a file or folder",
	Args:  cobra.ExactArgs(2),
	RunE:  runRm,
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	runner, err := setup()
	if err != nil {
		return err
	}

	if err := runner.Delete(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	if !safeRun {
		logger.Info("Deleted %s", args[1])
	}
	return nil
}
