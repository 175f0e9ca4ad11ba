package cmd

import (
	"github.com/spf13/cobra"

	"multidrive/internal/logger"
)

var mkdirParent string

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <account-id> <name>",
	Short: "Create a folder",
	Long: `Creates a folder in the given account. The name is rejected if a sibling
already carries it in any casing. Without --parent the folder is created in
the account's root.`,
	Args: cobra.ExactArgs(2),
	RunE: runMkdir,
}

func init() {
	mkdirCmd.Flags().StringVar(&mkdirParent, "parent", "", "ID of the parent folder (defaults to the root)")
	rootCmd.AddCommand(mkdirCmd)
}

func runMkdir(cmd *cobra.Command, args []string) error {
	runner, err := setup()
	if err != nil {
		return err
	}

	node, err := runner.CreateFolder(cmd.Context(), args[0], mkdirParent, args[1])
	if err != nil {
		return err
	}
	if node != nil {
		logger.Info("Created folder '%s' (%s)", node.Name, node.ID)
	}
	return nil
}
