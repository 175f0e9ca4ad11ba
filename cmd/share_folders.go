package cmd

import (
	"github.com/spf13/cobra"
)

var shareFoldersCmd = &cobra.Command{
	Use:   "share-folders",
	Short: "Ensure every backup account's shared folder exists",
	Long: `Creates the shared folder in any backup account that lacks one and grants
the primary account write access on it. Safe to run repeatedly.`,
	RunE: runShareFolders,
}

func init() {
	rootCmd.AddCommand(shareFoldersCmd)
}

func runShareFolders(cmd *cobra.Command, args []string) error {
	runner, err := setup()
	if err != nil {
		return err
	}
	return runner.EnsureSharedFolders(cmd.Context())
}
