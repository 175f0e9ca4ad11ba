package cmd

import (
	"github.com/spf13/cobra"
)

var removeAccountCmd = &cobra.Command{
	Use:   "remove-account <account-id>",
	Short: "Disconnect an account",
	Long: `Disconnects an account and forgets its cached metadata and stored token.
Files already in the account are left untouched. The primary account cannot
be removed while backup accounts are still connected.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemoveAccount,
}

func init() {
	rootCmd.AddCommand(removeAccountCmd)
}

func runRemoveAccount(cmd *cobra.Command, args []string) error {
	runner, err := setup()
	if err != nil {
		return err
	}
	return runner.RemoveAccount(cmd.Context(), args[0])
}
