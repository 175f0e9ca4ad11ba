package cmd

import (
	"github.com/spf13/cobra"
)

var checkTokensCmd = &cobra.Command{
	Use:   "check-tokens",
	Short: "Check the validity of every stored refresh token",
	Long: `Validates the refresh token of every connected account against Google and
updates each account's status. Accounts with a dead token are flagged for
re-authorization via 'add-account'.`,
	RunE: runCheckTokens,
}

func init() {
	rootCmd.AddCommand(checkTokensCmd)
}

func runCheckTokens(cmd *cobra.Command, args []string) error {
	runner, err := setup()
	if err != nil {
		return err
	}
	return runner.CheckTokens()
}
