package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List the connected accounts",
	RunE:  runAccounts,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
}

func runAccounts(cmd *cobra.Command, args []string) error {
	runner, err := setup()
	if err != nil {
		return err
	}

	accounts, err := runner.Accounts()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Println("No accounts connected. Run 'multidrive add-account' to connect one.")
		return nil
	}

	for _, acct := range accounts {
		fmt.Printf("[%s] %s (%s)\n", acct.Role, acct.Email, acct.Status)
		fmt.Printf("  ID:    %s\n", acct.ID)
		fmt.Printf("  Used:  %s of %s\n", formatBytes(acct.QuotaUsed), formatBytes(acct.QuotaTotal))
		if acct.SharedFolderID != "" {
			fmt.Printf("  Share: %s\n", acct.SharedFolderID)
		}
		fmt.Println()
	}
	return nil
}
