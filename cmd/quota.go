package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Print the aggregated storage picture across all accounts",
	Long: `Refreshes the quota numbers of every connected account and prints the
per-account and combined totals. Accounts that cannot be reached keep their
last known numbers.`,
	RunE: runQuota,
}

func init() {
	rootCmd.AddCommand(quotaCmd)
}

func runQuota(cmd *cobra.Command, args []string) error {
	runner, err := setup()
	if err != nil {
		return err
	}

	summary, err := runner.RefreshQuotas(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Println("Quota Summary:")
	fmt.Println("--------------")
	for _, acct := range summary.Accounts {
		fmt.Printf("[%s] %s\n", acct.Role, acct.Email)
		fmt.Printf("  Total: %s\n", formatBytes(acct.QuotaTotal))
		fmt.Printf("  Used:  %s\n", formatBytes(acct.QuotaUsed))
		fmt.Printf("  Free:  %s\n", formatBytes(acct.FreeSpace()))
		fmt.Println()
	}

	fmt.Println("Combined:")
	fmt.Printf("  Total: %s\n", formatBytes(summary.Total))
	fmt.Printf("  Used:  %s\n", formatBytes(summary.Used))
	fmt.Printf("  Free:  %s\n", formatBytes(summary.Free))
	return nil
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
