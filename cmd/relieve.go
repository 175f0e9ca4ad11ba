package cmd

import (
	"github.com/spf13/cobra"
)

var relieveCmd = &cobra.Command{
	Use:   "relieve",
	Short: "Offload the primary's largest files if it is low on space",
	Long: `Refreshes the primary account's quota and, when less than 10% of its
storage is free, moves its largest files to backup accounts with their
folder paths recreated. Does nothing when enough space is free.`,
	RunE: runRelieve,
}

func init() {
	rootCmd.AddCommand(relieveCmd)
}

func runRelieve(cmd *cobra.Command, args []string) error {
	runner, err := setup()
	if err != nil {
		return err
	}
	return runner.Relieve(cmd.Context())
}
