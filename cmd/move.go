package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"multidrive/internal/logger"
)

var moveMaintainPath bool

var moveCmd = &cobra.Command{
	Use:   "move <source-account-id> <target-account-id> <file-id>...",
	Short: "Move files from one account to another",
	Long: `Moves the given files to another account, one at a time. The source copy
is only deleted after the new copy has been uploaded and verified. When the
target is a backup account the files land below its shared folder. With
--maintain-path the source folder hierarchy is recreated at the target.`,
	Args: cobra.MinimumNArgs(3),
	RunE: runMove,
}

func init() {
	moveCmd.Flags().BoolVar(&moveMaintainPath, "maintain-path", false, "Recreate the source folder path at the target")
	rootCmd.AddCommand(moveCmd)
}

func runMove(cmd *cobra.Command, args []string) error {
	runner, err := setup()
	if err != nil {
		return err
	}

	fileIDs := args[2:]
	onProgress := func(completed, total int) {
		fmt.Printf("Moved %d/%d\n", completed, total)
	}

	if err := runner.MoveFiles(cmd.Context(), fileIDs, args[0], args[1], moveMaintainPath, onProgress); err != nil {
		return err
	}
	if !safeRun {
		logger.Info("Move finished.")
	}
	return nil
}
