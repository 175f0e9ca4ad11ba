package cmd

import (
	"github.com/spf13/cobra"

	"multidrive/internal/logger"
)

var uploadFolder string

var uploadCmd = &cobra.Command{
	Use:   "upload <local-path>",
	Short: "Upload a local file to the primary account",
	Long: `Uploads a local file to the primary account. When the primary is low on
free space its largest files are moved to backup accounts first. Without
--folder the file lands in the primary's root.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadFolder, "folder", "", "ID of the destination folder (defaults to the root)")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	runner, err := setup()
	if err != nil {
		return err
	}

	node, err := runner.Upload(cmd.Context(), uploadFolder, args[0])
	if err != nil {
		return err
	}
	if node != nil {
		logger.Info("Uploaded '%s' (%s)", node.Name, node.ID)
	}
	return nil
}
