package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:   "browse <account-id> [folder-id]",
	Short: "List the contents of a folder",
	Long: `Lists the children of a folder in the given account. Without a folder ID
the account's root is listed. When the account cannot be reached the last
cached listing is shown instead.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	runner, err := setup()
	if err != nil {
		return err
	}

	folderID := ""
	if len(args) == 2 {
		folderID = args[1]
	}

	nodes, fromCache, err := runner.Browse(cmd.Context(), args[0], folderID)
	if err != nil {
		return err
	}

	if fromCache {
		fmt.Println("(showing cached listing, account unreachable)")
	}
	if len(nodes) == 0 {
		fmt.Println("Empty folder.")
		return nil
	}

	for _, n := range nodes {
		if n.IsFolder() {
			fmt.Printf("d %-40s %10s  %s\n", n.Name, "-", n.ID)
		} else {
			fmt.Printf("- %-40s %10s  %s\n", n.Name, formatBytes(n.Size), n.ID)
		}
	}
	return nil
}
