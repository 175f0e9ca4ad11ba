package cmd

import (
	"github.com/spf13/cobra"

	"multidrive/internal/logger"
	"multidrive/internal/model"
)

var addAccountCmd = &cobra.Command{
	Use:   "add-account",
	Short: "Connect a Google Drive account via OAuth",
	Long: `Opens the Google consent flow in the browser and stores the resulting
refresh token encrypted in the local database. The first account becomes the
primary; later accounts join as backups and get their shared folder created
and shared with the primary right away. Running it for an account that is
already connected (for example one flagged as expired) reconnects it in
place, keeping its role and shared folder.`,
	RunE: runAddAccount,
}

func init() {
	rootCmd.AddCommand(addAccountCmd)
}

func runAddAccount(cmd *cobra.Command, args []string) error {
	runner, err := setup()
	if err != nil {
		return err
	}

	acct, err := runner.AddAccount(cmd.Context())
	if err != nil {
		return err
	}

	if acct.Role == model.RolePrimary {
		logger.Info("Connected %s as the primary account.", acct.Email)
	} else {
		logger.Info("Connected %s as a backup account.", acct.Email)
	}
	return nil
}
