package cmd

import (
	"errors"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"multidrive/internal/config"
	"multidrive/internal/logger"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the encrypted configuration",
	Long: `Prompts for the Google OAuth client credentials and a master password,
then writes the encrypted configuration file and its salt next to the
executable. Run this once before adding accounts.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if config.Exists() {
		return errors.New("configuration already exists, delete config.json.enc to start over")
	}

	notEmpty := func(input string) error {
		if input == "" {
			return errors.New("value must not be empty")
		}
		return nil
	}

	idPrompt := promptui.Prompt{Label: "Google OAuth Client ID", Validate: notEmpty}
	clientID, err := idPrompt.Run()
	if err != nil {
		return err
	}

	secretPrompt := promptui.Prompt{Label: "Google OAuth Client Secret", Mask: '*', Validate: notEmpty}
	clientSecret, err := secretPrompt.Run()
	if err != nil {
		return err
	}

	password, err := config.GetMasterPassword(true)
	if err != nil {
		return err
	}

	cfg := &config.Config{
		GoogleClient: config.ClientCredentials{ID: clientID, Secret: clientSecret},
	}
	if err := config.Save(password, cfg); err != nil {
		return err
	}

	logger.Info("Configuration written. Run 'multidrive add-account' to connect your first account.")
	return nil
}
