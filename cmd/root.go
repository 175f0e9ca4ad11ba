// Package cmd wires the CLI surface. Every operational command calls setup
// to unlock the config and database before handing off to the task runner.
package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"multidrive/internal/config"
	"multidrive/internal/database"
	"multidrive/internal/task"
)

var safeRun bool

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "multidrive",
	Short: "Manage multiple Google Drive accounts as one storage pool",
	Long: `multidrive connects several Google Drive accounts, presents their combined
storage, and relocates files between them. The first connected account acts
as the primary; every later account joins as a backup that receives files
through a shared folder when the primary runs low on space.

Configuration and metadata live next to the executable (config.json.enc,
metadata.db), protected by a master password.`,
	SilenceUsage: true,
}

// Execute runs the root command. This is the CLI entry point.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&safeRun, "safe", "s", false, "Perform a dry run without making remote changes")
}

// setup prompts for the master password, decrypts the configuration, opens
// the metadata database and assembles the task runner.
func setup() (*task.Runner, error) {
	if !config.Exists() {
		return nil, errors.New("no configuration found, run 'multidrive init' first")
	}

	password, err := config.GetMasterPassword(false)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(password)
	if err != nil {
		return nil, err
	}

	key, err := config.DeriveKey(password)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(config.GetConfigPath(database.DBFileName), key)
	if err != nil {
		return nil, err
	}

	return task.NewRunner(cfg, db, safeRun), nil
}
