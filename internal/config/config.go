package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/manifoldco/promptui"

	"multidrive/internal/crypto"
)

const (
	// ConfigFile is the encrypted configuration file, stored next to the
	// executable together with the salt file and the metadata database.
	ConfigFile   = "config.json.enc"
	SaltFileName = "config.salt"
)

// Config holds the OAuth client credentials. User accounts live in the
// database; this file only carries what is needed to mint tokens.
type Config struct {
	GoogleClient ClientCredentials `json:"google_client"`
}

// ClientCredentials holds an OAuth 2.0 client ID and secret.
type ClientCredentials struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

// BaseDir overrides the directory holding config artifacts. When empty the
// executable's directory is used. Tests point this at a temp dir.
var BaseDir string

// GetConfigPath returns the path of name in the config directory.
func GetConfigPath(name string) string {
	if BaseDir != "" {
		return filepath.Join(BaseDir, name)
	}
	execPath, err := os.Executable()
	if err != nil {
		return name
	}
	return filepath.Join(filepath.Dir(execPath), name)
}

// Exists reports whether an encrypted config file is present.
func Exists() bool {
	_, err := os.Stat(GetConfigPath(ConfigFile))
	return err == nil
}

// DeriveKey loads the salt and derives the master key from the password.
func DeriveKey(masterPassword string) ([]byte, error) {
	salt, err := crypto.LoadSalt(GetConfigPath(SaltFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("salt file not found. please run the 'init' command first")
		}
		return nil, fmt.Errorf("failed to read salt file: %w", err)
	}
	return crypto.DeriveKey(masterPassword, salt), nil
}

// Load decrypts and loads the configuration using the master password.
func Load(masterPassword string) (*Config, error) {
	key, err := DeriveKey(masterPassword)
	if err != nil {
		return nil, err
	}

	ciphertext, err := os.ReadFile(GetConfigPath(ConfigFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("config file not found. please run the 'init' command first")
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	plaintext, err := crypto.Decrypt(key, ciphertext)
	if err != nil {
		return nil, errors.New("failed to decrypt config: master password may be incorrect")
	}

	var cfg Config
	if err := json.Unmarshal(plaintext, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Save encrypts and writes the configuration. A salt file is created on
// first save.
func Save(masterPassword string, cfg *Config) error {
	saltPath := GetConfigPath(SaltFileName)
	if _, err := os.Stat(saltPath); os.IsNotExist(err) {
		if _, err := crypto.GenerateAndSaveSalt(saltPath); err != nil {
			return fmt.Errorf("failed to create salt file: %w", err)
		}
	}

	key, err := DeriveKey(masterPassword)
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	ciphertext, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt config: %w", err)
	}

	return os.WriteFile(GetConfigPath(ConfigFile), ciphertext, 0600)
}

// GetMasterPassword prompts for the master password without echoing it.
func GetMasterPassword(confirm bool) (string, error) {
	validate := func(input string) error {
		if len(input) < 8 {
			return errors.New("password must be at least 8 characters long")
		}
		return nil
	}

	prompt := promptui.Prompt{
		Label:    "Enter Master Password",
		Mask:     '*',
		Validate: validate,
	}
	password, err := prompt.Run()
	if err != nil {
		return "", err
	}

	if confirm {
		confirmPrompt := promptui.Prompt{
			Label:    "Confirm Master Password",
			Mask:     '*',
			Validate: validate,
		}
		confirmation, err := confirmPrompt.Run()
		if err != nil {
			return "", err
		}
		if password != confirmation {
			return "", errors.New("passwords do not match")
		}
	}

	return password, nil
}
