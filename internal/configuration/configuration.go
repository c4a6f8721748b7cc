// Package configuration loads the tchat config file, initializing it with
// defaults on first run.
package configuration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"tchat/internal/api"
)

var defaultConfig = Config{
	APIURL:          "http://localhost:8080/api",
	PushURL:         "ws://localhost:8080/api/ws",
	RequestTimeout:  60,
	CredentialsFile: "~/.config/tchat/credentials",
	Parameters: api.Parameters{
		OutputLength:      150,
		Temperature:       0.6,
		TopP:              0.7,
		RepetitionPenalty: 1.05,
		Model:             "typhoon-v1.5x-70b-instruct",
	},
}

// Config holds configuration for the tchat tool.
type Config struct {
	// Base URL of the chat backend.
	APIURL string `json:"api_url"`
	// Websocket URL of the push notification channel.
	PushURL string `json:"push_url"`
	// Timeout in seconds for plain request/response calls.
	RequestTimeout int `json:"request_timeout"`
	// Where the bearer token is persisted between runs.
	CredentialsFile string `json:"credentials_file"`
	// Default generation parameters sent with every turn.
	Parameters api.Parameters `json:"parameters"`
}

// Parse a configuration file.
func Parse(path string) (*Config, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "expanding path")
	}

	if err := initializeIfNotPresent(path); err != nil {
		return nil, errors.Wrap(err, "initializing configuration")
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading file")
	}

	config := &Config{}
	if err = json.Unmarshal(bytes, config); err != nil {
		return nil, errors.Wrap(err, "unmarshaling into config")
	}

	credentialsFile, err := ExpandPath(config.CredentialsFile)
	if err != nil {
		return nil, errors.Wrap(err, "expanding credentials file path")
	}
	config.CredentialsFile = credentialsFile
	config.Parameters.Clamp()
	return config, nil
}

// save a configuration file.
func (c *Config) save(path string) error {
	bytes, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}

	err = os.WriteFile(path, bytes, 0644)
	if err != nil {
		return errors.Wrap(err, "writing file")
	}

	return nil
}

// initializeIfNotPresent initializes a config if it does not exist.
func initializeIfNotPresent(path string) error {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}

	// Create the directories.
	dir, _ := filepath.Split(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating folders")
	}

	if err := defaultConfig.save(path); err != nil {
		return errors.Wrap(err, "saving default config")
	}
	return nil
}

// ExpandPath resolves a leading ~/ against the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "getting user home dir")
	}
	return filepath.Join(home, path[2:]), nil
}
