package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chatline/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	AuthBaseURL    string `toml:"auth_base_url"`
	MessageBaseURL string `toml:"message_base_url"`
	// SocketURL is the WebSocket endpoint of the message service. When empty
	// it is derived from MessageBaseURL.
	SocketURL string `toml:"socket_url"`
}

// ResolveSocketURL returns SocketURL, deriving the "/ws" endpoint from
// MessageBaseURL when unset.
func (c *Config) ResolveSocketURL() string {
	if c.SocketURL != "" {
		return c.SocketURL
	}
	u := c.MessageBaseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimRight(u, "/") + "/ws"
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
