// Package config loads the optional system-wide provisioning defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// DefaultPath is where the configuration file is looked up unless the
// SKEL_CONFIG environment variable overrides it.
const DefaultPath = "/etc/skel.toml"

// Config represents the optional skel configuration file.
type Config struct {
	Provision ProvisionConfig `toml:"provision"`
	Copy      CopyConfig      `toml:"copy"`
}

// ProvisionConfig holds defaults for creating home directories.
type ProvisionConfig struct {
	SkelDir  *string `toml:"skel_dir"`
	HomeBase *string `toml:"home_base"`
	HomeMode *string `toml:"home_mode"`
}

// CopyConfig holds persistent flag defaults for tree copies.
type CopyConfig struct {
	ResetLabels *bool `toml:"reset_selinux"`
	Verify      *bool `toml:"verify"`
}

// Path returns the resolved path to the config file.
func Path() string {
	if p := os.Getenv("SKEL_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the config file. Returns a zero Config (no error) if the
// file does not exist. Config is always optional.
func Load() (Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(Path(), &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}

// ParseMode parses an octal mode string such as "0750".
func ParseMode(s string) (os.FileMode, error) {
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil || n > 0o7777 {
		return 0, fmt.Errorf("invalid mode %q", s)
	}
	return os.FileMode(n), nil
}
