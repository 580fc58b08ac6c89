// Package config loads and saves the adapter-wide TOML settings file,
// directly adapted from the teacher's internal/core/config/config.go: same
// Load/Save/DefaultConfig shape and 0600-permission save, repointed at DAP
// adapter settings instead of a Rails dev-server's process/database/SSH
// config.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the config file this package reads and writes, in the
// directory passed to Load/Save (cmd/lunadap passes the user's home
// directory).
const FileName = ".lunadap.toml"

// Config is the adapter's persisted settings.
type Config struct {
	Log   LogConfig   `toml:"log,omitempty"`
	Debug DebugConfig `toml:"debug,omitempty"`
	Probe ProbeConfig `toml:"probe,omitempty"`
}

// LogConfig controls internal/logging's default level and output.
type LogConfig struct {
	Level string `toml:"level"`
}

// DebugConfig holds debug-session settings. Only CommandTimeoutSeconds is
// read by the adapter; the other fields are loaded and saved but not used.
type DebugConfig struct {
	// DefaultTransport names a transport ("tcp", "unix", or "pipe"). The
	// dispatcher does not read it: a launch/attach request that omits
	// ipcTransport uses tcp.
	DefaultTransport string `toml:"default_transport"`

	// CommandTimeoutSeconds bounds how long the external backend waits for
	// a correlated command reply (spec.md §4.6's "fixed timeout (5
	// seconds)"; kept a constant at any instant but made configurable,
	// resolving the open question of whether it should be).
	CommandTimeoutSeconds int `toml:"command_timeout_seconds"`

	// InProcessByDefault is not read by the dispatcher: a launch request
	// with no explicit inProcess field always runs in-process.
	InProcessByDefault bool `toml:"in_process_by_default"`
}

// ProbeConfig holds the bytecode probe injector's settings (C9).
// MaxConcurrentJobs bounds validator concurrency; CacheSize is not read,
// and the injector's cache has no size bound.
type ProbeConfig struct {
	CacheSize         int `toml:"cache_size"`
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Debug: DebugConfig{
			DefaultTransport:      "tcp",
			CommandTimeoutSeconds: 5,
			InProcessByDefault:    true,
		},
		Probe: ProbeConfig{
			CacheSize:         256,
			MaxConcurrentJobs: 4,
		},
	}
}

// Load reads FileName from dir, returning DefaultConfig unmodified if it
// does not exist.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes c to FileName under dir with owner-only permissions.
func (c *Config) Save(dir string) error {
	path := filepath.Join(dir, FileName)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(c)
}
