// Package config loads backhaul's configuration: embedded TOML defaults,
// then the user's key-value config file, then BACKHAUL_* environment
// overrides. The result is an explicit value handed to every component;
// nothing reads configuration ambiently after startup.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/arthur-debert/backhaul/pkg/errors"
)

// RunLogName is the one file in the working store the bulk wipe skips.
const RunLogName = "backhaul.log"

// DecryptedArchiveName is the single well-known name the decrypt stage
// writes to; at most one decrypted archive exists at a time.
const DecryptedArchiveName = "decrypted_backup.tar.gz"

// Config is the full configuration for one invocation.
type Config struct {
	Remote RemoteConfig `koanf:"remote"`
	Store  StoreConfig  `koanf:"store"`
	Tools  ToolsConfig  `koanf:"tools"`
	Wipe   WipeConfig   `koanf:"wipe"`
	Poll   PollConfig   `koanf:"poll"`
}

// RemoteConfig identifies the producer host and its artifact naming.
type RemoteConfig struct {
	Host   string `koanf:"host"`
	Dir    string `koanf:"dir"`
	Prefix string `koanf:"prefix"`
	Suffix string `koanf:"suffix"`
}

// StoreConfig holds the two local stores: the durable encrypted-backups
// store and the transient working store.
type StoreConfig struct {
	Encrypted string `koanf:"encrypted"`
	Working   string `koanf:"working"`
}

// ToolsConfig names the external tools the pipeline shells out to.
type ToolsConfig struct {
	SSH    string `koanf:"ssh"`
	SCP    string `koanf:"scp"`
	GPG    string `koanf:"gpg"`
	Gunzip string `koanf:"gunzip"`
	Tar    string `koanf:"tar"`
	Wipe   string `koanf:"wipe"`
}

// WipeConfig parameterizes secure deletion.
type WipeConfig struct {
	Passes  int `koanf:"passes"`
	Retries int `koanf:"retries"`
}

// PollConfig parameterizes the latency-absorption polling loops.
type PollConfig struct {
	Attempts int           `koanf:"attempts"`
	Delay    time.Duration `koanf:"delay"`
}

// RunLogPath returns the append-only run log location inside the
// working store.
func (c *Config) RunLogPath() string {
	return filepath.Join(c.Store.Working, RunLogName)
}

// DecryptedArchivePath returns the well-known decrypt target inside the
// working store.
func (c *Config) DecryptedArchivePath() string {
	return filepath.Join(c.Store.Working, DecryptedArchiveName)
}

// DefaultPath returns the config file location used when --config is
// not given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "backhaul", "backhaul.conf")
}

// Load builds the configuration. path may be empty, in which case the
// default location is used if it exists. A path given explicitly must
// exist. Validation failures abort before any network or filesystem
// action.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load built-in defaults")
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), dotenv.ParserEnv("", ".", normalizeKey)); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "failed to load config from %s", path)
		}
	} else if explicit {
		return nil, errors.Newf(errors.ErrConfigLoad, "config file not found: %s", path)
	}

	if err := k.Load(env.Provider("BACKHAUL_", ".", func(s string) string {
		return normalizeKey(strings.TrimPrefix(s, "BACKHAUL_"))
	}), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load environment overrides")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to unmarshal configuration")
	}

	applyStoreDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalizeKey maps file/env keys onto the dotted config tree:
// REMOTE_HOST -> remote.host.
func normalizeKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", ".")
}

func applyStoreDefaults(cfg *Config) {
	if cfg.Store.Encrypted == "" {
		cfg.Store.Encrypted = filepath.Join(xdg.DataHome, "backhaul", "encrypted")
	}
	if cfg.Store.Working == "" {
		cfg.Store.Working = filepath.Join(xdg.DataHome, "backhaul", "working")
	}
	cfg.Store.Encrypted = expandPath(cfg.Store.Encrypted)
	cfg.Store.Working = expandPath(cfg.Store.Working)
}

// expandPath expands a leading ~ and environment variables in a path.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			if path == "~" {
				return home
			}
			return filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

func (c *Config) validate() error {
	if c.Remote.Host == "" {
		return errors.New(errors.ErrConfigInvalid, "remote.host is not set (REMOTE_HOST in the config file)")
	}
	if c.Remote.Dir == "" {
		return errors.New(errors.ErrConfigInvalid, "remote.dir is not set (REMOTE_DIR in the config file)")
	}
	if c.Remote.Prefix == "" {
		return errors.New(errors.ErrConfigInvalid, "remote.prefix is not set")
	}
	if !strings.HasPrefix(c.Remote.Suffix, ".") {
		return errors.Newf(errors.ErrConfigInvalid, "remote.suffix must start with a dot, got %q", c.Remote.Suffix)
	}
	if c.Wipe.Passes < 1 {
		return errors.Newf(errors.ErrConfigInvalid, "wipe.passes must be at least 1, got %d", c.Wipe.Passes)
	}
	if c.Wipe.Retries < 0 {
		return errors.Newf(errors.ErrConfigInvalid, "wipe.retries must not be negative, got %d", c.Wipe.Retries)
	}
	if c.Poll.Attempts < 1 {
		return errors.Newf(errors.ErrConfigInvalid, "poll.attempts must be at least 1, got %d", c.Poll.Attempts)
	}
	for name, tool := range map[string]string{
		"tools.ssh":    c.Tools.SSH,
		"tools.scp":    c.Tools.SCP,
		"tools.gpg":    c.Tools.GPG,
		"tools.gunzip": c.Tools.Gunzip,
		"tools.tar":    c.Tools.Tar,
		"tools.wipe":   c.Tools.Wipe,
	} {
		if tool == "" {
			return errors.Newf(errors.ErrConfigInvalid, "%s is not set", name)
		}
	}
	return nil
}

// EnsureStores creates both store directories. The working store is
// kept private since it holds plaintext while a decrypt is in flight.
func (c *Config) EnsureStores() error {
	if err := os.MkdirAll(c.Store.Encrypted, 0700); err != nil {
		return errors.Wrapf(err, errors.ErrConfigInvalid, "cannot create encrypted store %s", c.Store.Encrypted)
	}
	if err := os.MkdirAll(c.Store.Working, 0700); err != nil {
		return errors.Wrapf(err, errors.ErrConfigInvalid, "cannot create working store %s", c.Store.Working)
	}
	return nil
}
