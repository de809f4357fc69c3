package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig is matched by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError describes one rejected configuration key
type ConfigError struct {
	Key    string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Key, e.Value, e.Reason)
}

// Is reports whether target is ErrInvalidConfig
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Config is the resolved configuration handed to components
type Config struct {
	WorkspacePath  string
	Remote         string
	Mainline       string
	DocumentPath   string
	Retention      int
	Prefix         string
	CommandTimeout time.Duration
	LogFile        string
	LogLevel       string
	LogJournal     bool
	HistoryEnabled bool
	HistoryPath    string
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workspace.path", "~/.openclaw/workspace")
	v.SetDefault("workspace.remote", "origin")
	v.SetDefault("workspace.mainline", "working")
	v.SetDefault("document.path", "~/.openclaw/openclaw.json")
	v.SetDefault("backup.retention", 7)
	v.SetDefault("backup.prefix", "backup-")
	v.SetDefault("backup.command_timeout", "2m")
	v.SetDefault("log.file", "~/.config/clawkeep/backup.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.journal", false)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "~/.config/clawkeep/history.db")
}

// Load resolves the global viper state into a validated Config
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom resolves v into a validated Config
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Remote:         v.GetString("workspace.remote"),
		Mainline:       v.GetString("workspace.mainline"),
		Retention:      v.GetInt("backup.retention"),
		Prefix:         v.GetString("backup.prefix"),
		CommandTimeout: v.GetDuration("backup.command_timeout"),
		LogLevel:       strings.ToLower(v.GetString("log.level")),
		LogJournal:     v.GetBool("log.journal"),
		HistoryEnabled: v.GetBool("history.enabled"),
	}

	paths := []struct {
		key string
		dst *string
	}{
		{"workspace.path", &cfg.WorkspacePath},
		{"document.path", &cfg.DocumentPath},
		{"log.file", &cfg.LogFile},
		{"history.path", &cfg.HistoryPath},
	}
	for _, p := range paths {
		expanded, err := ExpandPath(v.GetString(p.key))
		if err != nil {
			return nil, fmt.Errorf("failed to expand %s: %w", p.key, err)
		}
		*p.dst = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every key a backup or patch run depends on
func (c *Config) Validate() error {
	var errs []error
	if c.WorkspacePath == "" {
		errs = append(errs, &ConfigError{Key: "workspace.path", Value: c.WorkspacePath, Reason: "must not be empty"})
	}
	if c.Remote == "" {
		errs = append(errs, &ConfigError{Key: "workspace.remote", Value: c.Remote, Reason: "must not be empty"})
	}
	if c.Mainline == "" {
		errs = append(errs, &ConfigError{Key: "workspace.mainline", Value: c.Mainline, Reason: "must not be empty"})
	}
	if c.Retention < 1 {
		errs = append(errs, &ConfigError{Key: "backup.retention", Value: c.Retention, Reason: "must be at least 1"})
	}
	if c.Prefix == "" || strings.ContainsAny(c.Prefix, " ~^:?*[\\") {
		errs = append(errs, &ConfigError{Key: "backup.prefix", Value: c.Prefix, Reason: "must be a non-empty branch name prefix"})
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, &ConfigError{Key: "backup.command_timeout", Value: c.CommandTimeout, Reason: "must be positive"})
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ConfigError{Key: "log.level", Value: c.LogLevel, Reason: "must be debug, info, warn or error"})
	}
	if c.HistoryEnabled && c.HistoryPath == "" {
		errs = append(errs, &ConfigError{Key: "history.path", Value: c.HistoryPath, Reason: "required when history is enabled"})
	}
	return errors.Join(errs...)
}

// ExpandPath replaces a leading ~ with the home directory
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
