// Package config loads flywheel settings from defaults, a YAML file, and
// the environment, in that order of precedence.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/flywheel/internal/errs"
	"github.com/roach88/flywheel/internal/store"
)

// DefaultFile is the configuration file looked up in the working directory
// when no file is named.
const DefaultFile = ".flywheel.yaml"

// Environment variables that override file settings.
const (
	EnvPath              = "FLYWHEEL_DB"
	EnvLockTimeout       = "FLYWHEEL_LOCK_TIMEOUT"
	EnvStrictPermissions = "FLYWHEEL_STRICT_PERMISSIONS"
)

const opConfig = "config"

// Config holds every user-facing setting.
type Config struct {
	Path              string   `yaml:"path"`
	Root              string   `yaml:"root"`
	LockTimeout       Duration `yaml:"lock_timeout"`
	StrictPermissions bool     `yaml:"strict_permissions"`
	Durable           bool     `yaml:"durable"`
	Backup            bool     `yaml:"backup"`
	BackupCount       int      `yaml:"backup_count"`
	MaxFileSize       int64    `yaml:"max_file_size"`
	CompactThreshold  int      `yaml:"compact_threshold"`
	Cache             bool     `yaml:"cache"`
	SlowThreshold     Duration `yaml:"slow_threshold"`

	// Journal is the SQLite operation journal. Empty disables it.
	Journal string `yaml:"journal"`

	LogLevel string `yaml:"log_level"`
}

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

// UnmarshalYAML parses strings such as "250ms" or "10s".
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Path:             store.DefaultPath,
		LockTimeout:      Duration(store.DefaultLockTimeout),
		Durable:          true,
		Backup:           true,
		BackupCount:      store.DefaultBackupCount,
		MaxFileSize:      store.DefaultMaxFileSize,
		CompactThreshold: store.DefaultCompactThreshold,
		SlowThreshold:    Duration(store.DefaultSlowThreshold),
		LogLevel:         "info",
	}
}

// Load reads the YAML file at path over the defaults. An empty path tries
// DefaultFile and quietly uses the defaults when it is absent; a named file
// that does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errs.IO(opConfig, path, err)
	}

	if err := Parse(path, data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse validates data against the schema and decodes it into cfg. Fields
// absent from data keep their current values.
func Parse(path string, data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return errs.ValidationWrap(opConfig, path, err, "failed to parse YAML")
	}
	if raw == nil {
		return nil
	}
	if err := validateSchema(raw); err != nil {
		return errs.ValidationWrap(opConfig, path, err, "schema")
	}

	// Parse YAML with strict field validation (catches typos the schema
	// might let through in nested values)
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return errs.ValidationWrap(opConfig, path, err, "failed to decode YAML")
	}
	return nil
}

// ApplyEnv overrides cfg from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPath); ok && v != "" {
		c.Path = v
	}
	if v, ok := lookup(EnvLockTimeout); ok && v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return errs.ValidationWrap(opConfig, EnvLockTimeout, err, "invalid lock timeout %q", v)
		}
		c.LockTimeout = Duration(d)
	}
	if v, ok := lookup(EnvStrictPermissions); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errs.ValidationWrap(opConfig, EnvStrictPermissions, err, "invalid boolean %q", v)
		}
		c.StrictPermissions = b
	}
	return nil
}

// parseTimeout accepts a duration string or a bare number of seconds.
func parseTimeout(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("must be positive")
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return d, nil
}

// Level returns the slog level named by LogLevel, Info when unset.
func (c Config) Level() (slog.Level, error) {
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo, errs.ValidationWrap(opConfig, "log_level", err, "invalid log level %q", c.LogLevel)
	}
	return l, nil
}

// Store converts c into a store.Config.
func (c Config) Store(logger *slog.Logger, observers ...store.Observer) store.Config {
	return store.Config{
		Path:              c.Path,
		Root:              c.Root,
		LockTimeout:       c.LockTimeout.Std(),
		StrictPermissions: c.StrictPermissions,
		Durable:           store.Bool(c.Durable),
		Backup:            c.Backup,
		BackupCount:       c.BackupCount,
		MaxFileSize:       c.MaxFileSize,
		CompactThreshold:  c.CompactThreshold,
		Cache:             c.Cache,
		SlowThreshold:     c.SlowThreshold.Std(),
		Logger:            logger,
		Observers:         observers,
	}
}
