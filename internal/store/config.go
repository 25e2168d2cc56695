package store

import (
	"log/slog"
	"time"
)

// Defaults applied by Open to zero-valued Config fields.
const (
	DefaultPath             = ".todo.json"
	DefaultLockTimeout      = 10 * time.Second
	DefaultMaxFileSize      = 10 << 20
	DefaultCompactThreshold = 100
	DefaultBackupCount      = 1
	DefaultSlowThreshold    = time.Second

	// MaxBackupCount bounds backup rotation.
	MaxBackupCount = 10
)

// Config configures a Store.
type Config struct {
	// Path is the JSON file. Relative paths resolve against Root.
	Path string

	// Root confines Path. Empty means the working directory for relative
	// paths and no confinement for absolute ones.
	Root string

	// LockTimeout bounds both the in-process and the OS lock wait.
	LockTimeout time.Duration

	// StrictPermissions rejects files readable by group or others.
	// Files writable by others are always rejected.
	StrictPermissions bool

	// Durable fsyncs the temporary file before rename and the directory
	// after. Nil means true.
	Durable *bool

	// Backup keeps the previous content as "<path>.bak" before each save.
	Backup bool

	// BackupCount is the number of backup generations kept when Backup is on.
	BackupCount int

	// MaxFileSize is the load ceiling in bytes.
	MaxFileSize int64

	// CompactThreshold is the entry count above which the file is written
	// without indentation.
	CompactThreshold int

	// Cache keeps the last loaded set in memory, keyed on file identity.
	Cache bool

	// SlowThreshold is the duration above which an operation is logged at
	// Warn. Negative disables the warning.
	SlowThreshold time.Duration

	// Logger receives diagnostic events. Nil discards them.
	Logger *slog.Logger

	// Observers are notified after every operation.
	Observers []Observer

	// Now is the time source for sweeps and id-less adds. Nil means time.Now.
	Now func() time.Time
}

// SaveOptions tunes a single save.
type SaveOptions struct {
	// Durable overrides Config.Durable for this call.
	Durable bool
}

// Bool returns a pointer to b, for Config.Durable.
func Bool(b bool) *bool {
	return &b
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.Durable == nil {
		c.Durable = Bool(true)
	}
	if c.BackupCount <= 0 {
		c.BackupCount = DefaultBackupCount
	}
	if c.BackupCount > MaxBackupCount {
		c.BackupCount = MaxBackupCount
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.CompactThreshold <= 0 {
		c.CompactThreshold = DefaultCompactThreshold
	}
	if c.SlowThreshold == 0 {
		c.SlowThreshold = DefaultSlowThreshold
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
