package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flywheel/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigFile  string
	Database    string
	Root        string
	LockTimeout time.Duration
	Journal     string

	// Logger receives store diagnostics. Nil discards them.
	Logger *slog.Logger

	// Level, when set, is adjusted from --verbose and the config log level.
	Level *slog.LevelVar

	// LookupEnv reads the environment. Nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// Now stamps created and updated times. Nil means time.Now.
	Now func() time.Time

	// Config is the merged configuration, filled before any command runs.
	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the flywheel CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{})
}

// NewRootCommandWith creates the root command around caller-supplied
// options, so the binary can inject its logger and tests their clock.
func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flywheel",
		Short: "flywheel - a crash-safe todo list",
		Long: `A todo list kept in a single JSON file.

Every change is an atomic load-modify-save under an in-process lock and an
OS advisory lock, so concurrent invocations never lose or duplicate entries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.resolve(cmd)
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigFile, "config", "", "configuration file (default "+config.DefaultFile+" if present)")
	flags.StringVar(&opts.Database, "db", "", "path to the todo file (env "+config.EnvPath+")")
	flags.StringVar(&opts.Root, "root", "", "directory the todo file must stay inside")
	flags.DurationVar(&opts.LockTimeout, "lock-timeout", 0, "lock acquisition timeout (env "+config.EnvLockTimeout+")")
	flags.StringVar(&opts.Journal, "journal", "", "SQLite operation journal")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flag", err)
	})

	// Add subcommands
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewDoneCommand(opts))
	cmd.AddCommand(NewUndoneCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

// Execute runs cmd and reports any error through the output formatter.
// It returns the process exit code.
func Execute(ctx context.Context, cmd *cobra.Command, opts *RootOptions) int {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	code := GetExitCode(err)
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		f.Writer = cmd.OutOrStdout()
	}
	_ = f.Error(errorCode(err), err.Error(), nil)
	return code
}

// resolve merges defaults, the config file, the environment and flags, in
// increasing order of precedence.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return WrapExitError(exitCodeFor(err), "failed to load config", err)
	}

	lookup := o.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return WrapExitError(exitCodeFor(err), "invalid environment", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Path = o.Database
	}
	if flags.Changed("root") {
		cfg.Root = o.Root
	}
	if flags.Changed("lock-timeout") {
		if o.LockTimeout <= 0 {
			return NewExitError(ExitCommandError, "--lock-timeout must be positive")
		}
		cfg.LockTimeout = config.Duration(o.LockTimeout)
	}
	if flags.Changed("journal") {
		cfg.Journal = o.Journal
	}

	if o.Level != nil {
		level, err := cfg.Level()
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid log level", err)
		}
		if o.Verbose {
			level = slog.LevelDebug
		}
		o.Level.Set(level)
	}

	o.Config = cfg
	return nil
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

func (o *RootOptions) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func (o *RootOptions) formatter(w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: w, Verbose: o.Verbose}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
