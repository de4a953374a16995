// Package cli provides the command-line interface for furu.
package cli

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrz1836/furu/internal/applog"
)

// BuildInfo carries version information set at build time via ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// globalLogger stores the logger initialized during PersistentPreRunE for
// use by subcommands. Access is protected by globalLoggerMu.
var (
	globalLogger   zerolog.Logger //nolint:gochecknoglobals // CLI logger requires global access
	globalLoggerMu sync.RWMutex   //nolint:gochecknoglobals // protects globalLogger
)

// Logger returns the initialized logger for use by subcommands. It must
// only be called after the root command's PersistentPreRunE has run; safe
// for concurrent use.
func Logger() zerolog.Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

func setGlobalLogger(l zerolog.Logger) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = l
}

// levelFor maps CLI verbosity flags onto applog.Level.
func levelFor(verbose, quiet bool) applog.Level {
	switch {
	case verbose:
		return applog.LevelVerbose
	case quiet:
		return applog.LevelQuiet
	default:
		return applog.LevelInfo
	}
}

// newRootCmd creates the root command for the furu CLI.
func newRootCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "furu",
		Short:   "furu - a content-addressed cache for expensive, reproducible computations",
		Version: formatVersion(info),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := BindGlobalFlags(v, cmd); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}

			if !IsValidOutputFormat(flags.Output) {
				return fmt.Errorf("%w: %q must be one of %v", ErrInvalidOutputFormat, flags.Output, ValidOutputFormats())
			}

			setGlobalLogger(applog.New(os.Stderr, levelFor(flags.Verbose, flags.Quiet)))
			return nil
		},
		SilenceUsage: true,
	}

	AddGlobalFlags(cmd, flags)

	AddStatusCommand(cmd)
	AddLsCommand(cmd)
	AddShowCommand(cmd)
	AddRmCommand(cmd)
	AddGcCommand(cmd)
	AddServeCommand(cmd)
	AddWatchCommand(cmd)

	return cmd
}

func formatVersion(info BuildInfo) string {
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "none"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date)
}

// Execute runs the root command with the provided context and build info.
func Execute(ctx context.Context, info BuildInfo) error {
	flags := &GlobalFlags{}
	cmd := newRootCmd(flags, info)
	return cmd.ExecuteContext(ctx)
}
