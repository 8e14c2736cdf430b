// Package cmd provides the CLI commands for amannotes.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
	"github.com/Aman-CERP/amannotes/internal/logging"
	"github.com/Aman-CERP/amannotes/internal/profiling"
	"github.com/Aman-CERP/amannotes/pkg/version"
)

// Global flags
var (
	configDir      string
	debugMode      bool
	loggingCleanup func()
)

// Profiling flags
var (
	profileOpts profiling.Options
	profiler    *profiling.Session
)

// NewRootCmd creates the root command for the amannotes CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amannotes",
		Short: "Local search over a directory of notes",
		Long: `amannotes keeps a lexical index and an optional vector index of a
notes directory in sync, and answers keyword and natural-language queries
over both.

Run 'amannotes index' once, then 'amannotes search <query>', or keep the
index live with 'amannotes watch' or 'amannotes serve'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("amannotes version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configDir, "dir", "C", ".", "Notebook directory holding .amannotes.yaml")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDropCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging installs a bootstrap logger until the config
// is loaded and starts any requested profiles. File logging starts once
// openApp has read logging.* from the config.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	cfg.FilePath = ""
	cfg.WriteToStderr = debugMode
	if debugMode {
		cfg.Level = "debug"
	}
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup

	if profileOpts.Enabled() {
		profiler, err = profiling.Start(profileOpts)
		if err != nil {
			return err
		}
	}
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	err := stopProfiling()
	closeLogging()
	return err
}

func stopProfiling() error {
	if profiler == nil {
		return nil
	}
	err := profiler.Stop()
	profiler = nil
	if err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}

func closeLogging() {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command and prints coded errors with their
// suggestion.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		slog.Default().LogAttrs(context.Background(), slog.LevelError, "command_failed", amerrors.LogAttrs(err)...)
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), amerrors.FormatForCLI(err))
	}
	// PersistentPostRunE is skipped when RunE fails.
	_ = stopProfiling()
	closeLogging()
	return err
}
