package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amannotes/configs"
	"github.com/Aman-CERP/amannotes/internal/config"
	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
	"github.com/Aman-CERP/amannotes/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
		Long: `Manage the notebook and user configuration files.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/amannotes/config.yaml)
  3. Notebook config (.amannotes.yaml)
  4. .env in the notebook directory
  5. Environment variables (AMANNOTES_*)`,
		Example: `  # Create .amannotes.yaml in the current directory
  amannotes config init

  # Create the user config instead
  amannotes config init --user

  # Show effective configuration
  amannotes config show --json`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		user  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Long: `Write a commented configuration template.

Without --user the notebook config .amannotes.yaml is written to the
directory given by --dir. With --user the machine-wide config is written.
An existing file is kept unless --force is given, in which case it is
backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force, user)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration (a backup is kept)")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user configuration instead of the notebook one")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "user:     %s\n", config.GetUserConfigPath())
			_, _ = fmt.Fprintf(w, "notebook: %s\n", projectConfigPath())
			return nil
		},
	}
}

func projectConfigPath() string {
	path := filepath.Join(configDir, config.ProjectFileName)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func runConfigInit(cmd *cobra.Command, force, user bool) error {
	out := output.New(cmd.OutOrStdout())

	path, template := projectConfigPath(), configs.ProjectConfigTemplate
	if user {
		path, template = config.GetUserConfigPath(), configs.UserConfigTemplate
	}

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Status("💡", "Use --force to overwrite (a backup is kept)")
			return nil
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return amerrors.New(amerrors.ErrCodeConfigInvalid, "could not back up existing config", err)
		}
		out.Statusf("💾", "Backup: %s", backup)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", path)
	out.Status("📋", "Run 'amannotes config show' to verify")
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	var cfg *config.Config
	switch source {
	case "merged":
		var err error
		if cfg, err = config.Load(configDir); err != nil {
			return err
		}
	case "defaults":
		cfg = config.NewConfig()
	default:
		return amerrors.New(amerrors.ErrCodeInvalidInput, fmt.Sprintf("unknown config source %q", source), nil).
			WithSuggestion("Use --source merged or --source defaults")
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
