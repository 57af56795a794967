package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/bytehunter/pkg/config"
	"github.com/vulntor/bytehunter/pkg/logging"
	"github.com/vulntor/bytehunter/pkg/workspace"
)

const cliExecutable = "bytehunter"

// NewCommand constructs the top-level bytehunter CLI command. Its pre-run
// loads configuration, configures logging and prepares the workspace for
// every subcommand.
func NewCommand() *cobra.Command {
	var (
		configFile  string
		noWorkspace bool
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "ByteHunter orchestrates security assessment workflows",
		Long: `ByteHunter plans an assessment as a dependency graph of tasks (reconnaissance,
vulnerability scanning, exploitation probes, posture review and reporting),
dispatches each task to its specialist worker and synthesizes a markdown report
from the aggregated findings.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			mgr := config.NewManager()
			if err := mgr.LoadDefaults(configFile, cmd.Flags(), debug); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			cfg := mgr.Get()
			if err := logging.ConfigureGlobalLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}

			ctx := config.WithManager(cmd.Context(), mgr)
			if !noWorkspace {
				prepared, err := workspace.Prepare(cfg.Workspace.Dir)
				if err != nil {
					return fmt.Errorf("prepare workspace: %w", err)
				}
				ctx = workspace.WithContext(ctx, prepared)
				log.Debug().Str("workspace", prepared).Msg("Workspace ready")
			} else {
				log.Debug().Msg("Workspace disabled for this run")
			}

			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	pf := cmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Configuration file path")
	pf.String("workspace", "", "Override workspace root directory")
	pf.BoolVar(&noWorkspace, "no-workspace", false, "Disable workspace persistence for this run")
	pf.BoolVar(&debug, "debug", false, "Enable debug logging")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("log-format", "", "Log format (text, json)")
	pf.BoolP("quiet", "q", false, "Suppress non-essential output")
	pf.Bool("no-color", false, "Disable colored output")

	cmd.AddGroup(&cobra.Group{ID: "assess", Title: "Assessment Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands"})

	cmd.AddCommand(newAssessCommand())
	cmd.AddCommand(newPlanCommand())
	cmd.AddCommand(newWorkersCommand())
	cmd.AddCommand(newReportsCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// configFrom returns the configuration loaded by the root pre-run, or the
// defaults when a command runs without it.
func configFrom(cmd *cobra.Command) config.Config {
	if mgr, ok := config.FromContext(cmd.Context()); ok {
		return mgr.Get()
	}
	return config.DefaultConfig()
}

// workspaceFrom returns the prepared workspace, if any.
func workspaceFrom(cmd *cobra.Command) *workspace.Workspace {
	if root, ok := workspace.FromContext(cmd.Context()); ok {
		return &workspace.Workspace{Root: root}
	}
	return nil
}
