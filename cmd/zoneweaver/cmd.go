package main

import (
	"os"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/zoneweaver/internal/config"
)

// globalFlags are shared by every subcommand. Empty values leave the
// configuration file and ZONEWEAVER_* environment in charge.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	dryRun     bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:     "zoneweaver",
		Short:   "Reconcile DNS record sets across providers",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Show help by default when no subcommand is provided.
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", config.GetConfigFilePath(), "Configuration file, YAML or TOML (env ZONEWEAVER_CONFIG)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format (json|text)")
	cmd.PersistentFlags().BoolVar(&g.dryRun, "dry-run", false, "Plan writes without issuing them")

	cmd.AddCommand(
		newCmdVersion(),
		newCmdRRset(g),
		newCmdRegions(g),
		newCmdWeights(g),
		newCmdSync(g),
	)
	return cmd
}

// envOr returns the environment variable key, or def when it is unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
