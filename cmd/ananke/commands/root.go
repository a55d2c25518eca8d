// Package commands provides the ananke command-line interface.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/doubleverify/ananke/internal/logging"
	"github.com/doubleverify/ananke/internal/settings"
)

// Options holds flags shared across every ananke subcommand.
type Options struct {
	ConfigDir string
	Debug     bool
}

// NewRootCommand builds the ananke CLI, wiring logging and the
// ANANKE_CONFIG directory before any subcommand runs.
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "ananke",
		Short: "ananke deploys and audits declarative network device configuration",
		Long: `ananke resolves a set of targets against a fleet inventory, compiles
their YAML+Jinja2 configuration fragments, deploys them concurrently
over gNMI or REST, and can diff telemetry before and after a change.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Init(opts.Debug); err != nil {
				return fmt.Errorf("initializing logging: %w", err)
			}
			if opts.ConfigDir != "" {
				if err := os.Setenv(settings.EnvConfigDir, opts.ConfigDir); err != nil {
					return fmt.Errorf("setting %s: %w", settings.EnvConfigDir, err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("please specify a subcommand, use --help for more information")
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigDir, "config", "c", os.Getenv(settings.EnvConfigDir), "path to the ananke config directory (env: "+settings.EnvConfigDir+")")
	cmd.PersistentFlags().BoolVarP(&opts.Debug, "debug", "d", false, "enable debug logging")

	cmd.AddCommand(
		newSetCmd(opts),
		newGetCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)

	return cmd
}
