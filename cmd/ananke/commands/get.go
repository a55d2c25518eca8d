package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/doubleverify/ananke/internal/resolver"
)

type getFlags struct {
	operational bool
}

func newGetCmd(root *Options) *cobra.Command {
	flags := &getFlags{}

	cmd := &cobra.Command{
		Use:   "get <hostname> <path>",
		Short: "Get config from a device based on a gNMI path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(flags, args[0], args[1])
		},
	}

	cmd.Flags().BoolVarP(&flags.operational, "operational", "o", false, "fetch operational rather than config state")
	return cmd
}

func runGet(flags *getFlags, hostname, path string) error {
	fleet, err := BuildFleet(map[string]resolver.SectionSet{hostname: resolver.NewSectionSet(nil)}, nil)
	if err != nil {
		return err
	}
	if len(fleet.Targets) != 1 {
		return fmt.Errorf("expected exactly one resolved target for %s, got %d", hostname, len(fleet.Targets))
	}

	conn, ok := fleet.Connectors[fleet.Targets[0].ID]
	if !ok {
		return fmt.Errorf("target %s has no connector", hostname)
	}

	config, err := conn.GetConfig(path, flags.operational)
	if err != nil {
		return err
	}
	color.New(color.FgWhite).Printf("%v\n", config)
	return nil
}
