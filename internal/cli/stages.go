package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newStagesCommand creates the "stages" subcommand that lists the registered
// stages in execution order.
func newStagesCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List registered stages in dependency order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			setup, err := loadSetup(opts, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range setup.Registry.Names() {
				s, _ := setup.Registry.Stage(name)
				deps := "-"
				if len(s.DependsOn) > 0 {
					deps = strings.Join(s.DependsOn, ", ")
				}
				outputs := "-"
				if len(s.Outputs) > 0 {
					outputs = strings.Join(s.Outputs, ", ")
				}
				fmt.Fprintf(out, "%-22s dir=%-24s deps=%-60s outputs=%s\n", s.Name, s.Dir, deps, outputs)
			}
			return nil
		},
	}

	return cmd
}
