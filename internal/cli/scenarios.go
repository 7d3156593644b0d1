package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/rtkernel/internal/scenario"
)

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the available scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-15s  %-8s  %s\n", "NAME", "TICKS", "DESCRIPTION")
			for _, s := range scenario.All() {
				fmt.Fprintf(out, "%-15s  %-8d  %s\n", s.Name, s.DefaultTicks, s.Description)
			}
			return nil
		},
	}
}
