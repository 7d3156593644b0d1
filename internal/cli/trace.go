package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tomasbasham/rtkernel"
)

// traceDocument is the YAML export of a recorded run.
type traceDocument struct {
	ID       string           `yaml:"id"`
	Scenario string           `yaml:"scenario"`
	Ticks    uint64           `yaml:"ticks"`
	Output   string           `yaml:"output,omitempty"`
	Faults   []string         `yaml:"faults,omitempty"`
	Events   []rtkernel.Event `yaml:"events"`
}

func newTraceCmd() *cobra.Command {
	var (
		dbPath string
		kind   string
		format string
		output bool
	)

	cmd := &cobra.Command{
		Use:   "trace <run-id>",
		Short: "Print the scheduler events of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := eventKindFlag(kind)
			if err != nil {
				return err
			}

			st, err := openStore(cmd, dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			events, err := st.ListEvents(cmd.Context(), run.ID, filter)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}

			out := cmd.OutOrStdout()
			switch format {
			case "text":
			case "yaml":
				doc := traceDocument{
					ID:       run.ID,
					Scenario: run.Scenario,
					Ticks:    run.Ticks,
					Faults:   run.Faults,
					Events:   events,
				}
				if output {
					doc.Output = run.Output
				}
				enc := yaml.NewEncoder(out)
				defer enc.Close()
				return enc.Encode(doc)
			default:
				return fmt.Errorf("unknown format %q (want text or yaml)", format)
			}

			fmt.Fprintf(out, "Run %s: scenario %s, %d ticks\n", run.ID, run.Scenario, run.Ticks)
			if output {
				fmt.Fprint(out, run.Output)
			}
			for _, e := range events {
				fmt.Fprintln(out, e)
			}
			for _, f := range run.Faults {
				fmt.Fprintf(out, "fault: %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database holding recorded runs")
	cmd.Flags().StringVar(&kind, "kind", "", "Only print events of this kind (switch, escalate, inherit, block, wake, terminate)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, yaml)")
	cmd.Flags().BoolVar(&output, "output", false, "Also print the console output of the run")

	return cmd
}
