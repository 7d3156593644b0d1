package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tomasbasham/rtkernel"
	"github.com/tomasbasham/rtkernel/internal/config"
	"github.com/tomasbasham/rtkernel/internal/logging"
	"github.com/tomasbasham/rtkernel/internal/scenario"
	"github.com/tomasbasham/rtkernel/internal/tracestore"
)

func newRunCmd() *cobra.Command {
	var (
		ticks      uint64
		configPath string
		dbPath     string
		showTrace  bool
	)

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario and print its console output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ok := scenario.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown scenario %q (available: %s)", args[0], strings.Join(scenario.Names(), ", "))
			}

			cfg := config.Default()
			if configPath != "" {
				var err error
				if cfg, err = config.Load(configPath); err != nil {
					return err
				}
				if !cmd.Flags().Changed("log-level") && !flagDebug {
					logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
				}
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			logger.Info("running scenario", "scenario", s.Name, "ticks", ticks)
			res, runErr := scenario.Execute(ctx, s, ticks, cfg.Options(logger, io.Discard)...)
			if res == nil {
				return runErr
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, res.Output)
			printSummary(out, res)
			if showTrace {
				fmt.Fprintln(out)
				for _, e := range res.Events {
					fmt.Fprintln(out, e)
				}
			}

			if dbPath != "" {
				id, err := saveRun(ctx, dbPath, cfg, res)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run saved: %s\n", id)
			}
			return runErr
		},
	}

	cmd.Flags().Uint64Var(&ticks, "ticks", 0, "Number of ticks to simulate (scenario default when 0)")
	cmd.Flags().StringVar(&configPath, "config", "", "Kernel configuration file (YAML)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database to record the run in")
	cmd.Flags().BoolVar(&showTrace, "trace", false, "Print the scheduler event trace")

	return cmd
}

func printSummary(out io.Writer, res *scenario.Result) {
	fmt.Fprintf(out, "\n%d ticks, %d events, %d faults\n", res.Ticks, len(res.Events), len(res.Faults))
	fmt.Fprintf(out, "%-12s  %-10s  %-6s  %-9s  %s\n", "TASK", "STATE", "BASE", "EFFECTIVE", "RUN TICKS")
	for _, t := range res.Tasks {
		fmt.Fprintf(out, "%-12s  %-10s  %-6s  %-9s  %d\n", t.Name, t.State, t.Base, t.Effective, t.RunTicks)
	}
	for _, f := range res.Faults {
		fmt.Fprintf(out, "fault: %v\n", f)
	}
}

func saveRun(ctx context.Context, dbPath string, cfg config.Kernel, res *scenario.Result) (string, error) {
	st, err := tracestore.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return "", err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return "", fmt.Errorf("migrate %s: %w", dbPath, err)
	}

	cfgYAML, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	faults := make([]string, 0, len(res.Faults))
	for _, f := range res.Faults {
		faults = append(faults, f.Error())
	}

	run := &tracestore.Run{
		Scenario: res.Scenario,
		Ticks:    res.Ticks,
		Config:   string(cfgYAML),
		Output:   res.Output,
		Faults:   faults,
	}
	if err := st.SaveRun(ctx, run, res.Events); err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	return run.ID, nil
}

// eventKindFlag parses an optional --kind flag.
func eventKindFlag(s string) (*rtkernel.EventKind, error) {
	if s == "" {
		return nil, nil
	}
	var k rtkernel.EventKind
	if err := k.UnmarshalText([]byte(s)); err != nil {
		return nil, err
	}
	return &k, nil
}
