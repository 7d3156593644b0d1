package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/rtkernel/internal/tracestore"
)

func openStore(cmd *cobra.Command, dbPath string) (*tracestore.SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("--db is required")
	}
	st, err := tracestore.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
	}
	return st, nil
}

func newHistoryCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}
			fmt.Fprintf(out, "%-40s  %-15s  %-8s  %-6s  %s\n", "ID", "SCENARIO", "TICKS", "FAULTS", "CREATED")
			for _, r := range runs {
				fmt.Fprintf(out, "%-40s  %-15s  %-8d  %-6d  %s\n",
					r.ID, r.Scenario, r.Ticks, len(r.Faults), r.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database holding recorded runs")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list (0 for all)")

	return cmd
}
