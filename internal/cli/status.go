package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/furu/internal/dashboard"
	"github.com/mrz1836/furu/internal/tui"
)

// AddStatusCommand adds the status command to the root command.
func AddStatusCommand(root *cobra.Command) {
	var (
		watchMode     bool
		watchInterval time.Duration
		noBell        bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the cache status dashboard",
		Long: `Display aggregate counts and a status table for every cached step across
the configured storage roots.

Watch mode (-w) switches to the live-updating full-screen view (equivalent
to 'furu watch').

Examples:
  furu status
  furu status --output json
  furu status --watch
  furu status -w --interval 5s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, _ := cmd.Flags().GetString("root")
			if watchMode {
				if watchInterval < minWatchInterval {
					return fmt.Errorf("--interval must be at least %s", minWatchInterval)
				}
				return runWatch(cmd, root, watchInterval, noBell)
			}
			return runStatus(cmd, os.Stdout, root)
		},
	}

	cmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "enable watch mode with live updates")
	cmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "refresh interval in watch mode (minimum 500ms)")
	cmd.Flags().BoolVar(&noBell, "no-bell", false, "disable terminal bell in watch mode")
	AddRootFlag(cmd)
	root.AddCommand(cmd)
}

func runStatus(cmd *cobra.Command, w io.Writer, root string) error {
	tui.CheckNoColor()
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	stats, err := dashboard.GetStats(cfg)
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}

	experiments, err := dashboard.ScanExperiments(cfg, dashboard.Filter{})
	if err != nil {
		return fmt.Errorf("failed to scan experiments: %w", err)
	}

	if outputFormat == OutputJSON {
		return out.JSON(map[string]any{"stats": stats, "experiments": experiments})
	}

	out.Info(fmt.Sprintf("Total: %d  Success: %d  Failed: %d  Running: %d  Queued: %d",
		stats.Total, stats.Success, stats.Failed, stats.Running, stats.Queued))

	if len(experiments) == 0 {
		out.Info("No cached steps found.")
		return nil
	}

	rows := tui.ExperimentsToRows(experiments)
	table := tui.NewStatusTable(rows, tui.WithTerminalWidth(tui.TerminalWidth()))
	return table.Render(w)
}
