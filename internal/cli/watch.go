package cli

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mrz1836/furu/internal/config"
	"github.com/mrz1836/furu/internal/dashboard"
	"github.com/mrz1836/furu/internal/tui"
)

// minWatchInterval is the floor for --interval; anything faster risks
// hammering the storage roots with little benefit.
const minWatchInterval = 500 * time.Millisecond

// AddWatchCommand adds the watch command to the root command.
func AddWatchCommand(root *cobra.Command) {
	var (
		interval string
		noBell   bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live-updating view of cached steps",
		Long: `Watch every cached step across the configured storage roots, refreshing
on an interval. Emits a terminal bell when a step newly needs attention
(failed or crashed) unless --no-bell is given.

Examples:
  furu watch
  furu watch --interval 5s
  furu watch --no-bell`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, _ := cmd.Flags().GetString("root")
			d := 2 * time.Second
			if interval != "" {
				parsed, err := time.ParseDuration(interval)
				if err != nil {
					return fmt.Errorf("invalid --interval %q: %w", interval, err)
				}
				if parsed < minWatchInterval {
					return fmt.Errorf("--interval must be at least %s", minWatchInterval)
				}
				d = parsed
			}
			return runWatch(cmd, root, d, noBell)
		},
	}

	cmd.Flags().StringVar(&interval, "interval", "", "refresh interval, e.g. 2s (default 2s)")
	cmd.Flags().BoolVar(&noBell, "no-bell", false, "disable terminal bell on attention-needing changes")
	AddRootFlag(cmd)
	root.AddCommand(cmd)
}

func runWatch(cmd *cobra.Command, root string, interval time.Duration, noBell bool) error {
	tui.CheckNoColor()

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	lister := &scanLister{cfg: cfg}

	quiet, _ := cmd.Flags().GetBool("quiet")

	watchCfg := tui.DefaultWatchConfig()
	watchCfg.Interval = interval
	watchCfg.BellEnabled = !noBell
	watchCfg.Quiet = quiet

	model := tui.NewWatchModel(cmd.Context(), lister, watchCfg)
	program := tea.NewProgram(model, tea.WithAltScreen())

	_, err = program.Run()
	return err
}

// scanLister implements tui.ExperimentLister over dashboard.ScanExperiments
// with no filter, matching `furu ls`'s unfiltered default.
type scanLister struct {
	cfg config.Config
}

func (s *scanLister) List(_ context.Context) ([]dashboard.ExperimentSummary, error) {
	return dashboard.ScanExperiments(s.cfg, dashboard.Filter{})
}
