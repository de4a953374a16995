package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/furu/internal/dashboard"
	"github.com/mrz1836/furu/internal/tui"
)

// AddLsCommand adds the ls command to the root command.
func AddLsCommand(root *cobra.Command) {
	var (
		resultStatus  string
		attemptStatus string
		namespace     string
	)

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List cached steps across every storage root",
		Long: `List every cached step found under the configured storage roots.

Results are sorted by last-updated time, most recent first.

Examples:
  furu ls
  furu ls --namespace pipelines.Train
  furu ls --result-status failed
  furu ls --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, _ := cmd.Flags().GetString("root")
			return runLs(cmd, os.Stdout, root, dashboard.Filter{
				ResultStatus:    resultStatus,
				AttemptStatus:   attemptStatus,
				NamespacePrefix: namespace,
			})
		},
	}

	cmd.Flags().StringVar(&resultStatus, "result-status", "", "filter by result status (incomplete|success|failed)")
	cmd.Flags().StringVar(&attemptStatus, "attempt-status", "", "filter by attempt status")
	cmd.Flags().StringVar(&namespace, "namespace", "", "filter by namespace prefix")
	AddRootFlag(cmd)

	root.AddCommand(cmd)
}

func runLs(cmd *cobra.Command, w io.Writer, root string, filter dashboard.Filter) error {
	tui.CheckNoColor()
	outputFormat := cmd.Flag("output").Value.String()

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	experiments, err := dashboard.ScanExperiments(cfg, filter)
	if err != nil {
		return fmt.Errorf("failed to scan experiments: %w", err)
	}

	out := tui.NewOutput(w, outputFormat)

	if len(experiments) == 0 {
		if outputFormat == OutputJSON {
			return out.JSON(experiments)
		}
		out.Info("No cached steps found.")
		return nil
	}

	if outputFormat == OutputJSON {
		return out.JSON(experiments)
	}

	rows := tui.ExperimentsToRows(experiments)
	table := tui.NewStatusTable(rows, tui.WithTerminalWidth(tui.TerminalWidth()))
	return table.Render(w)
}
