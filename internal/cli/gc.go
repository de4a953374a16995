package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mrz1836/furu/internal/dashboard"
	"github.com/mrz1836/furu/internal/statestore"
	"github.com/mrz1836/furu/internal/tui"
)

// defaultGCRetention is used when --older-than is not given.
const defaultGCRetention = 7 * 24 * time.Hour

// terminalCheck reports whether stdin is an interactive terminal. A
// package variable so tests can force the non-interactive path without
// a real TTY.
//
//nolint:gochecknoglobals // test injection point, matches teacher's terminalCheck pattern
var terminalCheck = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

// AddGcCommand adds the gc command to the root command.
func AddGcCommand(root *cobra.Command) {
	var (
		olderThan string
		dryRun    bool
		onlyFinal bool
		yes       bool
	)

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove stale cached steps",
		Long: `Remove cached steps that finished more than the retention window ago.

By default only success and failed results are considered (--only-final),
since incomplete results may still be in progress. Use --dry-run to preview
what would be deleted.

When run interactively without --dry-run or --yes, gc asks for confirmation
before deleting anything.

Examples:
  furu gc                       # delete terminal steps older than 7d (asks first)
  furu gc --older-than 24h      # delete terminal steps older than 1 day
  furu gc --dry-run             # preview without deleting
  furu gc --yes                 # skip the confirmation prompt
  furu gc --only-final=false    # also consider incomplete/absent steps`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, _ := cmd.Flags().GetString("root")
			retention := defaultGCRetention
			if olderThan != "" {
				d, err := time.ParseDuration(olderThan)
				if err != nil {
					return fmt.Errorf("invalid --older-than %q: %w", olderThan, err)
				}
				retention = d
			}
			return runGc(cmd, os.Stdout, root, retention, dryRun, onlyFinal, yes)
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "", "retention window, e.g. 24h, 72h (default 168h)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview without deleting")
	cmd.Flags().BoolVar(&onlyFinal, "only-final", true, "only consider success/failed results")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the interactive confirmation prompt")
	AddRootFlag(cmd)
	root.AddCommand(cmd)
}

func runGc(cmd *cobra.Command, w io.Writer, root string, retention time.Duration, dryRun, onlyFinal, yes bool) error {
	tui.CheckNoColor()
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	experiments, err := dashboard.ScanExperiments(cfg, dashboard.Filter{})
	if err != nil {
		return fmt.Errorf("failed to scan experiments: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	candidates := selectGCCandidates(experiments, cutoff, onlyFinal)

	if len(candidates) == 0 {
		return reportGCNone(out, outputFormat, dryRun)
	}
	if dryRun {
		return reportGCDryRun(out, outputFormat, candidates)
	}

	if !yes && outputFormat != OutputJSON && terminalCheck() {
		confirmed, err := confirmGC(len(candidates))
		if err != nil {
			return fmt.Errorf("confirmation prompt failed: %w", err)
		}
		if !confirmed {
			out.Info("Aborted: no stale steps removed.")
			return nil
		}
	}

	return performGC(out, outputFormat, candidates)
}

// confirmGC asks the user to confirm deletion of n stale steps.
func confirmGC(n int) (bool, error) {
	var confirm bool

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete %d stale step(s)?", n)).
				Description("This cannot be undone. Use --dry-run to preview first.").
				Affirmative("Yes, delete").
				Negative("No, cancel").
				Value(&confirm),
		),
	)

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirm, nil
}

func selectGCCandidates(experiments []dashboard.ExperimentSummary, cutoff time.Time, onlyFinal bool) []dashboard.ExperimentSummary {
	var candidates []dashboard.ExperimentSummary
	for _, e := range experiments {
		if e.UpdatedAt.IsZero() || e.UpdatedAt.After(cutoff) {
			continue
		}
		if onlyFinal && e.ResultStatus != statestore.ResultSuccess && e.ResultStatus != statestore.ResultFailed {
			continue
		}
		candidates = append(candidates, e)
	}
	return candidates
}

func reportGCNone(out tui.Output, outputFormat string, dryRun bool) error {
	if outputFormat == OutputJSON {
		return out.JSON(map[string]any{"dry_run": dryRun, "deleted": 0})
	}
	out.Info("No stale steps eligible for removal.")
	return nil
}

func reportGCDryRun(out tui.Output, outputFormat string, candidates []dashboard.ExperimentSummary) error {
	if outputFormat == OutputJSON {
		entries := make([]map[string]any, len(candidates))
		for i, e := range candidates {
			entries[i] = map[string]any{
				"namespace":  e.Namespace,
				"hash":       e.Hash,
				"result":     e.ResultStatus,
				"updated_at": e.UpdatedAt.Format(time.RFC3339),
			}
		}
		return out.JSON(map[string]any{"dry_run": true, "would_delete": len(candidates), "entries": entries})
	}
	out.Info(fmt.Sprintf("Would delete %d stale step(s):", len(candidates)))
	for _, e := range candidates {
		out.Info(fmt.Sprintf("  %s/%s (%s, updated %s)", e.Namespace, e.Hash, e.ResultStatus, e.UpdatedAt.Format(time.RFC3339)))
	}
	return nil
}

func performGC(out tui.Output, outputFormat string, candidates []dashboard.ExperimentSummary) error {
	var deleteErrors []string
	deleted := 0

	for _, e := range candidates {
		if err := os.RemoveAll(e.Dir); err != nil {
			deleteErrors = append(deleteErrors, fmt.Sprintf("%s/%s: %v", e.Namespace, e.Hash, err))
			continue
		}
		deleted++
	}

	if outputFormat == OutputJSON {
		result := map[string]any{"dry_run": false, "deleted": deleted}
		if len(deleteErrors) > 0 {
			result["errors"] = deleteErrors
		}
		return out.JSON(result)
	}

	out.Success(fmt.Sprintf("Removed %d stale step(s)", deleted))
	if len(deleteErrors) > 0 {
		out.Warning(fmt.Sprintf("Failed to remove %d step(s):", len(deleteErrors)))
		for _, msg := range deleteErrors {
			out.Info(fmt.Sprintf("  - %s", msg))
		}
	}
	return nil
}
