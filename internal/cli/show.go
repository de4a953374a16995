package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/mrz1836/furu/internal/dashboard"
	"github.com/mrz1836/furu/internal/ferrors"
	"github.com/mrz1836/furu/internal/tui"
)

var (
	glamourRenderer     *glamour.TermRenderer //nolint:gochecknoglobals // cached renderer for performance
	glamourRendererOnce sync.Once             //nolint:gochecknoglobals // sync.Once for renderer initialization
)

// getGlamourRenderer returns a cached glamour renderer for markdown
// rendering. The renderer is initialized once and reused across calls.
func getGlamourRenderer() *glamour.TermRenderer {
	glamourRendererOnce.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err == nil {
			glamourRenderer = r
		}
	})
	return glamourRenderer
}

// renderMetadataSummary renders detail's metadata sidecar as a markdown
// table via glamour, falling back to plain text if the renderer failed
// to initialize or the render itself errors.
func renderMetadataSummary(w io.Writer, detail *dashboard.ExperimentDetail) {
	md := detail.Metadata
	if md == nil {
		return
	}

	var b strings.Builder
	b.WriteString("## Metadata\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Fingerprint | `%s` |\n", md.Fingerprint)
	fmt.Fprintf(&b, "| Created by | %s@%s |\n", md.Owner.User, md.Owner.Host)
	fmt.Fprintf(&b, "| Started at | %s |\n", md.StartedAt.Format("2006-01-02 15:04:05"))
	if md.Git != nil {
		dirty := ""
		if md.Git.Dirty {
			dirty = " (dirty)"
		}
		fmt.Fprintf(&b, "| Git commit | `%s`%s |\n", md.Git.Commit, dirty)
	}

	if renderer := getGlamourRenderer(); renderer != nil {
		if rendered, err := renderer.Render(b.String()); err == nil {
			_, _ = fmt.Fprint(w, rendered)
			return
		}
	}
	_, _ = fmt.Fprint(w, b.String())
}

// AddShowCommand adds the show command to the root command.
func AddShowCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "show <namespace> <hash>",
		Short: "Show one cached step's full state and metadata",
		Args:  cobra.ExactArgs(2),
		Long: `Show the full state.json record and metadata sidecar for one step,
identified by its namespace (dotted class path) and fingerprint hash.

Examples:
  furu show pipelines.TrainModel a1b2c3d4
  furu show pipelines.TrainModel a1b2c3d4 --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			return runShow(cmd, os.Stdout, root, args[0], args[1])
		},
	}

	AddRootFlag(cmd)
	root.AddCommand(cmd)
}

func runShow(cmd *cobra.Command, w io.Writer, root, namespace, hash string) error {
	tui.CheckNoColor()
	outputFormat := cmd.Flag("output").Value.String()

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	detail, err := dashboard.GetExperimentDetail(cfg, namespace, hash)
	if err != nil {
		return fmt.Errorf("failed to load %s/%s: %w", namespace, hash, err)
	}
	if detail == nil {
		return fmt.Errorf("%s/%s: %w", namespace, hash, ferrors.ErrNotFound)
	}

	out := tui.NewOutput(w, outputFormat)
	if outputFormat == OutputJSON {
		return out.JSON(detail)
	}

	out.Info(fmt.Sprintf("%s / %s", detail.Namespace, detail.Hash))
	out.Info(fmt.Sprintf("Directory: %s", detail.Dir))
	out.Info(fmt.Sprintf("Result: %s", detail.State.Result.Status))
	if detail.State.Attempt != nil {
		a := detail.State.Attempt
		out.Info(fmt.Sprintf("Attempt %d: %s (owner %s@%s)", a.Number, a.Status, a.Owner.User, a.Owner.Host))
	}
	if detail.Metadata != nil {
		renderMetadataSummary(w, detail)
	}
	return nil
}
