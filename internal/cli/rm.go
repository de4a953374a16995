package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/furu/internal/dashboard"
	"github.com/mrz1836/furu/internal/ferrors"
	"github.com/mrz1836/furu/internal/lock"
	"github.com/mrz1836/furu/internal/tui"
)

// AddRmCommand adds the rm command to the root command.
func AddRmCommand(root *cobra.Command) {
	var force bool

	cmd := &cobra.Command{
		Use:   "rm <namespace> <hash>",
		Short: "Delete one cached step directory",
		Args:  cobra.ExactArgs(2),
		Long: `Delete the state, metadata, and artifacts for one cached step.

Refuses to delete a step directory with a live lock unless --force is
given, since that would remove a leader's in-progress compute out from
under it.

Examples:
  furu rm pipelines.TrainModel a1b2c3d4
  furu rm pipelines.TrainModel a1b2c3d4 --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			return runRm(cmd, os.Stdout, root, args[0], args[1], force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "delete even if a lock appears live")
	AddRootFlag(cmd)
	root.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, w io.Writer, root, namespace, hash string, force bool) error {
	tui.CheckNoColor()
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

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

	if !force {
		owner, err := lock.HolderInfo(detail.Dir)
		if err != nil {
			return fmt.Errorf("failed to check lock: %w", err)
		}
		if owner != nil {
			return fmt.Errorf("%s/%s is locked by %s@%s, lease expires %s: use --force to delete anyway",
				namespace, hash, owner.User, owner.Host, owner.LeaseExpiresAt.Format("15:04:05"))
		}
	}

	if err := os.RemoveAll(detail.Dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", detail.Dir, err)
	}

	if outputFormat == OutputJSON {
		return out.JSON(map[string]any{"removed": true, "namespace": namespace, "hash": hash, "directory": detail.Dir})
	}
	out.Success(fmt.Sprintf("Removed %s/%s", namespace, hash))
	return nil
}
