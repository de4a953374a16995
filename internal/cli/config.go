package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/furu/internal/config"
)

// AddRootFlag registers the --root flag shared by every command that
// touches storage, overriding FURU_CACHE_ROOT for the duration of the
// invocation.
func AddRootFlag(cmd *cobra.Command) *string {
	var root string
	cmd.PersistentFlags().StringVar(&root, "root", "", "storage root (overrides FURU_CACHE_ROOT)")
	return &root
}

// loadConfig builds a config.Config, applying rootOverride when set and
// failing with a clear message when no root is configured at all.
func loadConfig(rootOverride string) (config.Config, error) {
	if rootOverride != "" {
		if err := os.Setenv("FURU_CACHE_ROOT", rootOverride); err != nil {
			return config.Config{}, fmt.Errorf("set FURU_CACHE_ROOT: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if cfg.Root == "" {
		return config.Config{}, fmt.Errorf("no storage root configured: set FURU_CACHE_ROOT or pass --root")
	}
	return cfg, nil
}
