// Package config loads furu's tunables once at process start into a
// single Config value threaded through Runner construction (spec.md §9:
// no global singleton). Precedence follows the teacher's layered scheme:
// CLI flag (--root, internal/cli) > environment (FURU_* prefix) > project
// yaml (.furu/config.yaml) > global yaml (~/.furu/config.yaml) > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/furu/internal/ferrors"
	"github.com/mrz1836/furu/internal/statestore"
)

const envPrefix = "FURU_"

// furuHome is the directory name used under $HOME and under the project
// root for yaml overrides (spec.md §6 documents only the FURU_* env
// vars; the yaml layer is additive, recovered from the teacher's own
// project/global config.yaml convention).
const furuHome = ".furu"

// Config holds every environment-tunable knob named in spec.md §6, plus
// the storage-root layout (spec.md §6's data/ git/ split, and the raw/
// root recovered from original_source/ per SPEC_FULL.md §5).
type Config struct {
	// Root is the storage root (FURU_CACHE_ROOT). Required.
	Root string `mapstructure:"cache_root"`

	PollInterval         time.Duration `mapstructure:"poll_interval"`          // FURU_POLL_INTERVAL_SECS (10s)
	WaitLogEvery         time.Duration `mapstructure:"wait_log_every"`         // FURU_WAIT_LOG_EVERY_SECS (10s)
	StaleAfter           time.Duration `mapstructure:"stale_after"`            // FURU_STALE_AFTER_SECS (1800s)
	LeaseDuration        time.Duration `mapstructure:"lease_duration"`         // FURU_LEASE_SECS (120s)
	HeartbeatEvery       time.Duration `mapstructure:"heartbeat_every"`        // FURU_HEARTBEAT_SECS (lease/3, min 1s); 0 = derive
	PreemptMax           int           `mapstructure:"preempt_max"`            // FURU_PREEMPT_MAX (5)
	IgnoreGitDiff        bool          `mapstructure:"ignore_git_diff"`        // FURU_IGNORE_DIFF (false)
	RequireGit           bool          `mapstructure:"require_git"`            // FURU_REQUIRE_GIT (true)
	RequireGitRemote     bool          `mapstructure:"require_git_remote"`     // FURU_REQUIRE_GIT_REMOTE (true)
	ForceRecompute       []string      `mapstructure:"force_recompute"`        // FURU_FORCE_RECOMPUTE (comma-separated namespaces)
	CancelledIsPreempted bool          `mapstructure:"cancelled_is_preempted"` // FURU_CANCELLED_IS_PREEMPTED (false)

	// CacheMetadata is the raw FURU_CACHE_METADATA string ("5m" default);
	// use ParseCacheDuration to interpret it.
	CacheMetadata string `mapstructure:"cache_metadata"`
}

// Default returns the documented defaults for every optional knob, with
// an empty Root (the caller must set one; there is no sane default for a
// shared filesystem cache location).
func Default() Config {
	return Config{
		PollInterval:         10 * time.Second,
		WaitLogEvery:         10 * time.Second,
		StaleAfter:           1800 * time.Second,
		LeaseDuration:        120 * time.Second,
		PreemptMax:           5,
		IgnoreGitDiff:        false,
		RequireGit:           true,
		RequireGitRemote:     true,
		CancelledIsPreempted: false,
		CacheMetadata:        "5m",
	}
}

// HeartbeatInterval returns the configured heartbeat cadence, deriving
// max(1s, lease/3) per spec.md §4.4 when HeartbeatEvery is unset.
func (c Config) HeartbeatInterval() time.Duration {
	if c.HeartbeatEvery > 0 {
		return c.HeartbeatEvery
	}
	third := c.LeaseDuration / 3
	if third < time.Second {
		return time.Second
	}
	return third
}

// DataRoot is the storage root for non-version-controlled artifacts
// (spec.md §6: "data/<namespace>/<fp>/…").
func (c Config) DataRoot() string { return filepath.Join(c.Root, "data") }

// GitRoot is the storage root for version-controlled artifacts
// (spec.md §6: "git/<namespace>/<fp>/…").
func (c Config) GitRoot() string { return filepath.Join(c.Root, "git") }

// RawRoot is a third root for scratch space outside the fingerprinted
// tree (original_source's FuruConfig.raw_dir, recovered per SPEC_FULL.md §5;
// not part of spec.md's documented layout).
func (c Config) RawRoot() string { return filepath.Join(c.Root, "raw") }

// NewStateStore builds the statestore.Store every state.json reader and
// writer in furu should share, caching tier sized from CacheMetadata:
// "never" disables the cache entirely, "forever" caches until explicitly
// invalidated, and "<num>[smh]" bounds it to a TTL.
func (c Config) NewStateStore() (*statestore.Store, error) {
	d, forever, err := ParseCacheDuration(c.CacheMetadata)
	if err != nil {
		return nil, err
	}
	if forever {
		return statestore.New(statestore.WithCache(statestore.NewTTLCache(statestore.CacheForever, 0))), nil
	}
	if d <= 0 {
		return statestore.New(), nil
	}
	return statestore.New(statestore.WithCache(statestore.NewTTLCache(statestore.CacheDuration, d))), nil
}

// RootFor selects DataRoot or GitRoot for a step, based on its
// VersionControlled flag.
func (c Config) RootFor(versionControlled bool) string {
	if versionControlled {
		return c.GitRoot()
	}
	return c.DataRoot()
}

// ShouldForceRecompute reports whether namespace appears in the
// comma-separated FURU_FORCE_RECOMPUTE set.
func (c Config) ShouldForceRecompute(namespace string) bool {
	for _, ns := range c.ForceRecompute {
		if ns == namespace {
			return true
		}
	}
	return false
}

// Load builds a Config from global yaml, project yaml, and environment
// variables layered over Default(), in that ascending precedence order.
// It fails fast on an unparseable duration, int, bool, or cache-duration
// value rather than silently falling back (original_source/ behavior,
// recovered per SPEC_FULL.md §5 for FURU_CACHE_METADATA specifically, and
// applied uniformly here for every other knob).
func Load() (Config, error) {
	globalPath, _ := GlobalConfigPath()
	return LoadFromPaths(ProjectConfigPath(), globalPath)
}

// LoadFromPaths builds a Config the same way Load does, but reads the
// yaml layers from the given paths instead of the real project/global
// locations. An empty path skips that layer; this exists so tests can
// exercise the yaml precedence without touching $HOME or the working
// directory.
func LoadFromPaths(projectConfigPath, globalConfigPath string) (Config, error) {
	c, err := loadFromYAML(projectConfigPath, globalConfigPath)
	if err != nil {
		return Config{}, err
	}

	if root := os.Getenv(envPrefix + "CACHE_ROOT"); root != "" {
		c.Root = root
	}

	if c.PollInterval, err = envDurationSecs("POLL_INTERVAL_SECS", c.PollInterval); err != nil {
		return Config{}, err
	}
	if c.WaitLogEvery, err = envDurationSecs("WAIT_LOG_EVERY_SECS", c.WaitLogEvery); err != nil {
		return Config{}, err
	}
	if c.StaleAfter, err = envDurationSecs("STALE_AFTER_SECS", c.StaleAfter); err != nil {
		return Config{}, err
	}
	if c.LeaseDuration, err = envDurationSecs("LEASE_SECS", c.LeaseDuration); err != nil {
		return Config{}, err
	}
	if raw := os.Getenv(envPrefix + "HEARTBEAT_SECS"); raw != "" {
		if c.HeartbeatEvery, err = envDurationSecs("HEARTBEAT_SECS", 0); err != nil {
			return Config{}, err
		}
	}
	if c.PreemptMax, err = envInt("PREEMPT_MAX", c.PreemptMax); err != nil {
		return Config{}, err
	}
	if c.IgnoreGitDiff, err = envBool("IGNORE_DIFF", c.IgnoreGitDiff); err != nil {
		return Config{}, err
	}
	if c.RequireGit, err = envBool("REQUIRE_GIT", c.RequireGit); err != nil {
		return Config{}, err
	}
	if c.RequireGitRemote, err = envBool("REQUIRE_GIT_REMOTE", c.RequireGitRemote); err != nil {
		return Config{}, err
	}
	if c.CancelledIsPreempted, err = envBool("CANCELLED_IS_PREEMPTED", c.CancelledIsPreempted); err != nil {
		return Config{}, err
	}
	if raw := os.Getenv(envPrefix + "FORCE_RECOMPUTE"); raw != "" {
		c.ForceRecompute = splitCSV(raw)
	}
	if raw := os.Getenv(envPrefix + "CACHE_METADATA"); raw != "" {
		c.CacheMetadata = raw
	}
	if _, _, err := ParseCacheDuration(c.CacheMetadata); err != nil {
		return Config{}, err
	}

	return c, nil
}

// loadFromYAML merges global then project yaml config over Default(): each
// file is parsed with yaml.v3 into a generic map and decoded onto the
// running Config with mapstructure, whose StringToTimeDurationHookFunc
// lets duration knobs be written as "10s"/"2m" in yaml. A missing file at
// either path is not an error; only a malformed one is.
func loadFromYAML(projectConfigPath, globalConfigPath string) (Config, error) {
	c := Default()
	if err := mergeYAMLFile(&c, globalConfigPath); err != nil {
		return Config{}, err
	}
	if err := mergeYAMLFile(&c, projectConfigPath); err != nil {
		return Config{}, err
	}
	return c, nil
}

func mergeYAMLFile(c *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path) //#nosec G304 -- path is a fixed project/global config location, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read furu config %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse furu config %s: %w", path, err)
	}
	if raw == nil {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     c,
	})
	if err != nil {
		return fmt.Errorf("build furu config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("failed to decode furu config %s: %w", path, err)
	}
	return nil
}

// GlobalConfigPath returns ~/.furu/config.yaml, or ("", err) if the home
// directory cannot be determined.
func GlobalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, furuHome, "config.yaml"), nil
}

// ProjectConfigPath returns .furu/config.yaml relative to the working
// directory.
func ProjectConfigPath() string {
	return filepath.Join(furuHome, "config.yaml")
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDurationSecs(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(envPrefix + name)
	if raw == "" {
		return fallback, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s%s=%q", ferrors.ErrInvalidDuration, envPrefix, name, raw)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func envInt(name string, fallback int) (int, error) {
	raw := os.Getenv(envPrefix + name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s%s=%q", ferrors.ErrInvalidDuration, envPrefix, name, raw)
	}
	return v, nil
}

func envBool(name string, fallback bool) (bool, error) {
	raw := os.Getenv(envPrefix + name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s%s=%q", ferrors.ErrInvalidDuration, envPrefix, name, raw)
	}
	return v, nil
}

// ParseCacheDuration interprets the FURU_CACHE_METADATA grammar
// (spec.md §6: "never | forever | <num>[smh]"). forever is reported
// separately from the zero Duration since "never" and "forever" both
// parse to a zero wait but opposite caching semantics.
func ParseCacheDuration(raw string) (d time.Duration, forever bool, err error) {
	switch raw {
	case "never":
		return 0, false, nil
	case "forever":
		return 0, true, nil
	case "":
		return 0, false, fmt.Errorf("%w: empty cache duration", ferrors.ErrInvalidDuration)
	}

	unit := raw[len(raw)-1]
	var mult time.Duration
	switch unit {
	case 's':
		mult = time.Second
	case 'm':
		mult = time.Minute
	case 'h':
		mult = time.Hour
	default:
		return 0, false, fmt.Errorf("%w: %q (want never, forever, or <num>[smh])", ferrors.ErrInvalidDuration, raw)
	}

	numStr := raw[:len(raw)-1]
	n, convErr := strconv.ParseFloat(numStr, 64)
	if convErr != nil || n < 0 {
		return 0, false, fmt.Errorf("%w: %q (want never, forever, or <num>[smh])", ferrors.ErrInvalidDuration, raw)
	}
	return time.Duration(n * float64(mult)), false, nil
}
