// Package dashboard scans furu's storage roots read-only, without taking
// part in Runner's coordination protocol: it never acquires a lock, never
// writes state.json, and tolerates unreadable or half-written entries by
// skipping them rather than failing the whole scan.
package dashboard

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/mrz1836/furu/internal/config"
	"github.com/mrz1836/furu/internal/metadatastore"
	"github.com/mrz1836/furu/internal/statestore"
)

// namespaceCollator gives ls/status a locale-stable tie-break: two steps
// updated at the same instant (or never updated) still sort the same way
// regardless of the process's locale, rather than falling back to raw
// byte ordering.
//
//nolint:gochecknoglobals // collate.Collator is safe for concurrent use and expensive to rebuild per sort
var namespaceCollator = collate.New(language.Und)

// ExperimentSummary is one step directory's state, shaped for listing.
type ExperimentSummary struct {
	Namespace     string                    `json:"namespace"`
	Hash          string                    `json:"hash"`
	ClassName     string                    `json:"class_name"`
	Dir           string                    `json:"directory"`
	ResultStatus  statestore.ResultStatus   `json:"result_status"`
	AttemptStatus *statestore.AttemptStatus `json:"attempt_status,omitempty"`
	AttemptNumber *int                      `json:"attempt_number,omitempty"`
	UpdatedAt     time.Time                 `json:"updated_at"`
	StartedAt     *time.Time                `json:"started_at,omitempty"`
}

// ExperimentDetail is a summary enriched with the full state record and,
// when present, the immutable metadata sidecar.
type ExperimentDetail struct {
	ExperimentSummary
	State    statestore.State        `json:"state"`
	Metadata *metadatastore.Metadata `json:"metadata,omitempty"`
}

// StatusCount is one (status, count) bucket in a Stats breakdown.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// Stats is the dashboard's aggregate view across every storage root.
type Stats struct {
	Total           int           `json:"total"`
	ByResultStatus  []StatusCount `json:"by_result_status"`
	ByAttemptStatus []StatusCount `json:"by_attempt_status"`
	Running         int           `json:"running_count"`
	Queued          int           `json:"queued_count"`
	Failed          int           `json:"failed_count"`
	Success         int           `json:"success_count"`
}

// Filter narrows ScanExperiments to matching entries. An empty field
// imposes no constraint.
type Filter struct {
	ResultStatus    string
	AttemptStatus   string
	NamespacePrefix string
}

// newScanStore builds the state store a read-only scan reads through,
// honoring cfg.CacheMetadata the same way Runner does so a dashboard
// polling in a loop doesn't re-read every state.json from disk each
// pass. A malformed CacheMetadata falls back to an uncached store.
func newScanStore(cfg config.Config) *statestore.Store {
	store, err := cfg.NewStateStore()
	if err != nil {
		return statestore.New()
	}
	return store
}

// ScanExperiments walks every existing storage root under cfg, returning
// summaries sorted by UpdatedAt descending, with never-updated entries
// (zero time) last.
func ScanExperiments(cfg config.Config, filter Filter) ([]ExperimentSummary, error) {
	store := newScanStore(cfg)

	var out []ExperimentSummary
	for _, root := range iterRoots(cfg) {
		dirs, err := findExperimentDirs(root)
		if err != nil {
			return nil, err
		}
		for _, dir := range dirs {
			st, err := store.Read(dir)
			if err != nil {
				continue // a corrupt or half-written entry is skipped, not fatal to the scan
			}
			namespace, hash := parseNamespace(dir, root)
			summary := summarize(st, namespace, hash, dir)
			if !matches(summary, filter) {
				continue
			}
			out = append(out, summary)
		}
	}

	sortByUpdatedAtDesc(out)
	return out, nil
}

// GetExperimentDetail looks up one step directory by namespace and hash
// across every storage root, returning nil if none matches.
func GetExperimentDetail(cfg config.Config, namespace, hash string) (*ExperimentDetail, error) {
	store := newScanStore(cfg)
	parts := strings.Split(namespace, ".")

	for _, root := range iterRoots(cfg) {
		segments := append([]string{root}, parts...)
		segments = append(segments, hash)
		dir := filepath.Join(segments...)

		if _, err := os.Stat(filepath.Join(dir, ".state", "state.json")); err != nil {
			continue
		}

		st, err := store.Read(dir)
		if err != nil {
			return nil, err
		}
		meta, err := metadatastore.Read(dir)
		if err != nil {
			return nil, err
		}

		return &ExperimentDetail{
			ExperimentSummary: summarize(st, namespace, hash, dir),
			State:             st,
			Metadata:          meta,
		}, nil
	}

	return nil, nil
}

// GetStats aggregates status counts across every storage root under cfg.
func GetStats(cfg config.Config) (Stats, error) {
	store := newScanStore(cfg)
	resultCounts := map[string]int{}
	attemptCounts := map[string]int{}
	var stats Stats

	for _, root := range iterRoots(cfg) {
		dirs, err := findExperimentDirs(root)
		if err != nil {
			return Stats{}, err
		}
		for _, dir := range dirs {
			st, err := store.Read(dir)
			if err != nil {
				continue
			}
			stats.Total++
			resultCounts[string(st.Result.Status)]++
			switch st.Result.Status {
			case statestore.ResultSuccess:
				stats.Success++
			case statestore.ResultFailed:
				stats.Failed++
			}
			if st.Attempt != nil {
				attemptCounts[string(st.Attempt.Status)]++
				switch st.Attempt.Status {
				case statestore.AttemptRunning:
					stats.Running++
				case statestore.AttemptQueued:
					stats.Queued++
				}
			}
		}
	}

	stats.ByResultStatus = sortedCounts(resultCounts)
	stats.ByAttemptStatus = sortedCounts(attemptCounts)
	return stats, nil
}

func iterRoots(cfg config.Config) []string {
	var roots []string
	for _, r := range []string{cfg.DataRoot(), cfg.GitRoot()} {
		if info, err := os.Stat(r); err == nil && info.IsDir() {
			roots = append(roots, r)
		}
	}
	return roots
}

// findExperimentDirs locates every directory under root containing a
// .state/state.json file, without descending further into .state itself.
func findExperimentDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || d.Name() != ".state" {
			return nil
		}
		if _, statErr := os.Stat(filepath.Join(path, "state.json")); statErr == nil {
			dirs = append(dirs, filepath.Dir(path))
		}
		return filepath.SkipDir
	})
	if err != nil {
		return nil, err
	}
	return dirs, nil
}

// parseNamespace recovers a step's namespace and hash from its directory
// path, inverting fingerprint.DirOf's root/<namespace-as-path>/<hash>
// layout.
func parseNamespace(dir, root string) (namespace, hash string) {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return dir, ""
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) < 2 {
		return rel, ""
	}
	hash = parts[len(parts)-1]
	namespace = strings.Join(parts[:len(parts)-1], ".")
	return namespace, hash
}

func classNameFromNamespace(namespace string) string {
	parts := strings.Split(namespace, ".")
	return parts[len(parts)-1]
}

func summarize(st statestore.State, namespace, hash, dir string) ExperimentSummary {
	s := ExperimentSummary{
		Namespace:    namespace,
		Hash:         hash,
		ClassName:    classNameFromNamespace(namespace),
		Dir:          dir,
		ResultStatus: st.Result.Status,
		UpdatedAt:    st.UpdatedAt,
	}
	if st.Attempt != nil {
		status := st.Attempt.Status
		s.AttemptStatus = &status
		number := st.Attempt.Number
		s.AttemptNumber = &number
		started := st.Attempt.StartedAt
		s.StartedAt = &started
	}
	return s
}

func matches(s ExperimentSummary, f Filter) bool {
	if f.ResultStatus != "" && string(s.ResultStatus) != f.ResultStatus {
		return false
	}
	if f.AttemptStatus != "" {
		if s.AttemptStatus == nil || string(*s.AttemptStatus) != f.AttemptStatus {
			return false
		}
	}
	if f.NamespacePrefix != "" && !strings.HasPrefix(s.Namespace, f.NamespacePrefix) {
		return false
	}
	return true
}

func sortByUpdatedAtDesc(experiments []ExperimentSummary) {
	sort.SliceStable(experiments, func(i, j int) bool {
		a, b := experiments[i], experiments[j]
		aZero, bZero := a.UpdatedAt.IsZero(), b.UpdatedAt.IsZero()
		if aZero != bZero {
			return !aZero
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if cmp := namespaceCollator.CompareString(a.Namespace, b.Namespace); cmp != 0 {
			return cmp < 0
		}
		return namespaceCollator.CompareString(a.Hash, b.Hash) < 0
	})
}

func sortedCounts(counts map[string]int) []StatusCount {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]StatusCount, 0, len(keys))
	for _, k := range keys {
		out = append(out, StatusCount{Status: k, Count: counts[k]})
	}
	return out
}
