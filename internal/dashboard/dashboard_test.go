package dashboard_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/furu/internal/config"
	"github.com/mrz1836/furu/internal/dashboard"
	"github.com/mrz1836/furu/internal/metadatastore"
	"github.com/mrz1836/furu/internal/statestore"
)

// seedExperiment writes a state.json (and metadata.json) directly under
// root/<namespace-as-path>/<hash>, mirroring fingerprint.DirOf's layout
// without depending on the fingerprint package's hashing.
func seedExperiment(t *testing.T, root, namespace, hash string, st statestore.State, withMeta bool) string {
	t.Helper()
	parts := append([]string{root}, splitDots(namespace)...)
	parts = append(parts, hash)
	dir := filepath.Join(parts...)

	store := statestore.New()
	_, err := store.Update(dir, func(statestore.State) (statestore.State, error) {
		return st, nil
	})
	require.NoError(t, err)

	if withMeta {
		require.NoError(t, metadatastore.WriteOnce(dir, metadatastore.Metadata{
			Fingerprint: hash,
			Namespace:   namespace,
			StartedAt:   time.Now().UTC(),
		}))
	}
	return dir
}

func splitDots(namespace string) []string {
	var out []string
	start := 0
	for i := 0; i < len(namespace); i++ {
		if namespace[i] == '.' {
			out = append(out, namespace[start:i])
			start = i + 1
		}
	}
	out = append(out, namespace[start:])
	return out
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Root = t.TempDir()
	return cfg
}

func TestScanExperiments_Empty(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	experiments, err := dashboard.ScanExperiments(cfg, dashboard.Filter{})
	require.NoError(t, err)
	assert.Empty(t, experiments)
}

func TestScanExperiments_FindsAll(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	seedExperiment(t, cfg.DataRoot(), "pipelines.PrepareDataset", "hash1",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultSuccess}}, true)
	seedExperiment(t, cfg.DataRoot(), "pipelines.TrainModel", "hash2",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultIncomplete},
			Attempt: &statestore.Attempt{ID: "a1", Status: statestore.AttemptRunning}}, true)
	seedExperiment(t, cfg.DataRoot(), "pipelines.EvalModel", "hash3",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultFailed},
			Attempt: &statestore.Attempt{ID: "a2", Status: statestore.AttemptFailed}}, true)

	experiments, err := dashboard.ScanExperiments(cfg, dashboard.Filter{})
	require.NoError(t, err)
	assert.Len(t, experiments, 3)
}

func TestScanExperiments_FilterByResultStatus(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	seedExperiment(t, cfg.DataRoot(), "pipelines.PrepareDataset", "hash1",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultSuccess}}, true)
	seedExperiment(t, cfg.DataRoot(), "pipelines.EvalModel", "hash2",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultFailed}}, true)

	experiments, err := dashboard.ScanExperiments(cfg, dashboard.Filter{ResultStatus: "success"})
	require.NoError(t, err)
	require.Len(t, experiments, 1)
	assert.Equal(t, statestore.ResultSuccess, experiments[0].ResultStatus)
}

func TestScanExperiments_FilterByAttemptStatus(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	seedExperiment(t, cfg.DataRoot(), "pipelines.TrainModel", "hash1",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultIncomplete},
			Attempt: &statestore.Attempt{ID: "a1", Status: statestore.AttemptRunning}}, true)
	seedExperiment(t, cfg.DataRoot(), "pipelines.PrepareDataset", "hash2",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultSuccess},
			Attempt: &statestore.Attempt{ID: "a2", Status: statestore.AttemptSuccess}}, true)

	experiments, err := dashboard.ScanExperiments(cfg, dashboard.Filter{AttemptStatus: "running"})
	require.NoError(t, err)
	require.Len(t, experiments, 1)
	require.NotNil(t, experiments[0].AttemptStatus)
	assert.Equal(t, statestore.AttemptRunning, *experiments[0].AttemptStatus)
}

func TestScanExperiments_FilterByNamespacePrefix(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	seedExperiment(t, cfg.DataRoot(), "pipelines.TrainModel", "hash1",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultSuccess}}, true)
	seedExperiment(t, cfg.DataRoot(), "other.EvalModel", "hash2",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultSuccess}}, true)

	experiments, err := dashboard.ScanExperiments(cfg, dashboard.Filter{NamespacePrefix: "pipelines"})
	require.NoError(t, err)
	require.Len(t, experiments, 1)
	assert.Equal(t, "pipelines.TrainModel", experiments[0].Namespace)
}

func TestScanExperiments_SortedByUpdatedAtDescending(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	older := seedExperiment(t, cfg.DataRoot(), "pipelines.A", "older",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultSuccess}}, false)
	newer := seedExperiment(t, cfg.DataRoot(), "pipelines.B", "newer",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultSuccess}}, false)

	store := statestore.New()
	olderState, err := store.Read(older)
	require.NoError(t, err)
	olderState.UpdatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.WriteAtomic(older, olderState))

	newerState, err := store.Read(newer)
	require.NoError(t, err)
	newerState.UpdatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.WriteAtomic(newer, newerState))

	experiments, err := dashboard.ScanExperiments(cfg, dashboard.Filter{})
	require.NoError(t, err)
	require.Len(t, experiments, 2)
	assert.Equal(t, "newer", experiments[0].Hash)
	assert.Equal(t, "older", experiments[1].Hash)
}

func TestGetExperimentDetail_Found(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	seedExperiment(t, cfg.DataRoot(), "pipelines.PrepareDataset", "hash1",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultSuccess}}, true)

	detail, err := dashboard.GetExperimentDetail(cfg, "pipelines.PrepareDataset", "hash1")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "pipelines.PrepareDataset", detail.Namespace)
	assert.Equal(t, "PrepareDataset", detail.ClassName)
	assert.NotNil(t, detail.Metadata)
}

func TestGetExperimentDetail_NotFound(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	detail, err := dashboard.GetExperimentDetail(cfg, "nonexistent.Namespace", "fakehash")
	require.NoError(t, err)
	assert.Nil(t, detail)
}

func TestGetExperimentDetail_IncludesAttempt(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	seedExperiment(t, cfg.DataRoot(), "pipelines.TrainModel", "hash1",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultIncomplete},
			Attempt: &statestore.Attempt{ID: "a1", Status: statestore.AttemptRunning, Owner: statestore.Owner{Host: "test-host"}}}, true)

	detail, err := dashboard.GetExperimentDetail(cfg, "pipelines.TrainModel", "hash1")
	require.NoError(t, err)
	require.NotNil(t, detail)
	require.NotNil(t, detail.State.Attempt)
	assert.Equal(t, statestore.AttemptRunning, detail.State.Attempt.Status)
	assert.Equal(t, "test-host", detail.State.Attempt.Owner.Host)
}

func TestGetStats_Empty(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	stats, err := dashboard.GetStats(cfg)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.Running)
	assert.Zero(t, stats.Success)
}

func TestGetStats_Counts(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	seedExperiment(t, cfg.DataRoot(), "pipelines.A", "h1",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultSuccess}}, false)
	seedExperiment(t, cfg.DataRoot(), "pipelines.B", "h2",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultSuccess}}, false)
	seedExperiment(t, cfg.DataRoot(), "pipelines.C", "h3",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultIncomplete},
			Attempt: &statestore.Attempt{ID: "a1", Status: statestore.AttemptRunning}}, false)
	seedExperiment(t, cfg.DataRoot(), "pipelines.D", "h4",
		statestore.State{SchemaVersion: 1, Result: statestore.Result{Status: statestore.ResultFailed},
			Attempt: &statestore.Attempt{ID: "a2", Status: statestore.AttemptFailed}}, false)

	stats, err := dashboard.GetStats(cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Success)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Running)

	resultCounts := map[string]int{}
	for _, sc := range stats.ByResultStatus {
		resultCounts[sc.Status] = sc.Count
	}
	assert.Equal(t, 2, resultCounts["success"])
	assert.Equal(t, 1, resultCounts["failed"])
	assert.Equal(t, 1, resultCounts["incomplete"])
}
