package pipeline

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camtrap-go/internal/datastore"
)

func TestReadStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "study.db")

	store := datastore.New(path, false)
	require.NoError(t, store.Open())
	require.NoError(t, store.SaveStudy(&datastore.Study{Name: "test"}))
	seedMedia(t, store, 12)

	run := &datastore.ModelRun{ModelID: "deepfaune", ModelVersion: "1.3"}
	require.NoError(t, store.CreateModelRun(run))

	rows := mustUnprocessed(t, store, 2)
	for _, row := range rows {
		require.NoError(t, store.SaveResult(
			&datastore.ModelOutput{MediaID: row.ID, ModelRunID: run.ID, RawOutput: "{}"},
			&datastore.Observation{MediaID: row.ID, ClassificationMethod: "machine"},
		))
	}
	require.NoError(t, store.UpdateModelRunStatus(run.ID, datastore.RunStatusAborted, ""))
	require.NoError(t, store.Close())

	// Five items per ten-second batch: two seconds per item, thirty per
	// minute.
	RecordBatch(10*time.Second, 5)

	status, err := ReadStatus(path, true)
	require.NoError(t, err)

	assert.Equal(t, int64(12), status.Total)
	assert.Equal(t, int64(2), status.Done)
	assert.True(t, status.IsRunning)
	assert.Equal(t, datastore.RunStatusAborted, status.LastRunStatus)
	assert.InDelta(t, 30.0, status.Speed, 1e-6)
	// 10 remaining at 2s each.
	assert.InDelta(t, 10.0*2.0/60.0, status.EstimatedMinutesRemaining, 1e-6)

	body, err := json.Marshal(status)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"estimatedMinutesRemaining"`)
	assert.Contains(t, string(body), `"speed"`)
}

func TestReadStatusNoBatchYet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "study.db")

	store := datastore.New(path, false)
	require.NoError(t, store.Open())
	require.NoError(t, store.SaveStudy(&datastore.Study{Name: "test"}))
	require.NoError(t, store.Close())

	lastBatch.Store(nil)

	status, err := ReadStatus(path, false)
	require.NoError(t, err)
	assert.Zero(t, status.Total)
	assert.Zero(t, status.EstimatedMinutesRemaining)
	assert.Zero(t, status.Speed)
	assert.Empty(t, status.LastRunStatus)
}

func TestReadStatusMissingStore(t *testing.T) {
	_, err := ReadStatus(filepath.Join(t.TempDir(), "nope", "study.db"), false)
	require.Error(t, err)
}
