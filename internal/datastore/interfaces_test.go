package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore opens a fresh read-write store in a per-test temp directory.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := New(filepath.Join(t.TempDir(), "study.db"), false)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func insertMedia(t *testing.T, store *SQLiteStore, paths ...string) []Media {
	t.Helper()
	media := make([]Media, 0, len(paths))
	for _, p := range paths {
		media = append(media, Media{
			FilePath:     p,
			FileName:     filepath.Base(p),
			ImportFolder: "/import",
			FolderName:   filepath.Base(filepath.Dir(p)),
		})
	}
	require.NoError(t, store.InsertMediaBatch(media))

	var rows []Media
	require.NoError(t, store.DB.Order("id ASC").Find(&rows).Error)
	return rows
}

func TestStudyRoundTrip(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	require.NoError(t, store.SaveStudy(&Study{Name: "spring-survey", ImportFolder: "/import"}))

	study, err := store.GetStudy()
	require.NoError(t, err)
	assert.Equal(t, "spring-survey", study.Name)
	assert.False(t, study.Initialized)

	study.Initialized = true
	require.NoError(t, store.SaveStudy(study))

	study, err = store.GetStudy()
	require.NoError(t, err)
	assert.True(t, study.Initialized)
}

func TestUnprocessedMediaResumesRelationally(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	rows := insertMedia(t, store, "/import/cam1/a.jpg", "/import/cam1/b.jpg", "/import/cam1/c.jpg")

	unprocessed, err := store.UnprocessedMedia(10)
	require.NoError(t, err)
	assert.Len(t, unprocessed, 3)

	run := &ModelRun{ModelID: "deepfaune", ModelVersion: "1.3"}
	require.NoError(t, store.CreateModelRun(run))

	// Processing the first item removes it from the unprocessed set; there is
	// no cursor to go stale.
	name := "lynx lynx"
	require.NoError(t, store.SaveResult(
		&ModelOutput{MediaID: rows[0].ID, ModelRunID: run.ID, RawOutput: "{}"},
		&Observation{MediaID: rows[0].ID, ScientificName: &name, Confidence: 0.9, ClassificationMethod: "machine"},
	))

	unprocessed, err = store.UnprocessedMedia(10)
	require.NoError(t, err)
	require.Len(t, unprocessed, 2)
	assert.Equal(t, rows[1].ID, unprocessed[0].ID)

	// The limit bounds a batch.
	unprocessed, err = store.UnprocessedMedia(1)
	require.NoError(t, err)
	assert.Len(t, unprocessed, 1)
}

func TestSetMediaCaptureHappensOnce(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	rows := insertMedia(t, store, "/import/cam1/a.jpg")

	dep := &Deployment{LocationID: "cam1", LocationName: "cam1",
		DeploymentStart: time.Now(), DeploymentEnd: time.Now()}
	require.NoError(t, store.SaveDeployment(dep))

	first := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetMediaCapture(rows[0].ID, first, dep.ID))

	// A second assignment must not move the timestamp or deployment.
	other := &Deployment{LocationID: "cam2", LocationName: "cam2",
		DeploymentStart: time.Now(), DeploymentEnd: time.Now()}
	require.NoError(t, store.SaveDeployment(other))
	require.NoError(t, store.SetMediaCapture(rows[0].ID, first.Add(time.Hour), other.ID))

	media, err := store.GetMediaByPath("/import/cam1/a.jpg")
	require.NoError(t, err)
	require.NotNil(t, media.Timestamp)
	assert.True(t, media.Timestamp.Equal(first))
	require.NotNil(t, media.DeploymentID)
	assert.Equal(t, dep.ID, *media.DeploymentID)
}

func TestWidenDeploymentOnlyWidens(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	start := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC)
	dep := &Deployment{LocationID: "cam1", DeploymentStart: start, DeploymentEnd: end}
	require.NoError(t, store.SaveDeployment(dep))

	// A timestamp inside the window changes nothing.
	require.NoError(t, store.WidenDeployment(dep.ID, start.Add(time.Hour)))
	got, err := store.DeploymentByLocation("cam1")
	require.NoError(t, err)
	assert.True(t, got.DeploymentStart.Equal(start))
	assert.True(t, got.DeploymentEnd.Equal(end))

	// Earlier timestamps widen the start, later ones the end.
	earlier := start.Add(-48 * time.Hour)
	require.NoError(t, store.WidenDeployment(dep.ID, earlier))
	later := end.Add(72 * time.Hour)
	require.NoError(t, store.WidenDeployment(dep.ID, later))

	got, err = store.DeploymentByLocation("cam1")
	require.NoError(t, err)
	assert.True(t, got.DeploymentStart.Equal(earlier))
	assert.True(t, got.DeploymentEnd.Equal(later))
}

func TestSaveResultUniquePerRun(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	rows := insertMedia(t, store, "/import/cam1/a.jpg")

	run1 := &ModelRun{ModelID: "deepfaune", ModelVersion: "1.3"}
	require.NoError(t, store.CreateModelRun(run1))

	require.NoError(t, store.SaveResult(
		&ModelOutput{MediaID: rows[0].ID, ModelRunID: run1.ID, RawOutput: "{}"},
		&Observation{MediaID: rows[0].ID, ClassificationMethod: "machine"},
	))

	// Same media within the same run violates the unique index and rolls the
	// whole result back.
	err := store.SaveResult(
		&ModelOutput{MediaID: rows[0].ID, ModelRunID: run1.ID, RawOutput: "{}"},
		&Observation{MediaID: rows[0].ID, ClassificationMethod: "machine"},
	)
	require.Error(t, err)

	count, err := store.ObservationCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// A different run may process the same media again.
	run2 := &ModelRun{ModelID: "speciesnet", ModelVersion: "4.0.1a"}
	require.NoError(t, store.CreateModelRun(run2))
	require.NoError(t, store.SaveResult(
		&ModelOutput{MediaID: rows[0].ID, ModelRunID: run2.ID, RawOutput: "{}"},
		&Observation{MediaID: rows[0].ID, ClassificationMethod: "machine"},
	))

	outputs, err := store.ModelOutputCountForRun(run2.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), outputs)
}

func TestUpdateModelRunStatusIsMonotone(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	run := &ModelRun{ModelID: "deepfaune", ModelVersion: "1.3"}
	require.NoError(t, store.CreateModelRun(run))
	assert.Equal(t, RunStatusRunning, run.Status)

	require.NoError(t, store.UpdateModelRunStatus(run.ID, RunStatusAborted, ""))

	// A late completion must not overwrite the terminal state.
	require.NoError(t, store.UpdateModelRunStatus(run.ID, RunStatusCompleted, ""))

	got, err := store.LatestModelRun()
	require.NoError(t, err)
	assert.Equal(t, RunStatusAborted, got.Status)
}

func TestLatestModelRun(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	_, err := store.LatestModelRun()
	require.Error(t, err, "no run recorded yet")

	older := &ModelRun{ModelID: "deepfaune", ModelVersion: "1.2",
		StartedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, store.CreateModelRun(older))
	newer := &ModelRun{ModelID: "deepfaune", ModelVersion: "1.3"}
	require.NoError(t, store.CreateModelRun(newer))

	got, err := store.LatestModelRun()
	require.NoError(t, err)
	assert.Equal(t, "1.3", got.ModelVersion)
}

func TestMediaTimestampBounds(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	rows := insertMedia(t, store, "/import/cam1/a.jpg", "/import/cam1/b.jpg", "/import/cam1/c.jpg")

	dep := &Deployment{LocationID: "cam1",
		DeploymentStart: time.Now(), DeploymentEnd: time.Now()}
	require.NoError(t, store.SaveDeployment(dep))

	old1 := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	old2 := time.Date(2024, 4, 15, 20, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetMediaCapture(rows[0].ID, old2, dep.ID))
	require.NoError(t, store.SetMediaCapture(rows[1].ID, old1, dep.ID))
	// The third row gets a fresh "now" timestamp, the shape a missing-EXIF
	// default produces. The cutoff excludes it.
	require.NoError(t, store.SetMediaCapture(rows[2].ID, time.Now(), dep.ID))

	start, end, err := store.MediaTimestampBounds(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.True(t, start.Equal(old1))
	assert.True(t, end.Equal(old2))
}

func TestMediaTimestampBoundsEmpty(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	insertMedia(t, store, "/import/cam1/a.jpg")

	start, end, err := store.MediaTimestampBounds(time.Now())
	require.NoError(t, err)
	assert.Nil(t, start)
	assert.Nil(t, end)
}

func TestReadOnlyStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "study.db")

	rw := New(path, false)
	require.NoError(t, rw.Open())
	insertMedia(t, rw, "/import/cam1/a.jpg")

	ro := NewReadOnly(path)
	require.NoError(t, ro.Open())
	defer func() { _ = ro.Close() }()

	count, err := ro.MediaCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, rw.Close())
}
