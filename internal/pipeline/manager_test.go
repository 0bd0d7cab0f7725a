package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camtrap-go/internal/conf"
	"github.com/tphakala/camtrap-go/internal/datastore"
	"github.com/tphakala/camtrap-go/internal/errors"
	"github.com/tphakala/camtrap-go/internal/registry"
)

func testManagerSettings(t *testing.T) *conf.Settings {
	t.Helper()
	return &conf.Settings{
		Studies:   conf.StudiesSettings{Path: t.TempDir()},
		Inference: conf.InferenceSettings{Host: "127.0.0.1", BatchSize: 5},
	}
}

func TestManagerRejectsConcurrentRun(t *testing.T) {
	settings := testManagerSettings(t)
	m := NewManager(settings, &registry.Registry{})

	// Simulate an in-flight run for the study.
	m.active["busy-study"] = &runHandle{done: make(chan struct{})}

	_, err := m.AddMedia("busy-study", t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConflict))

	store := datastore.New(filepath.Join(t.TempDir(), "study.db"), false)
	require.NoError(t, store.Open())
	defer func() { _ = store.Close() }()

	err = m.launch("busy-study", store, Options{StudyID: "busy-study"})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConflict))
}

func TestManagerStopUnknownStudyIsNoop(t *testing.T) {
	m := NewManager(testManagerSettings(t), &registry.Registry{})
	m.Stop("never-started")
	require.NoError(t, m.Wait("never-started"))
}

func TestManagerAddMedia(t *testing.T) {
	settings := testManagerSettings(t)
	m := NewManager(settings, &registry.Registry{})

	studyID := "existing-study"
	require.NoError(t, os.MkdirAll(settings.StudyDir(studyID), 0o755))
	store := datastore.New(settings.StudyDatabasePath(studyID), false)
	require.NoError(t, store.Open())
	require.NoError(t, store.SaveStudy(&datastore.Study{Name: studyID, Initialized: true}))
	require.NoError(t, store.Close())

	folder := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(folder, "a.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "b.jpg"), []byte("x"), 0o644))

	inserted, err := m.AddMedia(studyID, folder)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	status, err := m.Status(studyID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.Total)
	assert.Equal(t, int64(0), status.Done)
	assert.False(t, status.IsRunning)
}

func TestManagerResumeWithoutRun(t *testing.T) {
	settings := testManagerSettings(t)
	m := NewManager(settings, &registry.Registry{})

	studyID := "no-run-study"
	require.NoError(t, os.MkdirAll(settings.StudyDir(studyID), 0o755))
	store := datastore.New(settings.StudyDatabasePath(studyID), false)
	require.NoError(t, store.Open())
	require.NoError(t, store.SaveStudy(&datastore.Study{Name: studyID}))
	require.NoError(t, store.Close())

	// Resuming a study that never ran has nothing to resume from.
	err := m.Resume(studyID)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}
