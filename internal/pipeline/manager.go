package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/camtrap-go/internal/conf"
	"github.com/tphakala/camtrap-go/internal/datastore"
	"github.com/tphakala/camtrap-go/internal/errors"
	"github.com/tphakala/camtrap-go/internal/registry"
	"github.com/tphakala/camtrap-go/internal/scanner"
)

// runHandle tracks one active orchestrator and delivers its final error to
// waiters once the run goroutine exits.
type runHandle struct {
	orchestrator *Orchestrator
	done         chan struct{}
	err          error
}

// Manager owns the per-study run registry. At most one run is active per
// study at any time; a second start or resume for a busy study is rejected
// before any subprocess is spawned.
type Manager struct {
	settings *conf.Settings
	registry *registry.Registry

	mu     sync.Mutex
	active map[string]*runHandle
}

// NewManager returns a manager backed by the given model registry.
func NewManager(settings *conf.Settings, reg *registry.Registry) *Manager {
	return &Manager{
		settings: settings,
		registry: reg,
		active:   make(map[string]*runHandle),
	}
}

// Start creates a new study for the import folder and launches the full
// pipeline over it. Returns the generated study ID.
func (m *Manager) Start(folder string, model registry.ModelRef, country string) (string, error) {
	studyID := uuid.NewString()

	if err := os.MkdirAll(m.settings.StudyDir(studyID), 0o755); err != nil {
		return "", errors.New(err).
			Component("pipeline").
			Category(errors.CategoryFileIO).
			Context("study_id", studyID).
			Build()
	}

	store := datastore.New(m.settings.StudyDatabasePath(studyID), m.settings.Debug)
	if err := store.Open(); err != nil {
		return "", err
	}
	if err := store.SaveStudy(&datastore.Study{
		Name:         filepath.Base(folder),
		ImportFolder: folder,
		CreatedAt:    time.Now(),
	}); err != nil {
		store.Close() //nolint:errcheck // already failing
		return "", err
	}

	if err := m.launch(studyID, store, Options{
		StudyID: studyID,
		Folder:  folder,
		Model:   model,
		Country: country,
	}); err != nil {
		store.Close() //nolint:errcheck // launch rejected, handle never spawned
		return "", err
	}
	return studyID, nil
}

// AddMedia incrementally scans a folder into an existing study's store. The
// study must not have a run in flight; newly registered media is picked up
// by the next resume. No de-duplication against already registered paths is
// performed.
func (m *Manager) AddMedia(studyID, folder string) (int, error) {
	if m.isActive(studyID) {
		return 0, runningConflict(studyID)
	}

	store := datastore.New(m.settings.StudyDatabasePath(studyID), m.settings.Debug)
	if err := store.Open(); err != nil {
		return 0, err
	}
	defer store.Close() //nolint:errcheck // short-lived handle

	return scanner.BulkInsert(store, folder)
}

// Resume relaunches processing for a study using the model, folder and
// options recorded on its most recent run. Media that already has an
// observation is never re-processed.
func (m *Manager) Resume(studyID string) error {
	store := datastore.New(m.settings.StudyDatabasePath(studyID), m.settings.Debug)
	if err := store.Open(); err != nil {
		return err
	}

	run, err := store.LatestModelRun()
	if err != nil {
		store.Close() //nolint:errcheck // already failing
		return errors.New(err).
			Component("pipeline").
			Category(errors.CategoryNotFound).
			Context("study_id", studyID).
			Context("operation", "resume").
			Build()
	}

	var opts RunOptions
	if run.Options != "" {
		if err := json.Unmarshal([]byte(run.Options), &opts); err != nil {
			getLoggerSafe("pipeline").Warn("unreadable run options, resuming without them",
				"study_id", studyID, "error", err)
		}
	}

	if err := m.launch(studyID, store, Options{
		StudyID: studyID,
		Folder:  run.ImportPath,
		Model:   registry.ModelRef{ID: run.ModelID, Version: run.ModelVersion},
		Country: opts.Country,
	}); err != nil {
		store.Close() //nolint:errcheck // launch rejected
		return err
	}
	return nil
}

// Stop cancels a study's active run and force-terminates its inference
// server. A stop for a study with no active run is a no-op; concurrent stops
// are safe.
func (m *Manager) Stop(studyID string) {
	m.mu.Lock()
	handle := m.active[studyID]
	m.mu.Unlock()

	if handle != nil {
		handle.orchestrator.Stop()
	}
}

// Status reports a study's progress from its store without touching the
// active run.
func (m *Manager) Status(studyID string) (*Status, error) {
	return ReadStatus(m.settings.StudyDatabasePath(studyID), m.isActive(studyID))
}

// Wait blocks until the study's active run finishes and returns its final
// error. Returns immediately when no run is active.
func (m *Manager) Wait(studyID string) error {
	m.mu.Lock()
	handle := m.active[studyID]
	m.mu.Unlock()

	if handle == nil {
		return nil
	}
	<-handle.done
	return handle.err
}

// launch registers a handle for the study and spawns the run goroutine. The
// conflict check and registration are atomic, so two concurrent starts for
// one study can never both spawn.
func (m *Manager) launch(studyID string, store datastore.Interface, opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.active[studyID]; busy {
		return runningConflict(studyID)
	}

	handle := &runHandle{
		orchestrator: NewOrchestrator(m.settings, store, m.registry, opts),
		done:         make(chan struct{}),
	}
	m.active[studyID] = handle

	go func() {
		handle.err = handle.orchestrator.Run()
		m.mu.Lock()
		delete(m.active, studyID)
		m.mu.Unlock()
		close(handle.done)
	}()
	return nil
}

func (m *Manager) isActive(studyID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, busy := m.active[studyID]
	return busy
}

func runningConflict(studyID string) error {
	return errors.Newf("study %s already has a run in progress", studyID).
		Component("pipeline").
		Category(errors.CategoryConflict).
		Context("study_id", studyID).
		Build()
}
