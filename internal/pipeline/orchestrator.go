// Package pipeline coordinates the import and inference run over a study:
// media bootstrap, inference server lifecycle, prediction streaming and
// result persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/camtrap-go/internal/conf"
	"github.com/tphakala/camtrap-go/internal/datastore"
	"github.com/tphakala/camtrap-go/internal/errors"
	"github.com/tphakala/camtrap-go/internal/imagemeta"
	"github.com/tphakala/camtrap-go/internal/inference"
	"github.com/tphakala/camtrap-go/internal/logging"
	"github.com/tphakala/camtrap-go/internal/registry"
	"github.com/tphakala/camtrap-go/internal/scanner"
)

// getLoggerSafe returns a logger for the service, falling back to default if logging not initialized
func getLoggerSafe(service string) *slog.Logger {
	logger := logging.ForService(service)
	if logger == nil {
		logger = slog.Default().With("service", service)
	}
	return logger
}

// recentWindowCutoff excludes timestamps within the last 24 hours from study
// window auto-population; such timestamps are a signal of missing-EXIF "now"
// defaults rather than real capture times.
const recentWindowCutoff = 24 * time.Hour

// RunOptions is the JSON payload persisted on a ModelRun.
type RunOptions struct {
	Country string `json:"country,omitempty"`
}

// Options configures one orchestrator instance.
type Options struct {
	StudyID  string
	Folder   string // import folder
	Model    registry.ModelRef
	Country  string // optional geofencing country code
	AddMedia bool   // incrementally scan the folder even when already initialized
}

// Orchestrator drives one run over a study. It owns the study's read-write
// store handle and the inference server subprocess for the duration of the
// run.
type Orchestrator struct {
	settings *conf.Settings
	ds       datastore.Interface
	registry *registry.Registry
	opts     Options

	// mu guards supervisor, which is written by the run goroutine and read
	// by Stop from manager callers.
	mu         sync.Mutex
	supervisor *inference.Supervisor

	client *inference.Client
	family inference.Family

	runCtx    context.Context
	cancelRun context.CancelFunc

	// deployments caches folder-derived deployments for the run so repeated
	// predictions from one camera placement don't round-trip the store.
	deployments map[string]*datastore.Deployment

	logger *slog.Logger
}

// NewOrchestrator builds an orchestrator over an opened study store. The
// orchestrator takes ownership of the store handle and closes it when the
// run finishes.
func NewOrchestrator(settings *conf.Settings, ds datastore.Interface, reg *registry.Registry, opts Options) *Orchestrator {
	runCtx, cancelRun := context.WithCancel(context.Background())
	return &Orchestrator{
		settings:    settings,
		ds:          ds,
		registry:    reg,
		opts:        opts,
		runCtx:      runCtx,
		cancelRun:   cancelRun,
		deployments: make(map[string]*datastore.Deployment),
		logger:      getLoggerSafe("pipeline").With("study_id", opts.StudyID),
	}
}

// Cancel signals cooperative cancellation of the run. The in-flight batch is
// cancelled through its child context.
func (o *Orchestrator) Cancel() {
	o.cancelRun()
}

// Stop cancels the run and force-terminates the inference server. Safe to
// call concurrently and repeatedly.
func (o *Orchestrator) Stop() {
	o.cancelRun()
	o.stopSupervisor()
}

func (o *Orchestrator) stopSupervisor() {
	o.mu.Lock()
	sup := o.supervisor
	o.mu.Unlock()
	if sup != nil {
		sup.Stop()
	}
}

// Run executes the full pipeline: bootstrap, model resolution, server
// startup, the batch loop, and finalization. Cancellation marks the run
// aborted and is not reported as an error. The subprocess is terminated and
// the store handle closed on every exit path.
func (o *Orchestrator) Run() (err error) {
	defer func() {
		o.stopSupervisor()
		if closeErr := o.ds.Close(); closeErr != nil {
			o.logger.Warn("failed to close study store", "error", closeErr)
		}
	}()

	if err := o.bootstrap(); err != nil {
		return err
	}

	// Resolve model and runtime before anything is spawned; an unknown
	// reference fails the run synchronously.
	install, err := o.registry.Resolve(o.opts.Model)
	if err != nil {
		return err
	}
	runtime, err := o.registry.ResolveRuntime(install.Runtime)
	if err != nil {
		return err
	}
	o.family = inference.FamilyFor(install.FamilyOrDefault())

	sup := inference.NewSupervisor(
		o.registry.InterpreterPath(runtime),
		o.registry.ScriptPath(install, runtime),
		install.Args,
		&o.settings.Inference,
	)
	o.mu.Lock()
	o.supervisor = sup
	o.mu.Unlock()
	if err := sup.Start(o.runCtx); err != nil {
		// Startup failure is fatal and happens before any ModelRun row
		// exists.
		return err
	}

	o.client = inference.NewClient(sup.BaseURL())
	o.client.Country = o.opts.Country

	optionsJSON, _ := json.Marshal(RunOptions{Country: o.opts.Country})
	run := &datastore.ModelRun{
		ModelID:      install.ID,
		ModelVersion: install.Version,
		StartedAt:    time.Now(),
		Status:       datastore.RunStatusRunning,
		ImportPath:   o.opts.Folder,
		Options:      string(optionsJSON),
	}
	if err := o.ds.CreateModelRun(run); err != nil {
		return err
	}
	metricRunsStarted.Inc()

	classifiedBy := fmt.Sprintf("%s %s", install.ID, install.Version)
	o.logger.Info("model run started",
		"run_id", run.ID,
		"model", classifiedBy,
		"folder", o.opts.Folder)

	if err := o.processingLoop(run, classifiedBy); err != nil {
		if updateErr := o.ds.UpdateModelRunStatus(run.ID, datastore.RunStatusFailed, err.Error()); updateErr != nil {
			o.logger.Error("failed to mark run failed", "error", updateErr)
		}
		metricRunsFinished.WithLabelValues(datastore.RunStatusFailed).Inc()
		o.logger.Error("model run failed", "run_id", run.ID, "error", err)
		return err
	}

	if o.runCtx.Err() != nil {
		// Cancellation is distinguished from failure: the run is marked
		// aborted and no error is surfaced.
		if updateErr := o.ds.UpdateModelRunStatus(run.ID, datastore.RunStatusAborted, ""); updateErr != nil {
			o.logger.Error("failed to mark run aborted", "error", updateErr)
		}
		metricRunsFinished.WithLabelValues(datastore.RunStatusAborted).Inc()
		o.logger.Info("model run aborted", "run_id", run.ID)
		return nil
	}

	o.populateStudyWindow()
	if err := o.ds.UpdateModelRunStatus(run.ID, datastore.RunStatusCompleted, ""); err != nil {
		o.logger.Error("failed to mark run completed", "error", err)
	}
	metricRunsFinished.WithLabelValues(datastore.RunStatusCompleted).Inc()
	o.logger.Info("model run completed", "run_id", run.ID)
	return nil
}

// bootstrap registers media for a fresh store, or incrementally for an
// "add more" request. The bulk phase runs to completion before any inference
// starts; a store whose bootstrap was interrupted stays uninitialized.
func (o *Orchestrator) bootstrap() error {
	study, err := o.ds.GetStudy()
	if err != nil {
		return errors.New(err).
			Component("pipeline").
			Category(errors.CategoryDatabase).
			Context("operation", "load-study").
			Build()
	}

	switch {
	case !study.Initialized:
		inserted, err := scanner.BulkInsert(o.ds, o.opts.Folder)
		if err != nil {
			return errors.New(err).
				Component("pipeline").
				Category(errors.CategoryMediaScan).
				Context("folder", o.opts.Folder).
				Build()
		}
		study.Initialized = true
		if err := o.ds.SaveStudy(study); err != nil {
			return err
		}
		o.logger.Info("study bootstrap complete", "media", inserted)
	case o.opts.AddMedia:
		inserted, err := scanner.BulkInsert(o.ds, o.opts.Folder)
		if err != nil {
			return errors.New(err).
				Component("pipeline").
				Category(errors.CategoryMediaScan).
				Context("folder", o.opts.Folder).
				Build()
		}
		o.logger.Info("incremental media scan complete", "media", inserted)
	}
	return nil
}

// processingLoop pulls bounded batches of unprocessed media and streams
// predictions for them until none remain or the run is cancelled. Returns an
// error only on failure; cancellation is detected by the caller through the
// run context.
func (o *Orchestrator) processingLoop(run *datastore.ModelRun, classifiedBy string) error {
	batchSize := o.settings.Inference.BatchSize

	for {
		// Cooperative cancellation check before each new batch.
		if o.runCtx.Err() != nil {
			return nil
		}

		batch, err := o.ds.UnprocessedMedia(batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := o.processBatch(run, batch, classifiedBy); err != nil {
			if o.runCtx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// processBatch streams predictions for one batch of media through a child
// cancellation context. The batch context is discarded after use; a fresh one
// per batch avoids unbounded listener growth on the run context.
func (o *Orchestrator) processBatch(run *datastore.ModelRun, batch []datastore.Media, classifiedBy string) error {
	batchCtx, cancelBatch := context.WithCancel(o.runCtx)
	defer cancelBatch()

	paths := make([]string, 0, len(batch))
	for i := range batch {
		paths = append(paths, batch[i].FilePath)
	}

	started := time.Now()
	for pred, err := range o.client.Predict(batchCtx, paths) {
		if err != nil {
			return err
		}
		if err := o.processPrediction(run, &pred, classifiedBy); err != nil {
			return err
		}
	}

	duration := time.Since(started)
	RecordBatch(duration, len(batch))
	metricBatchDuration.Observe(duration.Seconds())
	o.logger.Debug("batch processed", "size", len(batch), "duration_ms", duration.Milliseconds())
	return nil
}

// processPrediction persists one prediction: capture resolution on first
// touch, raw output, and the derived observation. Missing media rows are
// logged and skipped, they never abort the batch. Store failures are
// returned and fail the run.
func (o *Orchestrator) processPrediction(run *datastore.ModelRun, pred *inference.Prediction, classifiedBy string) error {
	media, err := o.ds.GetMediaByPath(pred.Filepath)
	if err != nil {
		// The server answered for a file we never registered. Recoverable:
		// skip the prediction and keep the batch going.
		o.logger.Warn("no media row for prediction", "filepath", pred.Filepath, "error", err)
		metricPredictionsSkipped.Inc()
		return nil
	}

	if media.DeploymentID == nil {
		if err := o.resolveCapture(media); err != nil {
			return err
		}
	}

	rawOutput, err := json.Marshal(pred)
	if err != nil {
		o.logger.Warn("cannot re-encode prediction payload", "filepath", pred.Filepath, "error", err)
		metricPredictionsSkipped.Inc()
		return nil
	}

	output := &datastore.ModelOutput{
		MediaID:    media.ID,
		ModelRunID: run.ID,
		RawOutput:  string(rawOutput),
	}

	observation := &datastore.Observation{
		MediaID:                 media.ID,
		DeploymentID:            media.DeploymentID,
		Confidence:              pred.PredictionScore,
		ClassificationMethod:    "machine",
		ClassifiedBy:            classifiedBy,
		ClassificationTimestamp: time.Now(),
	}

	// A blank sentinel still produces an observation; a null scientific name
	// is what marks the item as an explicit blank.
	if name, blank := o.family.ParseLabel(pred.Prediction); !blank {
		observation.ScientificName = &name
	}

	if det, ok := pred.BestDetection(); ok {
		if bbox, ok := o.family.NormalizeBbox(det); ok {
			observation.BboxX = &bbox.X
			observation.BboxY = &bbox.Y
			observation.BboxWidth = &bbox.Width
			observation.BboxHeight = &bbox.Height
		}
	}

	if err := o.ds.SaveResult(output, observation); err != nil {
		return err
	}
	metricMediaProcessed.Inc()
	return nil
}

// resolveCapture assigns timestamp and deployment to a media row on its
// first successful prediction. EXIF failures fall back to the current time
// with no location; store failures propagate so the run fails rather than
// persisting an observation for unresolved media. The assignment happens
// exactly once per media row.
func (o *Orchestrator) resolveCapture(media *datastore.Media) error {
	info := imagemeta.Extract(media.FilePath)

	var timestamp time.Time
	switch {
	case info.TakenAt != nil && info.HasLocation():
		timestamp = imagemeta.Localize(*info.TakenAt, imagemeta.TimezoneAt(*info.Latitude, *info.Longitude))
	case info.TakenAt != nil:
		timestamp = *info.TakenAt
	default:
		timestamp = time.Now()
	}

	deployment, err := o.resolveDeployment(media, &info, timestamp)
	if err != nil {
		return err
	}

	if err := o.ds.SetMediaCapture(media.ID, timestamp, deployment.ID); err != nil {
		return err
	}
	media.Timestamp = &timestamp
	media.DeploymentID = &deployment.ID
	return nil
}

// resolveDeployment finds or creates the deployment for a media row's folder
// and widens its activity window to include the capture timestamp. Images
// with GPS data and images without it map to distinct deployments even
// within one folder.
func (o *Orchestrator) resolveDeployment(media *datastore.Media, info *imagemeta.CaptureInfo, timestamp time.Time) (*datastore.Deployment, error) {
	locationID := media.FolderName
	if info.HasLocation() {
		locationID = fmt.Sprintf("%s@%.4f,%.4f", media.FolderName, *info.Latitude, *info.Longitude)
	}

	if cached, ok := o.deployments[locationID]; ok {
		if err := o.ds.WidenDeployment(cached.ID, timestamp); err != nil {
			return nil, err
		}
		return cached, nil
	}

	deployment, err := o.ds.DeploymentByLocation(locationID)
	if err == nil {
		if err := o.ds.WidenDeployment(deployment.ID, timestamp); err != nil {
			return nil, err
		}
		o.deployments[locationID] = deployment
		return deployment, nil
	}

	deployment = &datastore.Deployment{
		LocationID:      locationID,
		LocationName:    media.FolderName,
		DeploymentStart: timestamp,
		DeploymentEnd:   timestamp,
		Latitude:        info.Latitude,
		Longitude:       info.Longitude,
	}
	if err := o.ds.SaveDeployment(deployment); err != nil {
		return nil, err
	}
	o.deployments[locationID] = deployment
	return deployment, nil
}

// populateStudyWindow auto-fills the study's overall temporal window from
// media timestamps, best-effort, unless the user already set one. Timestamps
// within the last 24 hours are excluded as likely missing-EXIF defaults.
func (o *Orchestrator) populateStudyWindow() {
	study, err := o.ds.GetStudy()
	if err != nil {
		o.logger.Warn("cannot load study for window population", "error", err)
		return
	}
	if study.TemporalUserSet {
		return
	}

	start, end, err := o.ds.MediaTimestampBounds(time.Now().Add(-recentWindowCutoff))
	if err != nil {
		o.logger.Warn("cannot compute media timestamp bounds", "error", err)
		return
	}
	if start == nil || end == nil {
		return
	}

	study.TemporalStart = start
	study.TemporalEnd = end
	if err := o.ds.SaveStudy(study); err != nil {
		o.logger.Warn("cannot save study window", "error", err)
	}
}
