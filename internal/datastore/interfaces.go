// interfaces.go: this code defines the interface for the study database operations
package datastore

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tphakala/camtrap-go/internal/errors"
)

// Interface abstracts the underlying database implementation and defines the
// operations the import and inference pipeline needs.
type Interface interface {
	Open() error
	Close() error

	// Study
	GetStudy() (*Study, error)
	SaveStudy(study *Study) error

	// Media
	InsertMediaBatch(media []Media) error
	MediaCount() (int64, error)
	GetMediaByPath(filePath string) (*Media, error)
	SetMediaCapture(mediaID uint, timestamp time.Time, deploymentID uint) error
	UnprocessedMedia(limit int) ([]Media, error)
	MediaTimestampBounds(before time.Time) (start, end *time.Time, err error)

	// Deployments
	DeploymentByLocation(locationID string) (*Deployment, error)
	SaveDeployment(deployment *Deployment) error
	WidenDeployment(deploymentID uint, timestamp time.Time) error

	// Runs and results
	CreateModelRun(run *ModelRun) error
	UpdateModelRunStatus(runID uint, status, lastError string) error
	LatestModelRun() (*ModelRun, error)
	SaveResult(output *ModelOutput, observation *Observation) error
	ObservationCount() (int64, error)
	ModelOutputCountForRun(runID uint) (int64, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// GetStudy retrieves the study row, which is created on store initialization.
func (ds *DataStore) GetStudy() (*Study, error) {
	var study Study
	if err := ds.DB.First(&study).Error; err != nil {
		return nil, fmt.Errorf("getting study: %w", err)
	}
	return &study, nil
}

// SaveStudy persists changes to the study row.
func (ds *DataStore) SaveStudy(study *Study) error {
	if err := ds.DB.Save(study).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save-study").
			Build()
	}
	return nil
}

// InsertMediaBatch bulk-inserts discovered media rows in a single transaction.
// Large imports are chunked so a folder of tens of thousands of images does
// not produce one oversized statement.
func (ds *DataStore) InsertMediaBatch(media []Media) error {
	if len(media) == 0 {
		return nil
	}

	const chunkSize = 500
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(media, chunkSize).Error
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "insert-media-batch").
			Context("count", len(media)).
			Build()
	}
	return nil
}

// MediaCount returns the total number of media rows.
func (ds *DataStore) MediaCount() (int64, error) {
	var count int64
	if err := ds.DB.Model(&Media{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting media: %w", err)
	}
	return count, nil
}

// GetMediaByPath retrieves a media row by its absolute file path. Predictions
// are correlated to media by file path, never by position in the batch.
func (ds *DataStore) GetMediaByPath(filePath string) (*Media, error) {
	var media Media
	if err := ds.DB.Where("file_path = ?", filePath).First(&media).Error; err != nil {
		return nil, err
	}
	return &media, nil
}

// SetMediaCapture assigns timestamp and deployment to a media row. The update
// is guarded so it happens at most once: rows that already carry a deployment
// are left untouched.
func (ds *DataStore) SetMediaCapture(mediaID uint, timestamp time.Time, deploymentID uint) error {
	err := ds.DB.Model(&Media{}).
		Where("id = ? AND deployment_id IS NULL", mediaID).
		Updates(map[string]any{
			"timestamp":     timestamp,
			"deployment_id": deploymentID,
		}).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "set-media-capture").
			Context("media_id", mediaID).
			Build()
	}
	return nil
}

// UnprocessedMedia returns up to limit media rows that have no Observation
// yet. "Processed" is defined relationally, so re-invoking the pipeline
// naturally resumes from wherever it left off.
func (ds *DataStore) UnprocessedMedia(limit int) ([]Media, error) {
	var media []Media
	err := ds.DB.
		Joins("LEFT JOIN observations ON observations.media_id = media.id").
		Where("observations.id IS NULL").
		Order("media.id ASC").
		Limit(limit).
		Find(&media).Error
	if err != nil {
		return nil, fmt.Errorf("querying unprocessed media: %w", err)
	}
	return media, nil
}

// MediaTimestampBounds returns the earliest and latest media timestamps older
// than the given cutoff. Nil results mean no qualifying timestamps exist.
func (ds *DataStore) MediaTimestampBounds(before time.Time) (start, end *time.Time, err error) {
	var bounds struct {
		Start *time.Time
		End   *time.Time
	}
	err = ds.DB.Model(&Media{}).
		Select("MIN(timestamp) as start, MAX(timestamp) as end").
		Where("timestamp IS NOT NULL AND timestamp < ?", before).
		Scan(&bounds).Error
	if err != nil {
		return nil, nil, fmt.Errorf("querying media timestamp bounds: %w", err)
	}
	return bounds.Start, bounds.End, nil
}

// DeploymentByLocation retrieves a deployment by its derived location ID.
func (ds *DataStore) DeploymentByLocation(locationID string) (*Deployment, error) {
	var deployment Deployment
	if err := ds.DB.Where("location_id = ?", locationID).First(&deployment).Error; err != nil {
		return nil, err
	}
	return &deployment, nil
}

// SaveDeployment persists a new or updated deployment.
func (ds *DataStore) SaveDeployment(deployment *Deployment) error {
	if err := ds.DB.Save(deployment).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save-deployment").
			Context("location_id", deployment.LocationID).
			Build()
	}
	return nil
}

// WidenDeployment extends a deployment's activity window to include the given
// timestamp. The window only ever widens.
func (ds *DataStore) WidenDeployment(deploymentID uint, timestamp time.Time) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		var deployment Deployment
		if err := tx.First(&deployment, deploymentID).Error; err != nil {
			return fmt.Errorf("loading deployment %d: %w", deploymentID, err)
		}

		changed := false
		if timestamp.Before(deployment.DeploymentStart) {
			deployment.DeploymentStart = timestamp
			changed = true
		}
		if timestamp.After(deployment.DeploymentEnd) {
			deployment.DeploymentEnd = timestamp
			changed = true
		}
		if !changed {
			return nil
		}
		return tx.Save(&deployment).Error
	})
}

// CreateModelRun inserts a new run row with status running.
func (ds *DataStore) CreateModelRun(run *ModelRun) error {
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if err := ds.DB.Create(run).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "create-model-run").
			Build()
	}
	return nil
}

// UpdateModelRunStatus transitions a run out of the running state. The update
// is guarded on the current status so a terminal state is never overwritten.
func (ds *DataStore) UpdateModelRunStatus(runID uint, status, lastError string) error {
	err := ds.DB.Model(&ModelRun{}).
		Where("id = ? AND status = ?", runID, RunStatusRunning).
		Updates(map[string]any{
			"status":     status,
			"last_error": lastError,
		}).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "update-model-run-status").
			Context("run_id", runID).
			Context("status", status).
			Build()
	}
	return nil
}

// LatestModelRun returns the most recently started run, or gorm.ErrRecordNotFound.
func (ds *DataStore) LatestModelRun() (*ModelRun, error) {
	var run ModelRun
	if err := ds.DB.Order("started_at DESC, id DESC").First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// SaveResult stores the raw model output and its derived observation as a
// single transaction, so a media item never ends up half-processed.
func (ds *DataStore) SaveResult(output *ModelOutput, observation *Observation) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(output).Error; err != nil {
			return fmt.Errorf("saving model output: %w", err)
		}
		observation.ModelOutputID = output.ID
		if err := tx.Create(observation).Error; err != nil {
			return fmt.Errorf("saving observation: %w", err)
		}
		return nil
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save-result").
			Context("media_id", output.MediaID).
			Context("run_id", output.ModelRunID).
			Build()
	}
	return nil
}

// ObservationCount returns the number of observations, i.e. processed media.
func (ds *DataStore) ObservationCount() (int64, error) {
	var count int64
	if err := ds.DB.Model(&Observation{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting observations: %w", err)
	}
	return count, nil
}

// ModelOutputCountForRun returns the number of outputs persisted for a run.
func (ds *DataStore) ModelOutputCountForRun(runID uint) (int64, error) {
	var count int64
	if err := ds.DB.Model(&ModelOutput{}).Where("model_run_id = ?", runID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting model outputs: %w", err)
	}
	return count, nil
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, connectionInfo string) error {
	if err := db.AutoMigrate(&Study{}, &Deployment{}, &Media{}, &ModelRun{}, &ModelOutput{}, &Observation{}); err != nil {
		return fmt.Errorf("failed to auto-migrate study database: %w", err)
	}

	if debug {
		log.Printf("study database connection initialized: %s", connectionInfo)
	}

	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
