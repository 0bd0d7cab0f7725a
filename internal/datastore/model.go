// model.go this code defines the data model for a study datastore
package datastore

import "time"

// ModelRun status values. A run's status is monotone: once it leaves
// "running" it never re-enters it.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusAborted   = "aborted"
)

// Study represents the single per-store row describing the study itself
type Study struct {
	ID              uint `gorm:"primaryKey"`
	Name            string
	ImportFolder    string     // root folder the media was imported from
	Initialized     bool       // true once the bootstrap media scan has run to completion
	TemporalStart   *time.Time // overall study window, auto-populated unless user-set
	TemporalEnd     *time.Time
	TemporalUserSet bool // true when the window was set by the user, blocks auto-population
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Deployment represents a camera placement inferred from folder structure.
// Its activity window only ever widens, never shrinks.
type Deployment struct {
	ID              uint   `gorm:"primaryKey"`
	LocationID      string `gorm:"uniqueIndex:idx_deployments_location"`
	LocationName    string
	DeploymentStart time.Time
	DeploymentEnd   time.Time
	Latitude        *float64
	Longitude       *float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Media represents one imported image file. Created at scan time; timestamp
// and deployment are assigned together exactly once, on the first successful
// prediction, and never cleared afterwards.
type Media struct {
	ID           uint       `gorm:"primaryKey"`
	DeploymentID *uint      `gorm:"index"`
	Deployment   *Deployment `gorm:"foreignKey:DeploymentID"`
	Timestamp    *time.Time
	FilePath     string `gorm:"index:idx_media_filepath"`
	FileName     string
	ImportFolder string
	FolderName   string
	CreatedAt    time.Time
}

// TableName pins the table name, the default pluralizer mangles "media".
func (Media) TableName() string { return "media" }

// ModelRun represents one execution session of a classification model over
// the study's unprocessed media.
type ModelRun struct {
	ID           uint   `gorm:"primaryKey"`
	ModelID      string
	ModelVersion string
	StartedAt    time.Time
	Status       string `gorm:"index:idx_model_runs_status"`
	ImportPath   string
	Options      string `gorm:"type:text"` // run options as JSON, e.g. geofencing country
	LastError    string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ModelOutput retains the raw per-item inference payload for provenance.
// Unique per (media, run): a media item re-processed in a different run gains
// another row, never a second row within the same run.
type ModelOutput struct {
	ID         uint `gorm:"primaryKey"`
	MediaID    uint `gorm:"uniqueIndex:idx_model_outputs_media_run;not null"`
	ModelRunID uint `gorm:"uniqueIndex:idx_model_outputs_media_run;not null"`
	Media      *Media    `gorm:"foreignKey:MediaID"`
	ModelRun   *ModelRun `gorm:"foreignKey:ModelRunID"`
	RawOutput  string    `gorm:"type:text"` // raw prediction JSON as received from the server
	CreatedAt  time.Time
}

// Observation is the derived species interpretation attached to a media item.
// A media item counts as processed iff an Observation referencing it exists.
type Observation struct {
	ID            uint  `gorm:"primaryKey"`
	MediaID       uint  `gorm:"index;not null"`
	DeploymentID  *uint `gorm:"index"`
	ModelOutputID uint  `gorm:"index;not null"`
	Media         *Media       `gorm:"foreignKey:MediaID"`
	Deployment    *Deployment  `gorm:"foreignKey:DeploymentID"`
	ModelOutput   *ModelOutput `gorm:"foreignKey:ModelOutputID"`

	ScientificName *string `gorm:"index:idx_observations_sciname"` // nil for an explicit blank
	Confidence     float64

	// Highest-confidence detection bounding box, normalized top-left plus size.
	BboxX      *float64
	BboxY      *float64
	BboxWidth  *float64
	BboxHeight *float64

	ClassificationMethod    string // "machine" for model-derived observations
	ClassifiedBy            string // "{modelID} {modelVersion}"
	ClassificationTimestamp time.Time
	CreatedAt               time.Time
}
