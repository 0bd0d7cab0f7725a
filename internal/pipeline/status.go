package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/tphakala/camtrap-go/internal/datastore"
)

// batchTiming records the most recent completed batch. Process-wide, not
// per-run: the estimate it feeds is a rough throughput signal, and a single
// inference server is active at a time in practice.
type batchTiming struct {
	duration time.Duration
	size     int
}

var lastBatch atomic.Pointer[batchTiming]

// RecordBatch stores the duration and size of the most recently completed
// batch for progress estimation.
func RecordBatch(d time.Duration, size int) {
	lastBatch.Store(&batchTiming{duration: d, size: size})
}

// Status is a point-in-time snapshot of a study's processing progress.
type Status struct {
	Total     int64 `json:"total"`
	Done      int64 `json:"done"`
	IsRunning bool  `json:"isRunning"`

	// EstimatedMinutesRemaining extrapolates the remaining work from the most
	// recent batch duration. Zero when no batch has completed yet.
	EstimatedMinutesRemaining float64 `json:"estimatedMinutesRemaining"`
	// Speed is the throughput of the most recent batch in images per minute.
	Speed float64 `json:"speed"`

	LastRunStatus string `json:"lastRunStatus,omitempty"`
	LastError     string `json:"lastError,omitempty"`
}

// ReadStatus opens the study store read-only and derives a progress
// snapshot. It never blocks on a running pipeline; progress comes from row
// counts, not shared state.
func ReadStatus(dbPath string, isRunning bool) (*Status, error) {
	store := datastore.NewReadOnly(dbPath)
	if err := store.Open(); err != nil {
		return nil, err
	}
	defer store.Close() //nolint:errcheck // read-only handle

	total, err := store.MediaCount()
	if err != nil {
		return nil, err
	}
	done, err := store.ObservationCount()
	if err != nil {
		return nil, err
	}

	status := &Status{
		Total:     total,
		Done:      done,
		IsRunning: isRunning,
	}

	if run, err := store.LatestModelRun(); err == nil && run != nil {
		status.LastRunStatus = run.Status
		status.LastError = run.LastError
	}

	if timing := lastBatch.Load(); timing != nil && timing.size > 0 && timing.duration > 0 {
		perItem := timing.duration.Seconds() / float64(timing.size)
		remaining := total - done
		if remaining > 0 {
			status.EstimatedMinutesRemaining = float64(remaining) * perItem / 60
		}
		status.Speed = 60 / perItem
	}

	return status, nil
}
