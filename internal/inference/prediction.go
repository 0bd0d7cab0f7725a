// Package inference supervises the local model-serving process and streams
// batched predictions back from it.
package inference

import (
	"log/slog"

	"github.com/tphakala/camtrap-go/internal/logging"
)

// getLoggerSafe returns a logger for the service, falling back to default if logging not initialized
func getLoggerSafe(service string) *slog.Logger {
	logger := logging.ForService(service)
	if logger == nil {
		logger = slog.Default().With("service", service)
	}
	return logger
}

// Classifications holds the top-k classifier labels and scores for one image.
type Classifications struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// Detection is one detector hit. SpeciesNet-family models report a normalized
// top-left bbox in BBox; DeepFaune-family models report normalized
// center-based coordinates in XYWHN alongside pixel corners in XYXY.
type Detection struct {
	Category string    `json:"category,omitempty"`
	Label    string    `json:"label"`
	Conf     float64   `json:"conf"`
	BBox     []float64 `json:"bbox,omitempty"`
	XYXY     []float64 `json:"xyxy,omitempty"`
	XYWHN    []float64 `json:"xywhn,omitempty"`
}

// Prediction is the per-item payload the inference server streams back.
type Prediction struct {
	Filepath        string           `json:"filepath"`
	Prediction      string           `json:"prediction"`
	PredictionScore float64          `json:"prediction_score"`
	ModelVersion    string           `json:"model_version"`
	Classifications *Classifications `json:"classifications,omitempty"`
	Detections      []Detection      `json:"detections,omitempty"`
}

// envelope is one newline-delimited line of the streamed /predict response.
type envelope struct {
	Output struct {
		Predictions []Prediction `json:"predictions"`
	} `json:"output"`
}

// predictRequest is the /predict request body.
type predictRequest struct {
	Instances []instance `json:"instances"`
}

type instance struct {
	Filepath string `json:"filepath"`
	Country  string `json:"country,omitempty"`
}

// BestDetection returns the highest-confidence detection. Ties are broken by
// encounter order, first wins.
func (p *Prediction) BestDetection() (Detection, bool) {
	if len(p.Detections) == 0 {
		return Detection{}, false
	}
	best := p.Detections[0]
	for _, det := range p.Detections[1:] {
		if det.Conf > best.Conf {
			best = det
		}
	}
	return best, true
}
