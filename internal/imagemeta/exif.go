// Package imagemeta extracts capture metadata from camera-trap images.
package imagemeta

import (
	"log/slog"
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"

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

// CaptureInfo holds the metadata a camera wrote into an image. Fields are nil
// when the image carries no usable EXIF data.
type CaptureInfo struct {
	TakenAt   *time.Time
	Latitude  *float64
	Longitude *float64
}

// HasLocation reports whether GPS coordinates were present.
func (ci *CaptureInfo) HasLocation() bool {
	return ci.Latitude != nil && ci.Longitude != nil
}

// Extract reads EXIF capture time and GPS coordinates from the image at path.
// Parse failures are recovered locally: the zero CaptureInfo is returned and
// the caller falls back to import-time defaults. Extraction never aborts a
// batch.
func Extract(path string) CaptureInfo {
	logger := getLoggerSafe("imagemeta")

	var info CaptureInfo

	f, err := os.Open(path)
	if err != nil {
		logger.Debug("cannot open image for metadata extraction", "path", path, "error", err)
		return info
	}
	defer func() { _ = f.Close() }()

	x, err := exif.Decode(f)
	if err != nil {
		// Common for images without EXIF (PNG screenshots, stripped files).
		logger.Debug("no EXIF data in image", "path", path, "error", err)
		return info
	}

	if takenAt, err := x.DateTime(); err == nil {
		info.TakenAt = &takenAt
	}

	if lat, lon, err := x.LatLong(); err == nil {
		info.Latitude = &lat
		info.Longitude = &lon
	}

	return info
}

// Localize reinterprets a capture time's wall-clock reading in the given
// location. EXIF timestamps carry no zone, so the camera's wall clock is
// assumed to match the deployment site's local time.
func Localize(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
