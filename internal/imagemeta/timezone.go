package imagemeta

import (
	"sync"
	"time"

	"github.com/ringsaturn/tzf"
)

var (
	finderOnce sync.Once
	finder     tzf.F
	finderErr  error
)

// TimezoneAt resolves the IANA timezone at the given GPS coordinates. When
// the lookup fails the system's local zone is returned, matching the
// behavior for images without GPS data.
func TimezoneAt(lat, lon float64) *time.Location {
	finderOnce.Do(func() {
		finder, finderErr = tzf.NewDefaultFinder()
	})
	if finderErr != nil || finder == nil {
		return time.Local
	}

	name := finder.GetTimezoneName(lon, lat)
	if name == "" {
		return time.Local
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}
