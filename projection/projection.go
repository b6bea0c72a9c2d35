// Package projection converts WGS84 geographic coordinates to the planar
// coordinates used by map calibrations, and back.
package projection

import (
	"math"

	"github.com/wroge/wgs84"
)

// MaxLatitude is the latitude at which the Web Mercator square ends.
const MaxLatitude = 85.05112877980659

// HalfExtent is half the side of the Web Mercator square, in meters.
const HalfExtent = 20037508.3427892476320267

// Projection is implemented by every map projection a calibration can use.
// Implementations must be safe for concurrent use.
type Projection interface {
	// Project returns the projected coordinates of (lat, lon), or ok=false when
	// the point lies outside the projection domain.
	Project(lat, lon float64) (x, y float64, ok bool)
	// Unproject is the inverse of Project.
	Unproject(x, y float64) (lat, lon float64, ok bool)
	// Name identifies the projection in map files.
	Name() string
}

var (
	toWebMercator   = wgs84.LonLat().To(wgs84.WebMercator())
	fromWebMercator = wgs84.WebMercator().To(wgs84.LonLat())
)

// Mercator is the spherical (pseudo) Mercator used by Google Maps compatible
// tile matrix sets, EPSG:3857.
type Mercator struct{}

// Name implements Projection.
func (Mercator) Name() string {
	return "Pseudo-Mercator"
}

// Project implements Projection.
func (Mercator) Project(lat, lon float64) (float64, float64, bool) {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return 0, 0, false
	}
	if math.Abs(lat) > MaxLatitude || math.Abs(lon) > 180 {
		return 0, 0, false
	}
	x, y, _ := toWebMercator(lon, lat, 0)
	return x, y, true
}

// Unproject implements Projection.
func (Mercator) Unproject(x, y float64) (float64, float64, bool) {
	if math.IsNaN(x) || math.IsNaN(y) {
		return 0, 0, false
	}
	if math.Abs(x) > HalfExtent+1e-6 || math.Abs(y) > HalfExtent+1e-6 {
		return 0, 0, false
	}
	lon, lat, _ := fromWebMercator(x, y, 0)
	return lat, lon, true
}

// ByName returns the projection registered under name, or nil.
func ByName(name string) Projection {
	switch name {
	case Mercator{}.Name(), "EPSG:3857", "mercator":
		return Mercator{}
	}
	return nil
}
