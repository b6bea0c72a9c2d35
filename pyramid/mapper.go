package pyramid

import (
	"trekme/projection"
)

// Position is a geographic position with its optional projected coordinates.
// ProjX and ProjY are nil when the map has no projection.
type Position struct {
	Lat, Lon     float64
	ProjX, ProjY *float64
}

// Mapper ties a pyramid calibration to the projection of its coordinates.
// A nil Projection means the calibration is expressed in lon/lat directly.
type Mapper struct {
	Config     Config
	Projection projection.Projection
}

// NewMercatorMapper returns the mapper of Google Maps compatible sources.
func NewMercatorMapper() Mapper {
	return Mapper{Config: GoogleMapsCompatible(), Projection: projection.Mercator{}}
}

// ProjectGeo returns the coordinates of (lat, lon) in the calibration space.
// It can be called from any goroutine.
func (m Mapper) ProjectGeo(lat, lon float64) (float64, float64, bool) {
	if m.Projection == nil {
		return lon, lat, true
	}
	return m.Projection.Project(lat, lon)
}

// RelativeOf returns the position of (lat, lon) in the unit square.
func (m Mapper) RelativeOf(lat, lon float64) (float64, float64, bool) {
	x, y, ok := m.ProjectGeo(lat, lon)
	if !ok {
		return 0, 0, false
	}
	rx, ry := m.Config.ToRelative(x, y)
	return rx, ry, true
}

// Locate returns the geographic position of a point of the unit square.
// Without projection the calibration coordinates are taken as lon/lat. When
// the projection cannot invert the point, Lat and Lon are left at zero.
func (m Mapper) Locate(rx, ry float64) Position {
	x, y := m.Config.FromRelative(rx, ry)
	if m.Projection == nil {
		return Position{Lat: y, Lon: x}
	}
	p := Position{ProjX: &x, ProjY: &y}
	if lat, lon, ok := m.Projection.Unproject(x, y); ok {
		p.Lat, p.Lon = lat, lon
	}
	return p
}
