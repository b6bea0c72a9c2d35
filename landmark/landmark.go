// Package landmark manages the landmarks a user places on a map: their model,
// the markers file they are saved to, and the layer drawing them.
package landmark

import (
	"github.com/teris-io/shortid"

	"trekme/pyramid"
)

// Landmark is a named point of interest. ProjX and ProjY cache the projected
// coordinates when the owning map has a projection.
type Landmark struct {
	ID      string
	Name    string
	Lat     float64
	Lon     float64
	ProjX   *float64
	ProjY   *float64
	Comment string
}

// New returns an unnamed landmark with a fresh ID.
func New() *Landmark {
	id, err := shortid.Generate()
	if err != nil {
		// shortid only fails on a broken generator configuration
		panic(err)
	}
	return &Landmark{ID: id}
}

// SetPosition updates the coordinates from a located position.
func (l *Landmark) SetPosition(p pyramid.Position) {
	l.Lat, l.Lon = p.Lat, p.Lon
	l.ProjX, l.ProjY = p.ProjX, p.ProjY
}

// Map is a calibrated map owning landmarks. It is not safe for concurrent use;
// its owning screen mutates it.
type Map struct {
	Name   string
	Dir    string
	Mapper pyramid.Mapper

	landmarks []*Landmark
	defined   bool
}

// LandmarksDefined reports whether the landmarks were loaded or set.
func (m *Map) LandmarksDefined() bool {
	return m.defined
}

// SetLandmarks replaces the landmarks of the map.
func (m *Map) SetLandmarks(ls []*Landmark) {
	m.landmarks = ls
	m.defined = true
}

// Landmarks returns the landmarks of the map.
func (m *Map) Landmarks() []*Landmark {
	return m.landmarks
}

// Landmark returns the landmark with the given ID.
func (m *Map) Landmark(id string) (*Landmark, bool) {
	for _, l := range m.landmarks {
		if l.ID == id {
			return l, true
		}
	}
	return nil, false
}

// AddLandmark appends l.
func (m *Map) AddLandmark(l *Landmark) {
	m.landmarks = append(m.landmarks, l)
	m.defined = true
}

// RemoveLandmark removes the landmark with the given ID.
func (m *Map) RemoveLandmark(id string) bool {
	for i, l := range m.landmarks {
		if l.ID == id {
			m.landmarks = append(m.landmarks[:i], m.landmarks[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot copies the landmarks, for saving off the owner goroutine.
func (m *Map) Snapshot() []Landmark {
	out := make([]Landmark, 0, len(m.landmarks))
	for _, l := range m.landmarks {
		out = append(out, *l)
	}
	return out
}

// RelativePosition returns where l is drawn in the unit square of the map.
func (m *Map) RelativePosition(l *Landmark) (float64, float64, bool) {
	if m.Mapper.Projection != nil && l.ProjX != nil && l.ProjY != nil {
		rx, ry := m.Mapper.Config.ToRelative(*l.ProjX, *l.ProjY)
		return rx, ry, true
	}
	return m.Mapper.RelativeOf(l.Lat, l.Lon)
}
