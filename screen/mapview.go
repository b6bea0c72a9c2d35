package screen

import (
	"context"

	"trekme/landmark"
)

// MapScreen shows a calibrated map with its landmarks.
type MapScreen struct {
	scope *Scope
	m     *landmark.Map
	layer *landmark.Layer
}

// NewMapScreen returns a screen drawing the landmarks of m on view.
func NewMapScreen(parent context.Context, m *landmark.Map, view landmark.MarkerView, store landmark.Store) *MapScreen {
	s := &MapScreen{scope: NewScope(parent), m: m}
	s.layer = landmark.NewLayer(view, store, s.scope)
	return s
}

// Run is the owner loop. It returns once the screen is closed.
func (s *MapScreen) Run() error {
	release, err := s.scope.Own()
	if err != nil {
		return err
	}
	defer release()
	ctx := s.scope.Context()
	s.layer.Init(s.m)
	for {
		select {
		case fn := <-s.scope.Posts():
			fn()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Do runs a gesture on the landmark layer from the owner goroutine.
func (s *MapScreen) Do(fn func(*landmark.Layer)) {
	s.scope.Post(func() { fn(s.layer) })
}

// Close tears the screen down. Saves already started complete before it
// returns.
func (s *MapScreen) Close() {
	s.scope.Close()
}
