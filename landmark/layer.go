package landmark

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// MarkerView draws markers at relative positions of a map view.
type MarkerView interface {
	// Center returns the relative position of the center of the screen.
	Center() (rx, ry float64)
	AddMarker(id string, rx, ry float64)
	MoveMarker(id string, rx, ry float64)
	RemoveMarker(id string)
}

// Scheduler runs background work and brings results back to the goroutine
// owning the layer.
type Scheduler interface {
	Go(fn func(ctx context.Context))
	Post(fn func())
}

type movable struct {
	landmark *Landmark
	rx, ry   float64
}

// grabID is the marker drawn under a movable landmark to drag it.
func grabID(id string) string {
	return id + "-grab"
}

// Layer draws the landmarks of a map and lets the user add and move them.
// Its methods must be called from the goroutine owning the view.
type Layer struct {
	view      MarkerView
	store     Store
	scheduler Scheduler
	m         *Map
	visible   bool
	movables  map[string]*movable
	logger    *log.Entry

	// loaded is set once the markers file was read; saves asked for before
	// that are deferred through dirty so they cannot overwrite the file.
	loaded  bool
	dirty   bool
	version uint64

	saveMu  sync.Mutex
	written uint64
}

// NewLayer returns a layer drawing on view.
func NewLayer(view MarkerView, store Store, scheduler Scheduler) *Layer {
	return &Layer{
		view:      view,
		store:     store,
		scheduler: scheduler,
		movables:  make(map[string]*movable),
		logger:    log.WithField("component", "landmarks"),
	}
}

// Init attaches the layer to m and draws its landmarks, loading them first
// when needed. Landmarks added before the load completes are kept alongside
// the loaded ones.
func (ly *Layer) Init(m *Map) {
	ly.m, ly.loaded, ly.dirty = m, false, false
	ly.logger = ly.logger.WithField("map", m.Name)
	if m.LandmarksDefined() {
		ly.loaded = true
		ly.drawLandmarks(m.Landmarks())
		return
	}
	dir := m.Dir
	logger := ly.logger
	ly.scheduler.Go(func(ctx context.Context) {
		ls, err := ly.store.Load(ctx, dir)
		ly.scheduler.Post(func() {
			if ly.m != m {
				return
			}
			if err != nil {
				// an unreadable markers file is never overwritten
				logger.Errorf("load landmarks: %s", err)
				return
			}
			ly.merge(ls)
		})
	})
}

func (ly *Layer) merge(loaded []*Landmark) {
	var ls []*Landmark
	for _, l := range loaded {
		if _, ok := ly.m.Landmark(l.ID); !ok {
			ls = append(ls, l)
		}
	}
	ly.drawLandmarks(ls)
	ly.m.SetLandmarks(append(ls, ly.m.Landmarks()...))

	ly.loaded = true
	if ly.dirty {
		ly.dirty = false
		ly.save()
	}
}

func (ly *Layer) drawLandmarks(ls []*Landmark) {
	for _, l := range ls {
		rx, ry, ok := ly.m.RelativePosition(l)
		if !ok {
			ly.logger.Warnf("landmark %s is outside the map projection", l.ID)
			continue
		}
		ly.view.AddMarker(l.ID, rx, ry)
	}
	ly.visible = true
}

// IsVisible reports whether the landmarks are drawn.
func (ly *Layer) IsVisible() bool {
	return ly.visible
}

// AddNewLandmark creates a landmark at the center of the screen, in its
// movable form.
func (ly *Layer) AddNewLandmark() *Landmark {
	rx, ry := ly.view.Center()
	l := New()
	l.SetPosition(ly.m.Mapper.Locate(rx, ry))
	ly.m.AddLandmark(l)

	ly.view.AddMarker(l.ID, rx, ry)
	ly.attachGrab(l, rx, ry)
	return l
}

func (ly *Layer) attachGrab(l *Landmark, rx, ry float64) {
	ly.movables[l.ID] = &movable{landmark: l, rx: rx, ry: ry}
	ly.view.AddMarker(grabID(l.ID), rx, ry)
}

// Drag moves a movable landmark and its grab to (rx, ry).
func (ly *Layer) Drag(id string, rx, ry float64) bool {
	mv, ok := ly.movables[id]
	if !ok {
		return false
	}
	ly.view.MoveMarker(grabID(id), rx, ry)
	ly.view.MoveMarker(id, rx, ry)
	mv.rx, mv.ry = rx, ry
	return true
}

// Drop turns a movable landmark back into its static form, commits its new
// coordinates and saves the markers file.
func (ly *Layer) Drop(id string) bool {
	mv, ok := ly.movables[id]
	if !ok {
		return false
	}
	delete(ly.movables, id)
	ly.view.RemoveMarker(grabID(id))
	mv.landmark.SetPosition(ly.m.Mapper.Locate(mv.rx, mv.ry))
	ly.save()
	return true
}

// OnMarkerTap makes a static landmark movable again.
func (ly *Layer) OnMarkerTap(id string) {
	if _, ok := ly.movables[id]; ok {
		return
	}
	l, ok := ly.m.Landmark(id)
	if !ok {
		return
	}
	rx, ry, ok := ly.m.RelativePosition(l)
	if !ok {
		return
	}
	ly.attachGrab(l, rx, ry)
}

// Remove deletes a landmark from the map and saves the markers file.
func (ly *Layer) Remove(id string) bool {
	if !ly.m.RemoveLandmark(id) {
		return false
	}
	if _, ok := ly.movables[id]; ok {
		delete(ly.movables, id)
		ly.view.RemoveMarker(grabID(id))
	}
	ly.view.RemoveMarker(id)
	ly.save()
	return true
}

// save writes the markers file in the background. Saves may run
// concurrently; a snapshot older than the last one written is skipped.
func (ly *Layer) save() {
	if !ly.loaded {
		ly.dirty = true
		return
	}
	ly.version++
	v, dir, snapshot, logger := ly.version, ly.m.Dir, ly.m.Snapshot(), ly.logger
	ly.scheduler.Go(func(ctx context.Context) {
		ly.saveMu.Lock()
		defer ly.saveMu.Unlock()
		if v <= ly.written {
			return
		}
		if err := ly.store.Save(ctx, dir, snapshot); err != nil {
			logger.Errorf("save landmarks: %s", err)
			return
		}
		ly.written = v
	})
}
