package landmark

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trekme/pyramid"
)

type fakeView struct {
	cx, cy  float64
	markers map[string][2]float64
	removed []string
}

func newFakeView(cx, cy float64) *fakeView {
	return &fakeView{cx: cx, cy: cy, markers: make(map[string][2]float64)}
}

func (v *fakeView) Center() (float64, float64)             { return v.cx, v.cy }
func (v *fakeView) AddMarker(id string, rx, ry float64)  { v.markers[id] = [2]float64{rx, ry} }
func (v *fakeView) MoveMarker(id string, rx, ry float64) { v.markers[id] = [2]float64{rx, ry} }
func (v *fakeView) RemoveMarker(id string) {
	delete(v.markers, id)
	v.removed = append(v.removed, id)
}

// inline runs background work immediately, on the calling goroutine.
type inline struct{}

func (inline) Go(fn func(ctx context.Context)) { fn(context.Background()) }
func (inline) Post(fn func())                  { fn() }

func newMercatorMap(t *testing.T) *Map {
	return &Map{Name: "grenoble", Dir: t.TempDir(), Mapper: pyramid.NewMercatorMapper()}
}

func TestAddDragDrop(t *testing.T) {
	m := newMercatorMap(t)
	m.SetLandmarks(nil)
	rx0, ry0, ok := m.Mapper.RelativeOf(45.1885, 5.7245)
	require.True(t, ok)
	view := newFakeView(rx0, ry0)
	ly := NewLayer(view, FileStore{}, inline{})
	ly.Init(m)
	assert.True(t, ly.IsVisible())

	l := ly.AddNewLandmark()
	require.Len(t, m.Landmarks(), 1)
	assert.InDelta(t, 45.1885, l.Lat, 1e-8)
	assert.InDelta(t, 5.7245, l.Lon, 1e-8)
	require.NotNil(t, l.ProjX)
	assert.Contains(t, view.markers, l.ID)
	assert.Contains(t, view.markers, grabID(l.ID))

	rx1, ry1, ok := m.Mapper.RelativeOf(45.2, 5.75)
	require.True(t, ok)
	require.True(t, ly.Drag(l.ID, rx1, ry1))
	assert.Equal(t, [2]float64{rx1, ry1}, view.markers[l.ID])
	// coordinates are committed on drop only
	assert.InDelta(t, 45.1885, l.Lat, 1e-8)

	require.True(t, ly.Drop(l.ID))
	assert.NotContains(t, view.markers, grabID(l.ID))
	assert.InDelta(t, 45.2, l.Lat, 1e-8)
	assert.InDelta(t, 5.75, l.Lon, 1e-8)
	assert.False(t, ly.Drag(l.ID, 0, 0))

	saved, err := FileStore{}.Load(context.Background(), m.Dir)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, l.ID, saved[0].ID)
	assert.InDelta(t, 45.2, saved[0].Lat, 1e-8)
	require.NotNil(t, saved[0].ProjX)
	assert.InDelta(t, *l.ProjX, *saved[0].ProjX, 1e-6)
}

func TestInitLoadsLandmarks(t *testing.T) {
	m := newMercatorMap(t)
	x, y := 637245.0, 5652000.0
	ls := []Landmark{
		{ID: "a", Name: "Bastille", Lat: 45.1990, Lon: 5.7250},
		{ID: "b", Name: "Chamrousse", Lat: 45.1100, Lon: 5.8800, ProjX: &x, ProjY: &y, Comment: "ski"},
	}
	require.NoError(t, FileStore{}.Save(context.Background(), m.Dir, ls))

	view := newFakeView(0.5, 0.5)
	ly := NewLayer(view, FileStore{}, inline{})
	ly.Init(m)

	require.True(t, m.LandmarksDefined())
	require.Len(t, m.Landmarks(), 2)
	assert.Equal(t, "ski", m.Landmarks()[1].Comment)
	assert.Len(t, view.markers, 2)
	rx, ry := m.Mapper.Config.ToRelative(x, y)
	assert.Equal(t, [2]float64{rx, ry}, view.markers["b"])
}

func TestLandmarksWithoutProjection(t *testing.T) {
	m := &Map{
		Name:   "scan",
		Dir:    t.TempDir(),
		Mapper: pyramid.Mapper{Config: pyramid.Config{X0: 5, Y0: 46, X1: 6, Y1: 45, TileSize: 256, HighestLevel: 8}},
	}
	m.SetLandmarks(nil)
	view := newFakeView(0.25, 0.5)
	ly := NewLayer(view, FileStore{}, inline{})
	ly.Init(m)

	l := ly.AddNewLandmark()
	assert.Nil(t, l.ProjX)
	assert.InDelta(t, 5.25, l.Lon, 1e-12)
	assert.InDelta(t, 45.5, l.Lat, 1e-12)
}

func TestTapAndRemove(t *testing.T) {
	m := newMercatorMap(t)
	m.SetLandmarks(nil)
	view := newFakeView(0.5, 0.5)
	ly := NewLayer(view, FileStore{}, inline{})
	ly.Init(m)
	l := ly.AddNewLandmark()
	require.True(t, ly.Drop(l.ID))

	ly.OnMarkerTap(l.ID)
	assert.Contains(t, view.markers, grabID(l.ID))

	require.True(t, ly.Remove(l.ID))
	assert.Empty(t, view.markers)
	assert.Empty(t, m.Landmarks())
	assert.False(t, ly.Remove(l.ID))

	saved, err := FileStore{}.Load(context.Background(), m.Dir)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestFileStoreMissingAndDelete(t *testing.T) {
	dir := t.TempDir()
	ls, err := FileStore{}.Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Nil(t, ls)

	m := &Map{Dir: dir}
	m.AddLandmark(&Landmark{ID: "x", Lat: 1, Lon: 2})
	require.NoError(t, FileStore{}.Save(context.Background(), dir, m.Snapshot()))
	require.NoError(t, DeleteMap(context.Background(), FileStore{}, m))
	assert.False(t, m.LandmarksDefined())
	_, err = os.Stat(filepath.Join(dir, MarkersFile))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, DeleteMap(context.Background(), FileStore{}, m))
}

type failingStore struct{ FileStore }

func (failingStore) Load(context.Context, string) ([]*Landmark, error) {
	return nil, fmt.Errorf("corrupted markers file")
}

func TestInitLoadFailureDrawsNothing(t *testing.T) {
	m := newMercatorMap(t)
	view := newFakeView(0.5, 0.5)
	ly := NewLayer(view, failingStore{}, inline{})
	ly.Init(m)
	assert.False(t, m.LandmarksDefined())
	assert.Empty(t, view.markers)
}

func TestNewIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New().ID
		assert.False(t, seen[id])
		seen[id] = true
	}
}

// goroutines runs background work on its own goroutines and queues posts for
// the test goroutine, which owns the layer.
type goroutines struct {
	wg    sync.WaitGroup
	posts chan func()
}

func newGoroutines() *goroutines {
	return &goroutines{posts: make(chan func(), 16)}
}

func (g *goroutines) Go(fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn(context.Background())
	}()
}

func (g *goroutines) Post(fn func()) { g.posts <- fn }

func TestConcurrentSavesKeepLastSnapshot(t *testing.T) {
	for i := 0; i < 20; i++ {
		m := newMercatorMap(t)
		m.SetLandmarks(nil)
		sched := newGoroutines()
		ly := NewLayer(newFakeView(0.5, 0.5), FileStore{}, sched)
		ly.Init(m)

		for j := 0; j < 8; j++ {
			l := ly.AddNewLandmark()
			require.True(t, ly.Drop(l.ID))
		}
		sched.wg.Wait()

		saved, err := FileStore{}.Load(context.Background(), m.Dir)
		require.NoError(t, err)
		require.Len(t, saved, 8)
		for j, l := range m.Landmarks() {
			assert.Equal(t, l.ID, saved[j].ID)
		}
		tmps, err := filepath.Glob(filepath.Join(m.Dir, "*.tmp"))
		require.NoError(t, err)
		assert.Empty(t, tmps)
	}
}

// slowStore holds Load until release is closed.
type slowStore struct {
	FileStore
	release chan struct{}
}

func (s slowStore) Load(ctx context.Context, dir string) ([]*Landmark, error) {
	<-s.release
	return s.FileStore.Load(ctx, dir)
}

func TestAddWhileLoading(t *testing.T) {
	m := newMercatorMap(t)
	existing := &Landmark{ID: "bastille", Name: "Bastille", Lat: 45.1990, Lon: 5.7250}
	require.NoError(t, FileStore{}.Save(context.Background(), m.Dir, []Landmark{*existing}))

	store := slowStore{release: make(chan struct{})}
	sched := newGoroutines()
	view := newFakeView(0.5, 0.5)
	ly := NewLayer(view, store, sched)
	ly.Init(m)

	l := ly.AddNewLandmark()
	require.True(t, ly.Drop(l.ID))
	// nothing written before the file is read
	saved, err := FileStore{}.Load(context.Background(), m.Dir)
	require.NoError(t, err)
	require.Len(t, saved, 1)

	close(store.release)
	(<-sched.posts)()
	sched.wg.Wait()

	require.Len(t, m.Landmarks(), 2)
	assert.Equal(t, "bastille", m.Landmarks()[0].ID)
	assert.Equal(t, l.ID, m.Landmarks()[1].ID)
	assert.Contains(t, view.markers, "bastille")
	assert.Contains(t, view.markers, l.ID)

	saved, err = FileStore{}.Load(context.Background(), m.Dir)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "bastille", saved[0].ID)
	assert.Equal(t, l.ID, saved[1].ID)
}

func TestLoadFailureKeepsFile(t *testing.T) {
	m := newMercatorMap(t)
	view := newFakeView(0.5, 0.5)
	ly := NewLayer(view, failingStore{}, inline{})
	ly.Init(m)

	l := ly.AddNewLandmark()
	require.True(t, ly.Drop(l.ID))
	_, err := os.Stat(filepath.Join(m.Dir, MarkersFile))
	assert.True(t, os.IsNotExist(err))
}
