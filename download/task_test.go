package download

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trekme/events"
	"trekme/mapsource"
)

// Grenoble area
var grenoble = orb.Bound{Min: orb.Point{5.60, 45.10}, Max: orb.Point{5.85, 45.25}}

type memProvider struct {
	calls int32
	fail  map[maptile.Tile]error
}

func (p *memProvider) TileStream(_ context.Context, level, col, row int) (io.ReadCloser, error) {
	atomic.AddInt32(&p.calls, 1)
	t := maptile.New(uint32(col), uint32(row), maptile.Zoom(level))
	if err, ok := p.fail[t]; ok {
		return nil, err
	}
	return ioutil.NopCloser(strings.NewReader(tileText(t))), nil
}

func TestRequest(t *testing.T) {
	r := Request{Source: mapsource.OpenStreetMap, Bound: grenoble, MinLevel: 0, MaxLevel: 12}
	require.NoError(t, r.Validate())
	assert.Equal(t, int64(1), r.Count(0))
	for z := 1; z <= 12; z++ {
		tl, br := r.Range(z)
		assert.Equal(t, maptile.At(orb.Point{5.60, 45.25}, maptile.Zoom(z)), tl)
		assert.Equal(t, maptile.At(orb.Point{5.85, 45.10}, maptile.Zoom(z)), br)
	}
	var total int64
	for z := 0; z <= 12; z++ {
		total += r.Count(z)
	}
	assert.Equal(t, total, r.Total())

	world := Request{Bound: orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}, MinLevel: 2, MaxLevel: 2}
	assert.Equal(t, int64(16), world.Count(2))
}

func TestRequestValidate(t *testing.T) {
	for _, r := range []Request{
		{Bound: grenoble, MinLevel: 5, MaxLevel: 3},
		{Bound: grenoble, MinLevel: 0, MaxLevel: 19},
		{Bound: orb.Bound{}, MinLevel: 1, MaxLevel: 2},
	} {
		assert.ErrorIs(t, r.Validate(), ErrInvalidRequest)
	}
}

func TestRunMBTiles(t *testing.T) {
	req := Request{Source: mapsource.USGS, Bound: grenoble, MinLevel: 8, MaxLevel: 11}
	p := &memProvider{}
	status := make(chan events.DownloadServiceStatusEvent, 2)
	file := filepath.Join(t.TempDir(), "grenoble.mbtiles")
	task, err := NewTask(req, p, Options{File: file, Workers: 4, Status: status})
	require.NoError(t, err)

	require.NoError(t, task.Run(context.Background()))
	require.NoError(t, task.Close())

	assert.Equal(t, req.Total(), int64(atomic.LoadInt32(&p.calls)))
	assert.Equal(t, req.Total(), task.Current())
	assert.Equal(t, int64(0), task.Failed())
	assert.Equal(t, events.DownloadServiceStatusEvent{Started: true}, <-status)
	assert.Equal(t, events.DownloadServiceStatusEvent{Started: false}, <-status)

	db, err := sql.Open("sqlite3", file)
	require.NoError(t, err)
	defer db.Close()
	var n int64
	require.NoError(t, db.QueryRow("select count(*) from tiles;").Scan(&n))
	assert.Equal(t, req.Total(), n)

	// rows are stored flipped (TMS)
	tl, _ := req.Range(8)
	var data []byte
	require.NoError(t, db.QueryRow("select tile_data from tiles where zoom_level = 8 and tile_column = ? and tile_row = ?;",
		tl.X, (1<<8)-1-tl.Y).Scan(&data))
	assert.Equal(t, tileText(tl), string(data))

	var maxzoom string
	require.NoError(t, db.QueryRow("select value from metadata where name = 'maxzoom';").Scan(&maxzoom))
	assert.Equal(t, "11", maxzoom)
}

func TestRunFilesAndFailures(t *testing.T) {
	req := Request{Source: mapsource.OpenStreetMap, Bound: grenoble, MinLevel: 12, MaxLevel: 12}
	tl, br := req.Range(12)
	require.Greater(t, req.Count(12), int64(2))
	p := &memProvider{fail: map[maptile.Tile]error{
		tl: errors.New("connection reset"),
		br: mapsource.ErrTileNotFound,
	}}
	dir := filepath.Join(t.TempDir(), "tiles")
	task, err := NewTask(req, p, Options{Format: FILES, File: dir})
	require.NoError(t, err)
	require.NoError(t, task.Run(context.Background()))
	require.NoError(t, task.Close())

	assert.Equal(t, int64(1), task.Failed(), "missing tiles are not failures")
	assert.Equal(t, req.Count(12), task.Current())
	data, err := ioutil.ReadFile(filepath.Join(dir, "12", itoa(tl.X+1), itoa(tl.Y)+".png"))
	require.NoError(t, err)
	assert.Equal(t, tileText(maptile.New(tl.X+1, tl.Y, 12)), string(data))
	_, err = os.Stat(filepath.Join(dir, "12", itoa(tl.X), itoa(tl.Y)+".png"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunHTTP(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, mapsource.UserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("\x89PNG\r\n\x1a\n" + r.URL.Path))
	}))
	defer srv.Close()

	v := viper.New()
	v.Set("source.osm.url", srv.URL+"/{z}/{x}/{y}.png")
	provider, err := mapsource.NewTileStreamProvider(mapsource.OpenStreetMap, mapsource.NewSettings(v))
	require.NoError(t, err)

	req := Request{Source: mapsource.OpenStreetMap, Bound: grenoble, MinLevel: 1, MaxLevel: 3}
	file := filepath.Join(t.TempDir(), "osm.mbtiles")
	task, err := NewTask(req, provider, Options{File: file})
	require.NoError(t, err)
	require.NoError(t, task.Run(context.Background()))
	require.NoError(t, task.Close())
	assert.Equal(t, req.Total(), int64(atomic.LoadInt32(&hits)))

	db, err := sql.Open("sqlite3", file)
	require.NoError(t, err)
	defer db.Close()
	var data []byte
	require.NoError(t, db.QueryRow("select tile_data from tiles where zoom_level = 1;").Scan(&data))
	assert.Equal(t, "\x89PNG\r\n\x1a\n/1/1/0.png", string(data))
}

type blockingProvider struct {
	started chan struct{}
	once    int32
}

func (p *blockingProvider) TileStream(ctx context.Context, _, _, _ int) (io.ReadCloser, error) {
	if atomic.CompareAndSwapInt32(&p.once, 0, 1) {
		close(p.started)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAbort(t *testing.T) {
	req := Request{Source: mapsource.SwissTopo, Bound: grenoble, MinLevel: 12, MaxLevel: 14}
	p := &blockingProvider{started: make(chan struct{})}
	task, err := NewTask(req, p, Options{File: filepath.Join(t.TempDir(), "a.mbtiles"), Workers: 2})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- task.Run(context.Background()) }()
	<-p.started
	task.Abort()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("task did not stop")
	}
	assert.Less(t, task.Current(), req.Total())
	assert.NoError(t, task.Close())
	// pause and resume return once the task is over
	task.Pause()
	task.Resume()
}

func TestPauseResume(t *testing.T) {
	req := Request{Source: mapsource.USGS, Bound: grenoble, MinLevel: 9, MaxLevel: 11}
	p := &memProvider{}
	task, err := NewTask(req, p, Options{File: filepath.Join(t.TempDir(), "p.mbtiles"), Workers: 1})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- task.Run(context.Background()) }()
	task.Pause()
	task.Resume()
	require.NoError(t, <-errCh)
	assert.Equal(t, req.Total(), int64(atomic.LoadInt32(&p.calls)))
	assert.NoError(t, task.Close())
}

func TestFlipY(t *testing.T) {
	assert.Equal(t, uint32(0), Tile{T: maptile.New(0, 0, 0)}.flipY())
	assert.Equal(t, uint32(5), Tile{T: maptile.New(1, 2, 3)}.flipY())
	assert.Equal(t, uint32(0), Tile{T: maptile.New(1, 7, 3)}.flipY())
}

func tileText(t maptile.Tile) string {
	return fmt.Sprintf("tile %d/%d/%d", t.Z, t.X, t.Y)
}

func itoa(v uint32) string {
	return strconv.Itoa(int(v))
}
