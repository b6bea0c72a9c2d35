package download

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
	pb "gopkg.in/cheggaaa/pb.v1"

	"trekme/events"
	"trekme/mapsource"
)

// Options tune a Task.
type Options struct {
	// Format is MBTILES (default) or FILES.
	Format string
	// Directory receives the output; File overrides the MBTiles path.
	Directory string
	File      string
	Workers   int
	SavePipe  int
	Buffer    int
	// Progress shows progress bars on stdout.
	Progress bool
	// Status receives start and stop notifications. Sends never block; they
	// are dropped when nobody listens.
	Status chan<- events.DownloadServiceStatusEvent
}

// Task downloads the tiles of a request.
type Task struct {
	ID       string
	Request  Request
	File     string
	Total    int64
	Bar      *pb.ProgressBar
	db       *sql.DB
	provider mapsource.TileStreamProvider
	opts     Options
	wg       sync.WaitGroup
	current  int64
	failed   int64

	pause, play chan struct{}
	done        chan struct{}
	cancelMu    sync.Mutex
	cancel      context.CancelFunc
	workers     chan maptile.Tile
	savingpipe  chan Tile
	saved       chan struct{}
}

// NewTask prepares the output of req.
func NewTask(req Request, provider mapsource.TileStreamProvider, opts Options) (*Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, errors.New("no tile provider")
	}
	id, err := shortid.Generate()
	if err != nil {
		return nil, err
	}
	if opts.Format == "" {
		opts.Format = MBTILES
	}
	if opts.Workers <= 0 {
		opts.Workers = req.Source.TileMap().Workers
	}
	if opts.SavePipe <= 0 {
		opts.SavePipe = 1
	}
	if opts.Directory == "" {
		opts.Directory = "output"
	}

	task := &Task{
		ID:       id,
		Request:  req,
		Total:    req.Total(),
		provider: provider,
		opts:     opts,
		File:     opts.File,
	}
	if task.File == "" {
		name := task.ID + "." + req.Source.String()
		if opts.Format == MBTILES {
			name += ".mbtiles"
		}
		task.File = filepath.Join(opts.Directory, name)
	}
	task.pause = make(chan struct{})
	task.play = make(chan struct{})
	task.done = make(chan struct{})
	task.workers = make(chan maptile.Tile, opts.Workers)
	task.savingpipe = make(chan Tile, opts.SavePipe)
	task.saved = make(chan struct{})
	return task, nil
}

// MetaItems returns the MBTiles metadata of the task.
func (task *Task) MetaItems() map[string]string {
	b := task.Request.Bound
	c := b.Center()
	tm := task.Request.Source.TileMap()
	return map[string]string{
		"id":          task.ID,
		"name":        tm.Name,
		"description": tm.Description,
		"format":      tm.Format,
		"type":        "baselayer",
		"pixel_scale": strconv.Itoa(TileSize),
		"version":     MBTileVersion,
		"bounds":      fmt.Sprintf(`%f,%f,%f,%f`, b.Left(), b.Bottom(), b.Right(), b.Top()),
		"center":      fmt.Sprintf(`%f,%f,%d`, c.X(), c.Y(), (task.Request.MinLevel+task.Request.MaxLevel)/2),
		"minzoom":     strconv.Itoa(task.Request.MinLevel),
		"maxzoom":     strconv.Itoa(task.Request.MaxLevel),
	}
}

// Current is the number of tiles handled so far.
func (task *Task) Current() int64 {
	return atomic.LoadInt64(&task.current)
}

// Failed is the number of tiles that could not be fetched or saved.
func (task *Task) Failed() int64 {
	return atomic.LoadInt64(&task.failed)
}

// Abort stops the task; Run returns context.Canceled.
func (task *Task) Abort() {
	task.cancelMu.Lock()
	defer task.cancelMu.Unlock()
	if task.cancel != nil {
		task.cancel()
	}
}

// Pause suspends the dispatch of tiles until Resume.
func (task *Task) Pause() {
	select {
	case task.pause <- struct{}{}:
	case <-task.done:
	}
}

// Resume restarts a paused task.
func (task *Task) Resume() {
	select {
	case task.play <- struct{}{}:
	case <-task.done:
	}
}

func (task *Task) notify(started bool) {
	if task.opts.Status == nil {
		return
	}
	select {
	case task.opts.Status <- events.DownloadServiceStatusEvent{Started: started}:
	default:
		log.Debugf("task %s: status event dropped", task.ID)
	}
}

// savePipe writes fetched tiles, one at a time.
func (task *Task) savePipe() {
	defer close(task.saved)
	for tile := range task.savingpipe {
		var err error
		if task.opts.Format == MBTILES {
			err = saveToMBTile(tile, task.db)
		} else {
			err = saveToFiles(tile, task.File, task.Request.Source.TileMap().Format)
		}
		if err != nil {
			atomic.AddInt64(&task.failed, 1)
			log.Errorf("save %v tile error ~ %s", tile.T, err)
		}
	}
}

// tileFetcher fetches one tile and hands it to the save pipe.
func (task *Task) tileFetcher(ctx context.Context, t maptile.Tile) {
	defer task.wg.Done()
	defer func() {
		<-task.workers
	}()
	defer atomic.AddInt64(&task.current, 1)
	start := time.Now()
	rc, err := task.provider.TileStream(ctx, int(t.Z), int(t.X), int(t.Y))
	if err != nil {
		if !errors.Is(err, mapsource.ErrTileNotFound) && ctx.Err() == nil {
			atomic.AddInt64(&task.failed, 1)
			log.Errorf("fetch %v tile error, details: %s ~", t, err)
		}
		return
	}
	defer rc.Close()
	body, err := ioutil.ReadAll(rc)
	if err != nil {
		atomic.AddInt64(&task.failed, 1)
		log.Errorf("read %v tile error ~ %s", t, err)
		return
	}
	if len(body) == 0 {
		log.Warnf("nil tile %v ~", t)
		return
	}
	select {
	case task.savingpipe <- Tile{T: t, C: body}:
	case <-ctx.Done():
		return
	}
	log.Debugf("tile %v, %.3fs, %.2f kb", t, time.Since(start).Seconds(), float32(len(body))/1024.0)
}

// dispatch hands tile to a fetcher once a worker is free, holding it while
// the task is paused. It returns false when the task is canceled.
func (task *Task) dispatch(ctx context.Context, tile maptile.Tile) bool {
	for {
		select {
		case task.workers <- tile:
			task.wg.Add(1)
			go task.tileFetcher(ctx, tile)
			return true
		case <-ctx.Done():
			return false
		case <-task.pause:
			log.Infof("task %s suspended.", task.ID)
			select {
			case <-task.play:
				log.Infof("task %s go on.", task.ID)
			case <-ctx.Done():
				return false
			}
		}
	}
}

// downloadLevel fetches every tile of one level.
func (task *Task) downloadLevel(ctx context.Context, level int) {
	var bar *pb.ProgressBar
	if task.opts.Progress {
		bar = pb.New64(task.Request.Count(level)).Prefix(fmt.Sprintf("Zoom %d : ", level))
		bar.Start()
	}

	var tilelist = make(chan maptile.Tile, task.opts.Buffer)
	go func() {
		defer close(tilelist)
		task.Request.tiles(ctx, level, tilelist)
	}()

	canceled := false
	for tile := range tilelist {
		if canceled {
			continue
		}
		if !task.dispatch(ctx, tile) {
			log.Infof("task %s got canceled.", task.ID)
			canceled = true
			continue
		}
		if bar != nil {
			bar.Increment()
			task.Bar.Increment()
		}
	}
	task.wg.Wait()
	if bar != nil {
		bar.FinishPrint(fmt.Sprintf("Task %s zoom %d finished ~", task.ID, level))
	}
}

// Run downloads every level and waits for the save pipe to drain.
func (task *Task) Run(ctx context.Context) error {
	defer close(task.done)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	task.cancelMu.Lock()
	task.cancel = cancel
	task.cancelMu.Unlock()

	if task.opts.Format == MBTILES {
		if err := os.MkdirAll(filepath.Dir(task.File), os.ModePerm); err != nil {
			return err
		}
		db, err := setupMBTiles(task.File, task.MetaItems())
		if err != nil {
			return fmt.Errorf("setup mbtiles %s: %w", task.File, err)
		}
		task.db = db
	}

	task.notify(true)
	defer task.notify(false)

	if task.opts.Progress {
		task.Bar = pb.New64(task.Total).Prefix("Task : ")
		task.Bar.Start()
	}
	go task.savePipe()
	for z := task.Request.MinLevel; z <= task.Request.MaxLevel; z++ {
		if ctx.Err() != nil {
			break
		}
		task.downloadLevel(ctx, z)
	}
	close(task.savingpipe)
	<-task.saved
	if task.Bar != nil {
		task.Bar.FinishPrint(fmt.Sprintf("task %s finished ~", task.ID))
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if task.db != nil {
		if err := optimizeDatabase(task.db); err != nil {
			log.Warnf("optimize %s: %s", task.File, err)
		}
	}
	if n := task.Failed(); n > 0 {
		log.Warnf("task %s: %d of %d tiles failed", task.ID, n, task.Total)
	}
	return nil
}

// Close releases the output database and the provider.
func (task *Task) Close() error {
	var result error
	if task.db != nil {
		if err := task.db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close mbtiles db: %w", err))
		}
		task.db = nil
	}
	if c, ok := task.provider.(io.Closer); ok {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close provider: %w", err))
		}
	}
	return result
}
