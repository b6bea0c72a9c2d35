// Package download fetches the tiles covering an area of a map source for a
// range of levels and stores them in an MBTiles file or a directory tree.
package download

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"trekme/mapsource"
	"trekme/projection"
)

// ErrInvalidRequest is returned for empty areas and bad level ranges.
var ErrInvalidRequest = errors.New("invalid download request")

// Request describes the area to download. Bound is in lon/lat.
type Request struct {
	Source   mapsource.Source
	Bound    orb.Bound
	MinLevel int
	MaxLevel int
}

// Validate checks the level range and the area.
func (r Request) Validate() error {
	if r.MinLevel < ZoomMin || r.MaxLevel > ZoomMax || r.MinLevel > r.MaxLevel {
		return fmt.Errorf("%w: levels %d-%d", ErrInvalidRequest, r.MinLevel, r.MaxLevel)
	}
	if r.Bound.IsEmpty() || r.Bound.IsZero() {
		return fmt.Errorf("%w: empty area", ErrInvalidRequest)
	}
	return nil
}

// Range returns the top left and bottom right tiles of the area at level.
func (r Request) Range(level int) (maptile.Tile, maptile.Tile) {
	z := maptile.Zoom(level)
	max := uint32(1)<<uint(level) - 1
	at := func(lon, lat float64) maptile.Tile {
		lat = math.Max(-projection.MaxLatitude, math.Min(projection.MaxLatitude, lat))
		t := maptile.At(orb.Point{lon, lat}, z)
		if t.X > max {
			t.X = max
		}
		if t.Y > max {
			t.Y = max
		}
		return t
	}
	return at(r.Bound.Left(), r.Bound.Top()), at(r.Bound.Right(), r.Bound.Bottom())
}

// Count is the number of tiles of the area at level.
func (r Request) Count(level int) int64 {
	tl, br := r.Range(level)
	return int64(br.X-tl.X+1) * int64(br.Y-tl.Y+1)
}

// Total is the number of tiles of the request.
func (r Request) Total() int64 {
	var total int64
	for z := r.MinLevel; z <= r.MaxLevel; z++ {
		total += r.Count(z)
	}
	return total
}

// tiles sends the tiles of the area at level to ch, row by row.
func (r Request) tiles(ctx context.Context, level int, ch chan<- maptile.Tile) {
	tl, br := r.Range(level)
	for y := tl.Y; y <= br.Y; y++ {
		for x := tl.X; x <= br.X; x++ {
			select {
			case ch <- maptile.New(x, y, tl.Z):
			case <-ctx.Done():
				return
			}
		}
	}
}
