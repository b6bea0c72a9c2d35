package download

import (
	"math"

	"github.com/paulmach/orb/maptile"
)

// TileSize is the default tile size in pixels.
const TileSize = 256

// ZoomMin is the lowest level.
const ZoomMin = 0

// ZoomMax is the highest level.
const ZoomMax = 18

// Tile is a fetched tile waiting to be saved.
type Tile struct {
	T maptile.Tile
	C []byte
}

// flipY returns the TMS row of the tile, as MBTiles stores them.
func (tile Tile) flipY() uint32 {
	zpower := math.Pow(2.0, float64(tile.T.Z))
	return uint32(zpower) - 1 - tile.T.Y
}

// Output formats
const (
	MBTILES = "mbtiles"
	FILES   = "files"
)
