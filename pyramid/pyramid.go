// Package pyramid describes a square tile pyramid calibrated in projected
// coordinates, and maps positions between geographic, projected, relative and
// pixel space.
//
// The Google Maps compatible tile matrix set served by IGN WMTS (and by USGS
// under the "GoogleMapsCompatible" identifier) is square at every level. At
// identifier 18 a GetCapabilities request reports:
//
//	<TileMatrix>
//	  <ows:Identifier>18</ows:Identifier>
//	  <TopLeftCorner>-20037508.3427892476320267 20037508.3427892476320267</TopLeftCorner>
//	  <TileWidth>256</TileWidth>
//	  <MatrixWidth>262144</MatrixWidth>
//	</TileMatrix>
//
// so that level is 256 * 262144 = 67108864 px wide. Identifier 18 is the 19th
// level since the matrix set starts at 0. The bottom right corner has the
// opposite coordinates of the top left one.
package pyramid

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb/maptile"
)

// DefaultTileSize is the edge of a tile, in pixels.
const DefaultTileSize = 256

// DefaultHighestLevel is the index of the most detailed level.
const DefaultHighestLevel = 18

const mercatorCorner = -20037508.3427892476320267

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid tile pyramid")

// Config is an immutable tile pyramid calibration. (X0, Y0) is the top left
// corner and (X1, Y1) the bottom right one, in projected units.
type Config struct {
	X0, Y0       float64
	X1, Y1       float64
	TileSize     int
	HighestLevel int
}

// GoogleMapsCompatible returns the global Web Mercator pyramid.
func GoogleMapsCompatible() Config {
	return Config{
		X0:           mercatorCorner,
		Y0:           -mercatorCorner,
		X1:           -mercatorCorner,
		Y1:           mercatorCorner,
		TileSize:     DefaultTileSize,
		HighestLevel: DefaultHighestLevel,
	}
}

// Validate checks the pyramid is square with a power-of-two tile size.
func (c Config) Validate() error {
	if c.TileSize <= 0 || c.TileSize&(c.TileSize-1) != 0 {
		return fmt.Errorf("%w: tile size %d is not a power of two", ErrInvalidConfig, c.TileSize)
	}
	if c.HighestLevel < 0 || c.HighestLevel > 30 {
		return fmt.Errorf("%w: highest level %d out of range", ErrInvalidConfig, c.HighestLevel)
	}
	w, h := math.Abs(c.X1-c.X0), math.Abs(c.Y1-c.Y0)
	if w == 0 || h == 0 {
		return fmt.Errorf("%w: empty bounding box", ErrInvalidConfig)
	}
	if math.Abs(w-h) > 1e-6*math.Max(w, h) {
		return fmt.Errorf("%w: %fx%f is not square", ErrInvalidConfig, w, h)
	}
	return nil
}

// LevelCount is the number of levels, from 0 to HighestLevel.
func (c Config) LevelCount() int {
	return c.HighestLevel + 1
}

// PixelExtent is the width (and height) in pixels of the most detailed level.
func (c Config) PixelExtent() int {
	return c.LevelExtent(c.HighestLevel)
}

// PyramidPixelExtent is TileSize * 2^(HighestLevel+1), twice PixelExtent.
func (c Config) PyramidPixelExtent() int {
	return c.TileSize << uint(c.HighestLevel+1)
}

// LevelExtent is the width in pixels of the given level.
func (c Config) LevelExtent(level int) int {
	return c.TileSize << uint(level)
}

// ToRelative maps a projected coordinate into the unit square, (X0, Y0)
// mapping to (0, 0) and (X1, Y1) to (1, 1).
func (c Config) ToRelative(x, y float64) (float64, float64) {
	return (x - c.X0) / (c.X1 - c.X0), (y - c.Y0) / (c.Y1 - c.Y0)
}

// FromRelative is the inverse of ToRelative.
func (c Config) FromRelative(rx, ry float64) (float64, float64) {
	return c.X0 + rx*(c.X1-c.X0), c.Y0 + ry*(c.Y1-c.Y0)
}

// ToPixel returns the pixel position of a projected coordinate at level.
func (c Config) ToPixel(x, y float64, level int) (float64, float64) {
	rx, ry := c.ToRelative(x, y)
	extent := float64(c.LevelExtent(level))
	return rx * extent, ry * extent
}

// TileAt returns the tile containing a projected coordinate at level.
// Coordinates outside the pyramid are clamped to the border tiles.
func (c Config) TileAt(x, y float64, level int) maptile.Tile {
	rx, ry := c.ToRelative(x, y)
	n := float64(uint32(1) << uint(level))
	col := clamp(math.Floor(rx*n), 0, n-1)
	row := clamp(math.Floor(ry*n), 0, n-1)
	return maptile.New(uint32(col), uint32(row), maptile.Zoom(level))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
