package screen

import (
	"trekme/events"
	"trekme/mapsource"
	"trekme/pyramid"
)

// PositionMarker is the id of the marker following the location fixes.
const PositionMarker = "position"

// Snackbar messages.
const (
	MsgDownloadConfirm    = "download_confirm"
	MsgBillingUnsupported = "billing_unsupported"
)

// Warning is shown when tiles of the source cannot be fetched.
type Warning struct {
	Source mapsource.Source
	// Credentials offers to edit the IGN credentials.
	Credentials bool
}

// MapViewConfig configures the tile renderer.
type MapViewConfig struct {
	Levels   int
	Width    int
	Height   int
	TileSize int
	Workers  int
	Provider mapsource.TileStreamProvider
}

// newMapViewConfig sizes the renderer after the most detailed level of p.
func newMapViewConfig(p pyramid.Config, src mapsource.Source, provider mapsource.TileStreamProvider) MapViewConfig {
	return MapViewConfig{
		Levels:   p.LevelCount(),
		Width:    p.PixelExtent(),
		Height:   p.PixelExtent(),
		TileSize: p.TileSize,
		Workers:  src.TileMap().Workers,
		Provider: provider,
	}
}

// MapView is the tile renderer. Marker positions are in the coordinates given
// to DefineBounds.
type MapView interface {
	DefineBounds(x0, y0, x1, y1 float64)
	AddMarker(id string, x, y float64)
	MoveMarker(id string, x, y float64)
	SetScaleAndScroll(mapsource.ScaleAndScroll)
}

// View is the screen as drawn by the UI toolkit. It is only called from the
// owner goroutine.
type View interface {
	ShowWarning(Warning)
	HideWarning()
	AddMapView(MapViewConfig) MapView
	RemoveMapView(MapView)
	Snackbar(msg string)
}

// Events are the channels the screen listens to and publishes on. Nil
// channels are never selected.
type Events struct {
	DownloadStatus <-chan events.DownloadServiceStatusEvent
	LayerSelect    <-chan events.LayerSelectEvent
	Location       <-chan events.LocationEvent
	SourceSettings chan<- events.MapSourceSettingsEvent
}
