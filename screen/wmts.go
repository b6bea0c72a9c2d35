package screen

import (
	"context"
	"errors"
	"io"
	"math"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	"trekme/download"
	"trekme/events"
	"trekme/license"
	"trekme/mapsource"
	"trekme/pyramid"
)

// Errors returned by ValidateArea.
var (
	ErrNotConfigured   = errors.New("no map view")
	ErrLicenseRequired = errors.New("IGN license not purchased")
)

// state of the screen: either unconfigured or showing a map view.
type state interface {
	isState()
}

type unconfigured struct{}

type configured struct {
	mapView  MapView
	provider mapsource.TileStreamProvider
}

func (unconfigured) isState() {}
func (configured) isState()   {}

// Area is a rectangle selected on the map, in relative coordinates.
type Area struct {
	X1, Y1 float64
	X2, Y2 float64
}

// Config gathers the collaborators of a WmtsScreen.
type Config struct {
	Source   mapsource.Source
	Settings *mapsource.Settings
	View     View
	Events   Events
	// NewProvider defaults to mapsource.NewTileStreamProvider.
	NewProvider func(mapsource.Source, *mapsource.Settings) (mapsource.TileStreamProvider, error)
	// Billing enables the license checks of IGN. LicenseStore is optional.
	Billing      license.Billing
	LicenseStore license.Store
}

// WmtsScreen displays a Google Maps compatible tile matrix set, such as the
// IGN or USGS WMTS. Level 18 is 262144 tiles wide, a 67108864 px square whose
// top left corner is (-20037508.34, 20037508.34) in Web Mercator.
type WmtsScreen struct {
	cfg     Config
	mapper  pyramid.Mapper
	scope   *Scope
	logger  *log.Entry
	machine *license.Machine

	// owner goroutine only
	state   state
	status  license.Status
	details *license.Details
}

// NewWmtsScreen returns a screen living until parent is done or Close.
func NewWmtsScreen(parent context.Context, cfg Config) *WmtsScreen {
	if cfg.Settings == nil {
		cfg.Settings = mapsource.NewSettings(nil)
	}
	if cfg.NewProvider == nil {
		cfg.NewProvider = mapsource.NewTileStreamProvider
	}
	w := &WmtsScreen{
		cfg:    cfg,
		mapper: pyramid.NewMercatorMapper(),
		scope:  NewScope(parent),
		logger: log.WithFields(log.Fields{"screen": "wmts", "source": cfg.Source}),
		state:  unconfigured{},
	}
	if cfg.Source == mapsource.IGN && cfg.Billing != nil {
		w.machine = license.NewMachine(cfg.Billing, cfg.LicenseStore, licenseObserver{w}, license.WithRunner(w.scope))
	}
	return w
}

// Run is the owner loop. It returns once the screen is closed.
func (w *WmtsScreen) Run() error {
	release, err := w.scope.Own()
	if err != nil {
		return err
	}
	defer release()
	ctx := w.scope.Context()
	w.configure()
	w.checkLicense()
	for {
		select {
		case fn := <-w.scope.Posts():
			fn()
		case e := <-w.cfg.Events.DownloadStatus:
			w.onDownloadStatus(e)
		case e := <-w.cfg.Events.LayerSelect:
			w.onLayerSelected(e)
		case e := <-w.cfg.Events.Location:
			w.onLocation(e)
		case <-ctx.Done():
			w.removeMapView()
			return ctx.Err()
		}
	}
}

// Close tears the screen down, cancelling all outstanding work. Once it
// returns the view is no longer touched.
func (w *WmtsScreen) Close() {
	w.scope.Close()
}

func (w *WmtsScreen) configure() {
	w.checkTileAccessibility()

	provider, err := w.cfg.NewProvider(w.cfg.Source, w.cfg.Settings)
	if err != nil {
		w.logger.Warnf("no tile provider: %s", err)
		w.showWarning()
		return
	}
	w.addMapView(provider)

	if ss, ok := w.cfg.Settings.ScaleAndScroll(w.cfg.Source); ok {
		w.state.(configured).mapView.SetScaleAndScroll(ss)
	}
}

// checkTileAccessibility probes the source in the background and shows the
// warning when no tile can be fetched.
func (w *WmtsScreen) checkTileAccessibility() {
	src, settings, newProvider := w.cfg.Source, w.cfg.Settings, w.cfg.NewProvider
	w.scope.Go(func(ctx context.Context) {
		ok := false
		if provider, err := newProvider(src, settings); err == nil {
			ok = mapsource.CheckAccessibility(ctx, provider, src)
			closeProvider(provider)
		}
		w.scope.Post(func() {
			if ok {
				w.cfg.View.HideWarning()
			} else {
				w.showWarning()
			}
		})
	})
}

func (w *WmtsScreen) showWarning() {
	w.cfg.View.ShowWarning(Warning{
		Source:      w.cfg.Source,
		Credentials: w.cfg.Source == mapsource.IGN,
	})
}

func (w *WmtsScreen) addMapView(provider mapsource.TileStreamProvider) {
	mv := w.cfg.View.AddMapView(newMapViewConfig(w.mapper.Config, w.cfg.Source, provider))
	c := w.mapper.Config
	mv.DefineBounds(c.X0, c.Y0, c.X1, c.Y1)
	mv.AddMarker(PositionMarker, 0, 0)
	w.state = configured{mapView: mv, provider: provider}
}

func (w *WmtsScreen) removeMapView() {
	if c, ok := w.state.(configured); ok {
		w.cfg.View.RemoveMapView(c.mapView)
		closeProvider(c.provider)
	}
	w.state = unconfigured{}
}

func (w *WmtsScreen) onDownloadStatus(e events.DownloadServiceStatusEvent) {
	if e.Started {
		w.cfg.View.Snackbar(MsgDownloadConfirm)
	}
}

func (w *WmtsScreen) onLayerSelected(e events.LayerSelectEvent) {
	if err := w.cfg.Settings.SetLayerPublicName(w.cfg.Source, e.Selection); err != nil {
		w.logger.Warnf("layer %q: %s", e.Selection, err)
		return
	}
	w.removeMapView()
	w.configure()
}

func (w *WmtsScreen) onLocation(e events.LocationEvent) {
	if _, ok := w.state.(configured); !ok {
		return
	}
	mapper := w.mapper
	w.scope.Go(func(context.Context) {
		x, y, ok := mapper.ProjectGeo(e.Lat, e.Lon)
		if !ok {
			return
		}
		w.scope.Post(func() {
			// the map view may have been replaced meanwhile
			if c, ok := w.state.(configured); ok {
				c.mapView.MoveMarker(PositionMarker, x, y)
			}
		})
	})
}

// NavigateToIgnCredentials asks for the IGN credentials settings. Safe from
// any goroutine.
func (w *WmtsScreen) NavigateToIgnCredentials() {
	if w.cfg.Events.SourceSettings == nil {
		return
	}
	select {
	case w.cfg.Events.SourceSettings <- events.MapSourceSettingsEvent{Source: mapsource.IGN.String()}:
	default:
		w.logger.Warn("map source settings event dropped")
	}
}

// ValidateArea turns the selected area into a download request. IGN areas
// require the license. It must not be called from the owner goroutine.
func (w *WmtsScreen) ValidateArea(area Area, minLevel, maxLevel int) (download.Request, error) {
	type result struct {
		req download.Request
		err error
	}
	ch := make(chan result, 1)
	w.scope.Post(func() {
		req, err := w.validateArea(area, minLevel, maxLevel)
		ch <- result{req, err}
	})
	select {
	case r := <-ch:
		return r.req, r.err
	case <-w.scope.Context().Done():
		return download.Request{}, w.scope.Context().Err()
	}
}

func (w *WmtsScreen) validateArea(area Area, minLevel, maxLevel int) (download.Request, error) {
	if _, ok := w.state.(configured); !ok {
		return download.Request{}, ErrNotConfigured
	}
	if w.cfg.Source == mapsource.IGN && w.status != license.Purchased {
		return download.Request{}, ErrLicenseRequired
	}
	p1 := w.mapper.Locate(area.X1, area.Y1)
	p2 := w.mapper.Locate(area.X2, area.Y2)
	req := download.Request{
		Source: w.cfg.Source,
		Bound: orb.Bound{
			Min: orb.Point{math.Min(p1.Lon, p2.Lon), math.Min(p1.Lat, p2.Lat)},
			Max: orb.Point{math.Max(p1.Lon, p2.Lon), math.Max(p1.Lat, p2.Lat)},
		},
		MinLevel: minLevel,
		MaxLevel: maxLevel,
	}
	return req, req.Validate()
}

func closeProvider(p mapsource.TileStreamProvider) {
	if c, ok := p.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warnf("close tile provider: %s", err)
		}
	}
}
