// Package mapsource lists the WMTS map sources the application can display,
// builds tile stream providers for them and probes their accessibility.
package mapsource

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Source identifies a WMTS map source.
type Source int

// Known map sources.
const (
	IGN Source = iota
	IGNSpain
	USGS
	OpenStreetMap
	SwissTopo
)

// Sources lists every known source, in menu order.
var Sources = []Source{IGN, IGNSpain, USGS, OpenStreetMap, SwissTopo}

// UserAgent is sent to servers whose usage policy requires one.
const UserAgent = "TrekMe/3 (+https://github.com/peterLaurence/TrekMe)"

// probe kinds
const (
	probeAnyBytes = iota
	probeImage
)

// TileMap describes how to fetch the tiles of a source.
type TileMap struct {
	Key         string
	Name        string
	Description string
	Format      string
	URL         string
	Header      map[string]string
	// Workers bounds the concurrent tile fetches of a map view.
	Workers int
	// BasicAuth sources need IGN credentials.
	BasicAuth bool
	// ProbeAt and ProbeLevel select the tile fetched by accessibility checks;
	// it must lie inside the source coverage.
	ProbeAt    orb.Point
	ProbeLevel maptile.Zoom
	probe      int
}

var tileMaps = map[Source]TileMap{
	IGN: {
		Key:         "ign",
		Name:        "IGN",
		Description: "IGN France WMTS (Géoportail)",
		Format:      "jpg",
		URL:         "https://wxs.ign.fr/{apikey}/geoportail/wmts?SERVICE=WMTS&REQUEST=GetTile&VERSION=1.0.0&LAYER={layer}&STYLE=normal&FORMAT=image/jpeg&TILEMATRIXSET=PM&TILEMATRIX={z}&TILEROW={y}&TILECOL={x}",
		Workers:     16,
		BasicAuth:   true,
		ProbeAt:     orb.Point{2.3522, 48.8566},
		ProbeLevel:  6,
		probe:       probeImage,
	},
	IGNSpain: {
		Key:         "ign-spain",
		Name:        "IGN Spain",
		Description: "Instituto Geográfico Nacional, Mapa Topográfico Nacional",
		Format:      "jpg",
		URL:         "https://www.ign.es/wmts/mapa-raster?Layer=MTN&Style=normal&Tilematrixset=GoogleMapsCompatible&Service=WMTS&Request=GetTile&Version=1.0.0&Format=image/jpeg&TileMatrix={z}&TileCol={x}&TileRow={y}",
		Workers:     16,
		ProbeAt:     orb.Point{-3.7038, 40.4168},
		ProbeLevel:  6,
	},
	USGS: {
		Key:         "usgs",
		Name:        "USGS",
		Description: "USGS National Map topographic basemap",
		Format:      "jpg",
		URL:         "https://basemap.nationalmap.gov/arcgis/rest/services/USGSTopo/MapServer/WMTS/tile/1.0.0/USGSTopo/default/GoogleMapsCompatible/{z}/{y}/{x}",
		Workers:     16,
		ProbeAt:     orb.Point{-100, 40},
		ProbeLevel:  3,
	},
	OpenStreetMap: {
		Key:         "osm",
		Name:        "OpenStreetMap",
		Description: "OpenStreetMap standard tile layer",
		Format:      "png",
		URL:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		Header:      map[string]string{"User-Agent": UserAgent},
		// limit concurrency to comply with the tile usage policy
		Workers:    2,
		ProbeAt:    orb.Point{0, 0},
		ProbeLevel: 1,
	},
	SwissTopo: {
		Key:         "swiss-topo",
		Name:        "SwissTopo",
		Description: "swisstopo national map",
		Format:      "jpg",
		URL:         "https://wmts.geo.admin.ch/1.0.0/ch.swisstopo.pixelkarte-farbe/default/current/3857/{z}/{x}/{y}.jpeg",
		Header:      map[string]string{"Referer": "https://map.geo.admin.ch/"},
		Workers:     16,
		ProbeAt:     orb.Point{8.2275, 46.8182},
		ProbeLevel:  7,
	},
}

// TileMap returns the fetch settings of s.
func (s Source) TileMap() TileMap {
	return tileMaps[s]
}

func (s Source) String() string {
	if tm, ok := tileMaps[s]; ok {
		return tm.Key
	}
	return "source(" + strconv.Itoa(int(s)) + ")"
}

// ParseSource accepts a source key or display name, case-insensitively.
func ParseSource(name string) (Source, error) {
	for _, s := range Sources {
		tm := tileMaps[s]
		if strings.EqualFold(name, tm.Key) || strings.EqualFold(name, tm.Name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown map source %q", name)
}

// HasLayers reports whether the user can pick a layer for the source.
func (s Source) HasLayers() bool {
	return s == IGN
}

// ProbeTile returns the tile fetched to check the source is reachable.
func (s Source) ProbeTile() maptile.Tile {
	tm := tileMaps[s]
	return maptile.At(tm.ProbeAt, tm.ProbeLevel)
}

// getTileURL fills the URL template with the tile indices.
func (tm TileMap) getTileURL(t maptile.Tile) string {
	url := strings.Replace(tm.URL, "{x}", strconv.Itoa(int(t.X)), -1)
	url = strings.Replace(url, "{y}", strconv.Itoa(int(t.Y)), -1)
	url = strings.Replace(url, "{z}", strconv.Itoa(int(t.Z)), -1)
	return url
}

// IgnLayer is an IGN France layer, by its menu and WMTS names.
type IgnLayer struct {
	PublicName string
	RealName   string
}

// IgnLayers are the IGN France layers offered in the layer menu. The first one
// is the default.
var IgnLayers = []IgnLayer{
	{PublicName: "Scan Express Standard", RealName: "GEOGRAPHICALGRIDSYSTEMS.MAPS.SCAN-EXPRESS.STANDARD"},
	{PublicName: "Carte IGN", RealName: "GEOGRAPHICALGRIDSYSTEMS.MAPS"},
	{PublicName: "Plan IGN", RealName: "GEOGRAPHICALGRIDSYSTEMS.PLANIGNV2"},
}

// IgnLayerByName finds a layer by its public name.
func IgnLayerByName(publicName string) (IgnLayer, bool) {
	for _, l := range IgnLayers {
		if l.PublicName == publicName {
			return l, true
		}
	}
	return IgnLayer{}, false
}
