// Package events holds the messages exchanged between screens, the download
// service and the settings screens. They travel on typed channels owned by the
// receiving screen.
package events

// DownloadServiceStatusEvent is sent when the download service starts or stops.
type DownloadServiceStatusEvent struct {
	Started bool
}

// LayerSelectEvent carries the public name of the layer picked by the user.
type LayerSelectEvent struct {
	Selection string
}

// MapSourceSettingsEvent asks to open the settings of a map source.
type MapSourceSettingsEvent struct {
	Source string
}

// LocationEvent is a location fix.
type LocationEvent struct {
	Lat, Lon float64
}
