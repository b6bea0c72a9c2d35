package download

import (
	"fmt"
	"io/ioutil"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// LoadArea reads the area to download from a GeoJSON file holding a feature
// collection, a feature or a bare geometry. The area is the bound of every
// geometry of the file.
func LoadArea(path string) (orb.Bound, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return orb.Bound{}, fmt.Errorf("unable to read file: %w", err)
	}

	var collection orb.Collection
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		for _, f := range fc.Features {
			collection = append(collection, f.Geometry)
		}
	} else if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		collection = append(collection, f.Geometry)
	} else {
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("unable to unmarshal %s: %w", path, err)
		}
		collection = append(collection, g.Geometry())
	}

	bound := collection.Bound()
	if bound.IsEmpty() {
		return orb.Bound{}, fmt.Errorf("%w: %s has an empty area", ErrInvalidRequest, path)
	}
	return bound, nil
}
