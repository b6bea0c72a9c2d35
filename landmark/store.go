package landmark

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// MarkersFile is the name of the markers file in a map directory.
const MarkersFile = "markers.json"

// Store loads and saves the landmarks of a map directory.
type Store interface {
	Load(ctx context.Context, dir string) ([]*Landmark, error)
	Save(ctx context.Context, dir string, ls []Landmark) error
	Delete(ctx context.Context, dir string) error
}

// FileStore keeps landmarks as a GeoJSON feature collection.
type FileStore struct{}

// Load implements Store. A missing file means no landmarks.
func (FileStore) Load(_ context.Context, dir string) ([]*Landmark, error) {
	data, err := ioutil.ReadFile(filepath.Join(dir, MarkersFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("unable to unmarshal markers: %w", err)
	}
	var ls []*Landmark
	for _, f := range fc.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		l := &Landmark{
			ID:      f.Properties.MustString("id", ""),
			Name:    f.Properties.MustString("name", ""),
			Comment: f.Properties.MustString("comment", ""),
			Lon:     p.Lon(),
			Lat:     p.Lat(),
		}
		if x, ok := f.Properties["proj_x"].(float64); ok {
			l.ProjX = &x
		}
		if y, ok := f.Properties["proj_y"].(float64); ok {
			l.ProjY = &y
		}
		if l.ID == "" {
			l.ID = New().ID
		}
		ls = append(ls, l)
	}
	return ls, nil
}

// Save implements Store. The file is replaced atomically, through a temp
// file of its own so that concurrent saves never share one.
func (FileStore) Save(_ context.Context, dir string, ls []Landmark) error {
	fc := geojson.NewFeatureCollection()
	for _, l := range ls {
		f := geojson.NewFeature(orb.Point{l.Lon, l.Lat})
		f.Properties["id"] = l.ID
		f.Properties["name"] = l.Name
		if l.Comment != "" {
			f.Properties["comment"] = l.Comment
		}
		if l.ProjX != nil && l.ProjY != nil {
			f.Properties["proj_x"] = *l.ProjX
			f.Properties["proj_y"] = *l.ProjY
		}
		fc.Append(f)
	}
	data, err := json.MarshalIndent(fc, "", " ")
	if err != nil {
		return fmt.Errorf("error marshalling json: %w", err)
	}
	f, err := ioutil.TempFile(dir, MarkersFile+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, 0644)
	}
	if err == nil {
		err = os.Rename(tmp, filepath.Join(dir, MarkersFile))
	}
	if err != nil {
		os.Remove(tmp)
	}
	return err
}

// Delete implements Store.
func (FileStore) Delete(_ context.Context, dir string) error {
	err := os.Remove(filepath.Join(dir, MarkersFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// DeleteMap drops the landmarks of a deleted map and its markers file.
func DeleteMap(ctx context.Context, store Store, m *Map) error {
	m.landmarks = nil
	m.defined = false
	return store.Delete(ctx, m.Dir)
}
