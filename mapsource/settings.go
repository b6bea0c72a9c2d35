package mapsource

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

// Credentials are the IGN France access settings.
type Credentials struct {
	User     string
	Password string
	APIKey   string
}

// ScaleAndScroll is the initial viewport of a source, when configured.
type ScaleAndScroll struct {
	Scale   float64
	ScrollX int
	ScrollY int
}

// Settings exposes the per-source preferences kept in the application
// configuration. It is safe for concurrent use.
type Settings struct {
	mu sync.RWMutex
	v  *viper.Viper
}

// NewSettings wraps v, viper.GetViper() when nil.
func NewSettings(v *viper.Viper) *Settings {
	if v == nil {
		v = viper.GetViper()
	}
	return &Settings{v: v}
}

func key(s Source, name string) string {
	return "source." + s.String() + "." + name
}

// LayerPublicName returns the selected layer of s, the default layer when
// none was selected.
func (st *Settings) LayerPublicName(s Source) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	name := st.v.GetString(key(s, "layer"))
	if _, ok := IgnLayerByName(name); !ok {
		return IgnLayers[0].PublicName
	}
	return name
}

// SetLayerPublicName records the layer selected for s.
func (st *Settings) SetLayerPublicName(s Source, publicName string) error {
	if !s.HasLayers() {
		return fmt.Errorf("source %s has no layers", s)
	}
	if _, ok := IgnLayerByName(publicName); !ok {
		return fmt.Errorf("unknown layer %q", publicName)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.v.Set(key(s, "layer"), publicName)
	return nil
}

// IgnCredentials returns the configured IGN France credentials.
func (st *Settings) IgnCredentials() Credentials {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return Credentials{
		User:     st.v.GetString("ign.user"),
		Password: st.v.GetString("ign.password"),
		APIKey:   st.v.GetString("ign.apikey"),
	}
}

// SetIgnCredentials updates the IGN France credentials.
func (st *Settings) SetIgnCredentials(c Credentials) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.v.Set("ign.user", c.User)
	st.v.Set("ign.password", c.Password)
	st.v.Set("ign.apikey", c.APIKey)
}

// URLTemplate returns the tile URL template of s; "source.<key>.url"
// overrides the built-in one.
func (st *Settings) URLTemplate(s Source) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if u := st.v.GetString(key(s, "url")); u != "" {
		return u
	}
	return s.TileMap().URL
}

// ScaleAndScroll returns the initial viewport of s, if one is configured.
func (st *Settings) ScaleAndScroll(s Source) (ScaleAndScroll, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if !st.v.IsSet(key(s, "scale")) {
		return ScaleAndScroll{}, false
	}
	return ScaleAndScroll{
		Scale:   st.v.GetFloat64(key(s, "scale")),
		ScrollX: st.v.GetInt(key(s, "scrollx")),
		ScrollY: st.v.GetInt(key(s, "scrolly")),
	}, true
}

// Int returns an integer setting, def when unset.
func (st *Settings) Int(name string, def int) int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if !st.v.IsSet(name) {
		return def
	}
	return st.v.GetInt(name)
}
