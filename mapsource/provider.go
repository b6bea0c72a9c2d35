package mapsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"
)

// Errors returned by tile stream providers.
var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrTileNotFound       = errors.New("tile not found")
	ErrEmptyTile          = errors.New("empty tile")
)

// TileStreamProvider returns the encoded image of a tile.
type TileStreamProvider interface {
	TileStream(ctx context.Context, level, col, row int) (io.ReadCloser, error)
}

// NewTileStreamProvider builds the HTTP provider of s. It fails with
// ErrMissingCredentials when s needs IGN credentials that are not configured.
func NewTileStreamProvider(s Source, st *Settings) (TileStreamProvider, error) {
	p, err := NewHTTPProvider(s, st)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// HTTPProvider fetches tiles from the source servers.
type HTTPProvider struct {
	source   Source
	tm       TileMap
	user     string
	password string
	client   *http.Client
	cache    *ttlcache.Cache[maptile.Tile, []byte]
}

// NewHTTPProvider resolves the URL template and credentials of s.
func NewHTTPProvider(s Source, st *Settings) (*HTTPProvider, error) {
	tm := s.TileMap()
	tm.URL = st.URLTemplate(s)
	p := &HTTPProvider{
		source: s,
		client: &http.Client{Timeout: 20 * time.Second},
	}
	if tm.BasicAuth {
		c := st.IgnCredentials()
		if c.User == "" || c.Password == "" || c.APIKey == "" {
			return nil, fmt.Errorf("%s: %w", s, ErrMissingCredentials)
		}
		p.user, p.password = c.User, c.Password
		tm.URL = strings.Replace(tm.URL, "{apikey}", c.APIKey, -1)
	}
	if s.HasLayers() {
		layer, _ := IgnLayerByName(st.LayerPublicName(s))
		tm.URL = strings.Replace(tm.URL, "{layer}", layer.RealName, -1)
	}
	p.tm = tm

	ttl := time.Duration(st.Int("tiles.cachettl", 300)) * time.Second
	p.cache = ttlcache.New[maptile.Tile, []byte](
		ttlcache.WithTTL[maptile.Tile, []byte](ttl),
		ttlcache.WithCapacity[maptile.Tile, []byte](uint64(st.Int("tiles.cachesize", 256))),
	)
	return p, nil
}

// Source returns the source the provider fetches from.
func (p *HTTPProvider) Source() Source {
	return p.source
}

// Workers is the fetch concurrency suited to the source.
func (p *HTTPProvider) Workers() int {
	return p.tm.Workers
}

// TileStream implements TileStreamProvider.
func (p *HTTPProvider) TileStream(ctx context.Context, level, col, row int) (io.ReadCloser, error) {
	t := maptile.New(uint32(col), uint32(row), maptile.Zoom(level))
	if item := p.cache.Get(t); item != nil {
		return ioutil.NopCloser(bytes.NewReader(item.Value())), nil
	}
	url := p.tm.getTileURL(t)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range p.tm.Header {
		req.Header.Set(k, v)
	}
	if p.user != "" {
		req.SetBasicAuth(p.user, p.password)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("fetch %v: %w", t, ErrTileNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %v: status code %d", t, resp.StatusCode)
	}
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %v: %w", t, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %v: %w", t, ErrEmptyTile)
	}
	p.cache.Set(t, body, ttlcache.DefaultTTL)
	log.WithField("source", p.source).Debugf("tile %v, %.2f kb", t, float32(len(body))/1024.0)
	return ioutil.NopCloser(bytes.NewReader(body)), nil
}

// Close drops cached tiles and idle connections.
func (p *HTTPProvider) Close() error {
	p.cache.DeleteAll()
	p.client.CloseIdleConnections()
	return nil
}

// DirProvider reads tiles of an imported map laid out as
// <level>/<row>/<col><ext> under a directory, as libvips generates them.
type DirProvider struct {
	Dir string
	Ext string
}

// TileStream implements TileStreamProvider.
func (p DirProvider) TileStream(_ context.Context, level, col, row int) (io.ReadCloser, error) {
	name := filepath.Join(p.Dir, strconv.Itoa(level), strconv.Itoa(row), strconv.Itoa(col)+p.Ext)
	f, err := os.Open(name)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", name, ErrTileNotFound)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}
