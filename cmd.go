package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"trekme/download"
	"trekme/events"
	"trekme/landmark"
	"trekme/license"
	"trekme/mapsource"
	"trekme/projection"
	"trekme/pyramid"
)

func parseFloats(args []string) ([]float64, error) {
	vs := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", a)
		}
		vs[i] = v
	}
	return vs, nil
}

func probeCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	dir := fs.String("dir", "", "probe an imported tile `directory` instead of the servers")
	ext := fs.String("ext", ".jpg", "tile file extension of -dir")
	if err := fs.Parse(args); err != nil {
		return err
	}
	args = fs.Args()
	if *dir != "" && len(args) != 1 {
		return errors.New("usage: probe -dir <directory> [-ext .jpg] <source>")
	}

	sources := mapsource.Sources
	if len(args) > 0 {
		sources = nil
		for _, a := range args {
			s, err := mapsource.ParseSource(a)
			if err != nil {
				return err
			}
			sources = append(sources, s)
		}
	}
	settings := mapsource.NewSettings(nil)
	timeout := time.Duration(viper.GetInt("probe.timeout")) * time.Second
	for _, s := range sources {
		var provider mapsource.TileStreamProvider = mapsource.DirProvider{Dir: *dir, Ext: *ext}
		if *dir == "" {
			p, err := mapsource.NewTileStreamProvider(s, settings)
			if err != nil {
				log.WithField("source", s).Warnf("no tile provider: %s", err)
				continue
			}
			provider = p
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		ok := mapsource.CheckAccessibility(pctx, provider, s)
		cancel()
		if p, isHTTP := provider.(*mapsource.HTTPProvider); isHTTP {
			p.Close()
		}
		if ok {
			log.WithField("source", s).Infof("tiles are accessible")
		} else {
			log.WithField("source", s).Warnf("tiles are not accessible")
		}
	}
	return nil
}

// mapper returns the mapper of Google Maps compatible maps in the projection
// named by map.projection.
func mapper() (pyramid.Mapper, error) {
	name := viper.GetString("map.projection")
	if name == "" {
		name = projection.Mercator{}.Name()
	}
	p := projection.ByName(name)
	if p == nil {
		return pyramid.Mapper{}, fmt.Errorf("unknown projection %q", name)
	}
	return pyramid.Mapper{Config: pyramid.GoogleMapsCompatible(), Projection: p}, nil
}

func projectCmd(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: project <lat> <lon>")
	}
	vs, err := parseFloats(args)
	if err != nil {
		return err
	}
	lat, lon := vs[0], vs[1]
	m, err := mapper()
	if err != nil {
		return err
	}
	x, y, ok := m.ProjectGeo(lat, lon)
	if !ok {
		return fmt.Errorf("(%f, %f) is out of the %s domain", lat, lon, m.Projection.Name())
	}
	rx, ry := m.Config.ToRelative(x, y)
	fmt.Printf("projected: %.3f %.3f\n", x, y)
	fmt.Printf("relative:  %.9f %.9f\n", rx, ry)
	for _, z := range []int{6, 12, m.Config.HighestLevel} {
		px, py := m.Config.ToPixel(x, y, z)
		t := m.Config.TileAt(x, y, z)
		fmt.Printf("level %2d:  pixel %.1f %.1f, tile %d/%d/%d\n", z, px, py, t.Z, t.X, t.Y)
	}
	return nil
}

func downloadCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	area := fs.String("area", "", "GeoJSON `file` of the area")
	format := fs.String("format", viper.GetString("output.format"), "mbtiles or files")
	out := fs.String("o", "", "output `file` or directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	args = fs.Args()

	want := 7
	if *area != "" {
		want = 3
	}
	if len(args) != want {
		return errors.New("usage: download [-area file.geojson] <source> [minlon minlat maxlon maxlat] <minz> <maxz>")
	}
	src, err := mapsource.ParseSource(args[0])
	if err != nil {
		return err
	}
	vs, err := parseFloats(args[1:])
	if err != nil {
		return err
	}
	req := download.Request{Source: src}
	if *area != "" {
		if req.Bound, err = download.LoadArea(*area); err != nil {
			return err
		}
	} else {
		req.Bound = orb.Bound{Min: orb.Point{vs[0], vs[1]}, Max: orb.Point{vs[2], vs[3]}}
	}
	req.MinLevel, req.MaxLevel = int(vs[len(vs)-2]), int(vs[len(vs)-1])

	provider, err := mapsource.NewTileStreamProvider(src, mapsource.NewSettings(nil))
	if err != nil {
		return err
	}
	status := make(chan events.DownloadServiceStatusEvent, 2)
	task, err := download.NewTask(req, provider, download.Options{
		Format:    *format,
		Directory: viper.GetString("output.directory"),
		File:      *out,
		Workers:   viper.GetInt("task.workers"),
		SavePipe:  viper.GetInt("task.savepipe"),
		Buffer:    viper.GetInt("task.mergebuf"),
		Progress:  true,
		Status:    status,
	})
	if err != nil {
		return err
	}
	defer task.Close()
	log.Infof("task %s: %d tiles of %s, levels %d-%d, into %s", task.ID, task.Total, src, req.MinLevel, req.MaxLevel, task.File)

	go func() {
		for e := range status {
			log.Debugf("download service started: %v", e.Started)
		}
	}()
	defer close(status)
	return task.Run(ctx)
}

// noBilling stands for the store billing service, which is only reachable
// from the device.
type noBilling struct{}

func (noBilling) AcknowledgePurchase(context.Context) (bool, error) {
	return false, license.ErrUnavailable
}

func (noBilling) GetPurchase(context.Context) (*license.Purchase, error) {
	return nil, license.ErrUnavailable
}

func (noBilling) GetLicenseDetails(context.Context) (license.Details, error) {
	return license.Details{}, license.ErrUnavailable
}

func (noBilling) LaunchPurchase(context.Context, license.Details) (license.PurchaseResult, error) {
	return 0, license.ErrUnavailable
}

type statusPrinter struct {
	status license.Status
}

func (p *statusPrinter) OnStatus(s license.Status)   { p.status = s }
func (p *statusPrinter) OnDetails(d license.Details) { log.Infof("license %s: %s", d.ProductID, d.Price) }
func (p *statusPrinter) OnError(err error)           { log.Warnf("license: %s", err) }

func licenseCmd(ctx context.Context, args []string) error {
	store, err := license.OpenSQLiteStore(viper.GetString("license.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 && args[0] == "record" {
		return store.Persist(ctx, license.Info{PurchaseTimestamp: time.Now()})
	}
	if len(args) != 0 {
		return errors.New("usage: license [record]")
	}
	p := &statusPrinter{}
	m := license.NewMachine(noBilling{}, store, p)
	m.CheckOffline(ctx)
	m.CheckStatus(ctx)
	fmt.Println(p.status)
	return nil
}

func landmarksCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: landmarks <dir> [add <name> <lat> <lon> | rm <id>]")
	}
	dir := args[0]
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(viper.GetString("landmarks.dir"), dir)
	}
	store := landmark.FileStore{}
	ls, err := store.Load(ctx, dir)
	if err != nil {
		return err
	}
	mp, err := mapper()
	if err != nil {
		return err
	}
	m := &landmark.Map{Name: filepath.Base(dir), Dir: dir, Mapper: mp}
	m.SetLandmarks(ls)

	switch {
	case len(args) == 1:
		for _, l := range m.Landmarks() {
			fmt.Printf("%s\t%-20s\t%.6f\t%.6f\t%s\n", l.ID, l.Name, l.Lat, l.Lon, l.Comment)
		}
		return nil
	case len(args) == 5 && args[1] == "add":
		vs, err := parseFloats(args[3:])
		if err != nil {
			return err
		}
		rx, ry, ok := m.Mapper.RelativeOf(vs[0], vs[1])
		if !ok {
			return fmt.Errorf("(%f, %f) is out of the map", vs[0], vs[1])
		}
		l := landmark.New()
		l.Name = args[2]
		l.SetPosition(m.Mapper.Locate(rx, ry))
		m.AddLandmark(l)
		log.Infof("landmark %s added", l.ID)
	case len(args) == 3 && args[1] == "rm":
		if !m.RemoveLandmark(args[2]) {
			return fmt.Errorf("no landmark %s", args[2])
		}
	default:
		return errors.New("usage: landmarks <dir> [add <name> <lat> <lon> | rm <id>]")
	}
	return store.Save(ctx, dir, m.Snapshot())
}
