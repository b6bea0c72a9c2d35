package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// flag
var (
	hf bool
	cf string
)

func init() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&cf, "c", "conf.toml", "set config `file`")
	flag.Usage = usage
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		FieldsOrder:     []string{"component", "screen", "source"},
	})
	// then wrap the log output with it
	log.SetOutput(ansicolor.NewAnsiColorWriter(os.Stdout))
	log.SetLevel(log.InfoLevel)
}

func usage() {
	fmt.Fprintf(os.Stderr, `trekme version: trekme/v0.1.0
Usage: trekme [-h] [-c filename] <command> [arguments]

Commands:
  probe [-dir directory [-ext .jpg]] [source...]
                                          check that tiles of the sources can be fetched
  project <lat> <lon>                     show the map coordinates of a location
  download [-area file.geojson] <source> [minlon minlat maxlon maxlat] <minz> <maxz>
                                          download the tiles of an area
  license [record]                        show or record the IGN license purchase
  landmarks <dir> [add <name> <lat> <lon> | rm <id>]
                                          list or edit the landmarks of a map

Sources: ign, ign-spain, usgs, osm, swiss-topo
`)
	flag.PrintDefaults()
}

// initConf reads the config file and sets the defaults.
func initConf(cfgFile string) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Warnf("config file(%s) not exist", cfgFile)
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(cfgFile)
	viper.AutomaticEnv() // read in environment variables that match
	err := viper.ReadInConfig()
	if err != nil {
		log.Warnf("read config file(%s) error, details: %s", viper.ConfigFileUsed(), err)
	}
	viper.SetDefault("app.version", "v 0.1.0")
	viper.SetDefault("app.title", "TrekMe")
	viper.SetDefault("app.loglevel", "info")
	viper.SetDefault("output.format", "mbtiles")
	viper.SetDefault("output.directory", "output")
	viper.SetDefault("task.workers", 0)
	viper.SetDefault("task.savepipe", 1)
	viper.SetDefault("task.mergebuf", 64)
	viper.SetDefault("tiles.cachettl", 300)
	viper.SetDefault("tiles.cachesize", 256)
	viper.SetDefault("probe.timeout", 10)
	viper.SetDefault("license.db", "license.db")
	viper.SetDefault("landmarks.dir", "maps")
	viper.SetDefault("map.projection", "EPSG:3857")

	if lvl, err := log.ParseLevel(viper.GetString("app.loglevel")); err == nil {
		log.SetLevel(lvl)
	}
}

func main() {
	flag.Parse()
	if hf || flag.NArg() == 0 {
		flag.Usage()
		return
	}

	if cf == "" {
		cf = "conf.toml"
	}
	initConf(cf)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	cmd, args := flag.Arg(0), flag.Args()[1:]
	var err error
	switch cmd {
	case "probe":
		err = probeCmd(ctx, args)
	case "project":
		err = projectCmd(args)
	case "download":
		err = downloadCmd(ctx, args)
	case "license":
		err = licenseCmd(ctx, args)
	case "landmarks":
		err = landmarksCmd(ctx, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if errors.Is(err, context.Canceled) {
		log.Warnf("%s interrupted", cmd)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %s", cmd, err)
	}
	log.Debugf("%s finished in %.3fs", cmd, time.Since(start).Seconds())
}
