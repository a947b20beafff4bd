// Command panoptic-prep turns RGB semantic label images into instance
// rasters, panoptic images and COCO annotation documents.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/model-collapse/panoptic-prep/cache"
	"github.com/model-collapse/panoptic-prep/coco"
	"github.com/model-collapse/panoptic-prep/labels"
	"github.com/model-collapse/panoptic-prep/pipeline"
	"github.com/model-collapse/panoptic-prep/util"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

const usage = `usage: panoptic-prep [flags] <command> <path>

commands:
  panoptic <dir>      write panoptic images and annotations_<dir>_panoptic.json
  instances <dir>     write annotations_<dir>_instances.json with polygons
  instance-ids <dir>  write <label>_instanceIds.png next to every label image
  convert <dir>       recolor label images in place (-from, -to)
  categories <file>   write the category list of the variant
  serve <root>        serve annotations, panoptic images and previews

flags:
`

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("panoptic-prep", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	cfgPath := fs.String("config", "", "YAML config file")
	variant := fs.String("variant", "", "label taxonomy: rugd | rellis")
	workers := fs.Int("workers", 0, "parallel workers (0 = one per CPU)")
	suffix := fs.String("suffix", "", "label image file suffix")
	input := fs.String("input", "", "annotation input: color | instance-ids")
	tolerance := fs.Float64("tolerance", 0, "polygon simplification tolerance in pixels")
	logMode := fs.String("log", "", "log mode: debug | release")
	useCache := fs.Bool("cache", false, "enable the redis result cache")
	addr := fs.String("addr", "", "serve listen address")
	from := fs.String("from", "", "convert source variant")
	to := fs.String("to", "", "convert target variant")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return 2
	}
	cmd, arg := fs.Arg(0), fs.Arg(1)

	if err := LoadConfig(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "panoptic-prep: %v\n", err)
		return 1
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "variant":
			GConf.Variant = *variant
		case "workers":
			GConf.Workers = *workers
		case "suffix":
			GConf.LabelSuffix = *suffix
		case "input":
			GConf.Input = *input
		case "tolerance":
			GConf.PolygonTolerance = *tolerance
		case "log":
			GConf.Log.Mode = *logMode
		case "cache":
			GConf.Cache.Enabled = *useCache
		case "addr":
			GConf.Serve.Addr = *addr
		case "from":
			GConf.Convert.From = *from
		case "to":
			GConf.Convert.To = *to
		}
	})
	if err := GConf.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "panoptic-prep: %v\n", err)
		return 1
	}

	if err := util.InitLogger(GConf.Log.Mode); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer util.Sync()

	util.Logger.Info("starting panoptic-prep",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
		zap.String("command", cmd))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, _ := labels.ParseVariant(GConf.Variant)
	reg, err := labels.New(v)
	if err != nil {
		util.Logger.Error("invalid label catalog", zap.Error(err))
		return 1
	}

	if err := dispatch(ctx, cmd, arg, reg); err != nil {
		util.Logger.Error("command failed", zap.String("command", cmd), zap.Error(err))
		return 1
	}
	return 0
}

var errUnitsFailed = errors.New("some files failed")

func dispatch(ctx context.Context, cmd, arg string, reg *labels.Registry) error {
	switch cmd {
	case "categories":
		return coco.SaveCategories(arg, coco.Categories(reg))
	case "serve":
		return serve(ctx, arg, reg)
	}

	opts := pipeline.Options{
		Workers:   GConf.Workers,
		Suffix:    GConf.LabelSuffix,
		Tolerance: GConf.PolygonTolerance,
	}
	opts.Input, _ = pipeline.ParseInput(GConf.Input)
	if GConf.Cache.Enabled {
		rc := cache.NewRedis(&GConf.Cache)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			util.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
		} else {
			util.Logger.Info("redis connected", zap.String("addr", GConf.Cache.Addr))
			opts.Cache = rc
		}
	}
	r := pipeline.NewRunner(reg, opts)

	var stats *pipeline.RunStats
	var err error
	switch cmd {
	case "panoptic":
		stats, err = r.Panoptic(ctx, arg)
	case "instances":
		stats, err = r.Instances(ctx, arg)
	case "instance-ids":
		stats, err = r.InstanceIDs(ctx, arg)
	case "convert":
		var src, dst labels.Variant
		if src, err = labels.ParseVariant(GConf.Convert.From); err != nil {
			return err
		}
		if dst, err = labels.ParseVariant(GConf.Convert.To); err != nil {
			return err
		}
		stats, err = r.Convert(ctx, arg, src, dst)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		return err
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errUnitsFailed, stats.Failed, stats.Total)
	}
	return nil
}
