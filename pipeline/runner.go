// Package pipeline drives the per-file jobs: discovery, labeling, encoding,
// output writing and the dataset-level documents.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/model-collapse/panoptic-prep/cache"
	"github.com/model-collapse/panoptic-prep/coco"
	"github.com/model-collapse/panoptic-prep/dist"
	"github.com/model-collapse/panoptic-prep/instance"
	"github.com/model-collapse/panoptic-prep/labels"
	"github.com/model-collapse/panoptic-prep/panoptic"
	"github.com/model-collapse/panoptic-prep/raster"
	"github.com/model-collapse/panoptic-prep/util"
)

var ErrIO = errors.New("i/o failure")

func ioErr(err error) error {
	return fmt.Errorf("%w: %w", ErrIO, err)
}

// Input selects what the annotation runs read.
type Input string

const (
	// InputColor reads RGB label images and labels them on the fly.
	InputColor Input = "color"
	// InputInstanceIDs reads existing 16-bit instance-id rasters.
	InputInstanceIDs Input = "instance-ids"
)

func ParseInput(s string) (Input, error) {
	switch i := Input(s); i {
	case InputColor, InputInstanceIDs:
		return i, nil
	case "":
		return InputColor, nil
	}
	return "", fmt.Errorf("invalid input kind %q (use 'color' or 'instance-ids')", s)
}

// ResultCache stores per-unit results between runs. Get returns nil, nil on
// a miss.
type ResultCache interface {
	Get(ctx context.Context, key string) (*cache.Entry, error)
	Set(ctx context.Context, key string, e *cache.Entry) error
}

type Options struct {
	// Workers <= 0 uses one worker per CPU.
	Workers int
	Suffix  string
	Input   Input
	// Tolerance is the polygon simplification distance in pixels; zero
	// selects panoptic.DefaultTolerance.
	Tolerance float64
	Cache     ResultCache
}

type Runner struct {
	reg     *labels.Registry
	opts    Options
	labeler *instance.Labeler
}

func NewRunner(reg *labels.Registry, opts Options) *Runner {
	if opts.Input == "" {
		opts.Input = InputColor
	}
	if opts.Tolerance == 0 {
		opts.Tolerance = panoptic.DefaultTolerance
	}
	return &Runner{reg: reg, opts: opts, labeler: instance.NewLabeler(reg)}
}

func (r *Runner) suffix() string {
	if r.opts.Input == InputInstanceIDs {
		return InstanceIDsSuffix
	}
	return r.opts.Suffix
}

// Layout holds the output locations of a dataset directory.
type Layout struct {
	Root        string
	PanopticDir string
	Document    string
	Categories  string
}

// LayoutFor places every output next to root, named after it.
func LayoutFor(root string, mode panoptic.Mode) Layout {
	root = filepath.Clean(root)
	parent, name := filepath.Dir(root), filepath.Base(root)
	return Layout{
		Root:        root,
		PanopticDir: filepath.Join(parent, name+"_panoptic"),
		Document:    filepath.Join(parent, fmt.Sprintf("annotations_%s_%s.json", name, mode)),
		Categories:  filepath.Join(parent, "categories.json"),
	}
}

// LabelFileName is the document file name of an input, relative to the
// dataset root with forward slashes. Instance-id rasters are named after the
// label image they were built from.
func LabelFileName(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if strings.HasSuffix(rel, InstanceIDsSuffix) {
		rel = strings.TrimSuffix(rel, InstanceIDsSuffix) + ".png"
	}
	return rel, nil
}

type unitResult struct {
	fileName string
	entry    *cache.Entry
	cached   bool
}

func (r *Runner) Panoptic(ctx context.Context, dir string) (*RunStats, error) {
	return r.annotate(ctx, dir, panoptic.ModePanoptic)
}

func (r *Runner) Instances(ctx context.Context, dir string) (*RunStats, error) {
	return r.annotate(ctx, dir, panoptic.ModeInstances)
}

// annotate processes every input in parallel and then merges the results in
// path order, so the document does not depend on which worker finished first.
// Nothing is written at the dataset level when ctx is cancelled.
func (r *Runner) annotate(ctx context.Context, dir string, mode panoptic.Mode) (*RunStats, error) {
	layout := LayoutFor(dir, mode)
	files, err := Discover(layout.Root, r.suffix())
	if err != nil {
		return nil, ioErr(err)
	}

	util.Logger.Info("annotating",
		zap.String("dir", layout.Root),
		zap.String("mode", string(mode)),
		zap.String("variant", string(r.reg.Variant())),
		zap.String("input", string(r.opts.Input)),
		zap.Int("files", len(files)))

	outcomes := dist.Run(ctx, r.opts.Workers, files, func(ctx context.Context, u dist.Unit) (*unitResult, error) {
		return r.process(ctx, layout, mode, u)
	})

	stats := &RunStats{Summary: dist.Summarize(outcomes), Total: len(files)}
	if err := ctx.Err(); err != nil {
		logSummary(string(mode), stats)
		return stats, err
	}

	agg := coco.NewAggregator(r.reg, mode)
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		res := o.Value
		if res.cached {
			stats.CacheHits++
		}
		stats.Dropped += len(res.entry.Dropped)
		stats.Unknown += res.entry.Unknown

		img := agg.RegisterImage(res.fileName, res.entry.Width, res.entry.Height)
		for _, s := range res.entry.Segments {
			if _, err := agg.AddSegment(img, s); err != nil {
				return stats, err
			}
		}
	}
	stats.Images, stats.Annotations = agg.Images(), agg.Annotations()

	doc := agg.Finalize()
	if err := doc.Save(layout.Document); err != nil {
		return stats, ioErr(err)
	}
	if err := coco.SaveCategories(layout.Categories, coco.Categories(r.reg)); err != nil {
		return stats, ioErr(err)
	}
	stats.Document = layout.Document

	logSummary(string(mode), stats)
	return stats, nil
}

func (r *Runner) process(ctx context.Context, layout Layout, mode panoptic.Mode, u dist.Unit) (ret *unitResult, err error) {
	ret = &unitResult{}
	if ret.fileName, err = LabelFileName(layout.Root, u.Path); err != nil {
		return nil, ioErr(err)
	}
	panPath := filepath.Join(layout.PanopticDir, filepath.FromSlash(coco.PanopticFileName(ret.fileName)))

	var key string
	if r.opts.Cache != nil {
		md5, err := util.FileMD5(u.Path)
		if err != nil {
			return nil, ioErr(err)
		}
		key = cache.Key(md5, r.reg.Variant(), mode, r.opts.Tolerance)
		if e := r.lookup(ctx, key, u.Path); e != nil && (mode == panoptic.ModeInstances || exists(panPath)) {
			ret.entry, ret.cached = e, true
			return ret, nil
		}
	}

	ir, unknown, err := r.load(u.Path)
	if err != nil {
		return nil, err
	}

	enc := &panoptic.Encoder{Registry: r.reg, Mode: mode, Tolerance: r.opts.Tolerance}
	encoded, err := enc.Encode(ir)
	if err != nil {
		return nil, err
	}
	if len(encoded.Dropped) > 0 {
		util.Logger.Warn("segments dropped, no polygon left after simplification",
			zap.String("file", u.Path), zap.Uint32s("segments", encoded.Dropped))
	}

	if encoded.Panoptic != nil {
		if err := raster.WritePNG(panPath, encoded.Panoptic); err != nil {
			return nil, ioErr(err)
		}
	}

	ret.entry = &cache.Entry{
		Width:    ir.Width,
		Height:   ir.Height,
		Segments: encoded.Segments,
		Dropped:  encoded.Dropped,
		Unknown:  unknown,
	}
	if key != "" {
		if err := r.opts.Cache.Set(ctx, key, ret.entry); err != nil {
			util.Logger.Warn("cache store failed", zap.String("file", u.Path), zap.Error(err))
		}
	}
	return ret, nil
}

func (r *Runner) lookup(ctx context.Context, key, path string) *cache.Entry {
	e, err := r.opts.Cache.Get(ctx, key)
	if err != nil {
		util.Logger.Warn("cache lookup failed", zap.String("file", path), zap.Error(err))
		return nil
	}
	return e
}

// load returns the instance raster of path and the number of pixels whose
// color is outside the taxonomy.
func (r *Runner) load(path string) (*raster.Instance, int, error) {
	if r.opts.Input == InputInstanceIDs {
		ir, err := raster.LoadInstanceIDs(path)
		if err != nil {
			return nil, 0, ioErr(err)
		}
		return ir, 0, nil
	}

	src, err := raster.LoadColor(path)
	if err != nil {
		return nil, 0, ioErr(err)
	}
	res, err := r.labeler.Label(src)
	if err != nil {
		return nil, 0, err
	}
	logUnknown(path, res)
	return res.Raster, res.Unknown, nil
}

func logUnknown(path string, res *instance.Result) {
	if res.Unknown > 0 {
		util.Logger.Warn("unknown label colors skipped",
			zap.String("file", path),
			zap.Int("pixels", res.Unknown),
			zap.Stringers("colors", res.UnknownColors))
	}
}

// InstanceIDs writes a 16-bit instance-id raster next to every label image.
// Existing outputs are kept and counted as skipped.
func (r *Runner) InstanceIDs(ctx context.Context, dir string) (*RunStats, error) {
	files, err := Discover(dir, r.opts.Suffix)
	if err != nil {
		return nil, ioErr(err)
	}

	outcomes := dist.Run(ctx, r.opts.Workers, files, func(ctx context.Context, u dist.Unit) (bool, error) {
		out := InstanceIDsPath(u.Path)
		if exists(out) {
			return true, nil
		}

		src, err := raster.LoadColor(u.Path)
		if err != nil {
			return false, ioErr(err)
		}
		res, err := r.labeler.Label(src)
		if err != nil {
			return false, err
		}
		logUnknown(u.Path, res)
		img, err := raster.InstanceIDsImage(res.Raster)
		if err != nil {
			return false, err
		}
		if err := raster.WritePNG(out, img); err != nil {
			return false, ioErr(err)
		}
		return false, nil
	})

	stats := &RunStats{Summary: dist.Summarize(outcomes), Total: len(files)}
	for _, o := range outcomes {
		if o.Err == nil && o.Value {
			stats.Skipped++
		}
	}
	logSummary("instance-ids", stats)
	return stats, ctx.Err()
}

func InstanceIDsPath(labelPath string) string {
	return strings.TrimSuffix(labelPath, filepath.Ext(labelPath)) + InstanceIDsSuffix
}

// Convert recolors every label image under dir in place from the palette of
// one variant to the other. Files without a conflicting pixel are not
// rewritten.
func (r *Runner) Convert(ctx context.Context, dir string, from, to labels.Variant) (*RunStats, error) {
	m, err := labels.ConflictColormap(from, to)
	if err != nil {
		return nil, err
	}
	files, err := Discover(dir, r.opts.Suffix)
	if err != nil {
		return nil, ioErr(err)
	}

	outcomes := dist.Run(ctx, r.opts.Workers, files, func(ctx context.Context, u dist.Unit) (int, error) {
		src, err := raster.LoadColor(u.Path)
		if err != nil {
			return 0, ioErr(err)
		}
		n := src.Remap(m)
		if n == 0 {
			return 0, nil
		}
		if err := raster.WritePNG(u.Path, src.Image()); err != nil {
			return 0, ioErr(err)
		}
		return n, nil
	})

	stats := &RunStats{Summary: dist.Summarize(outcomes), Total: len(files)}
	for _, o := range outcomes {
		if o.Err == nil {
			stats.Recolored += o.Value
		}
	}
	logSummary("convert", stats)
	return stats, ctx.Err()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
