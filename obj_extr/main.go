// Command obj_extr cuts every object of an instances document out of its
// source image and writes it as <annotation id>.png with a polygon alpha mask.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/model-collapse/panoptic-prep/coco"
	"github.com/model-collapse/panoptic-prep/dist"
	"github.com/model-collapse/panoptic-prep/raster"
	"github.com/model-collapse/panoptic-prep/util"
)

func loadImage(path string) (img image.Image, err error) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	img, _, err = image.Decode(f)
	return
}

func extractObject(fns map[int]string, imgDir, outDir string, a *coco.InstanceAnnotation) error {
	fn, ok := fns[a.ImageID]
	if !ok {
		return fmt.Errorf("image id %d, does not exist", a.ImageID)
	}

	img, err := loadImage(filepath.Join(imgDir, filepath.FromSlash(fn)))
	if err != nil {
		return err
	}

	patch, err := cutout(img, a.Segmentation)
	if err != nil {
		return fmt.Errorf("annotation %d: %w", a.ID, err)
	}

	return raster.WritePNG(filepath.Join(outDir, fmt.Sprintf("%d.png", a.ID)), patch)
}

func run(docPath, imgDir, outDir string, workers int) (s dist.Summary, err error) {
	annFile, err := coco.LoadInstances(docPath)
	if err != nil {
		return
	}

	util.Logger.Info("loaded annotations",
		zap.Int("objects", len(annFile.Annotations)),
		zap.Int("images", len(annFile.Images)))

	fns := coco.BuildFileNameIndex(annFile.Images)

	// units are addressed by annotation index
	keys := make([]string, len(annFile.Annotations))
	for i, a := range annFile.Annotations {
		keys[i] = strconv.Itoa(a.ID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	outcomes := dist.Run(ctx, workers, keys, func(_ context.Context, u dist.Unit) (struct{}, error) {
		return struct{}{}, extractObject(fns, imgDir, outDir, &annFile.Annotations[u.Index])
	})

	s = dist.Summarize(outcomes)
	for _, f := range s.Failures {
		util.Logger.Error("extraction failed", zap.String("annotation", f.Path), zap.Error(f.Err))
	}
	err = ctx.Err()
	return
}

func main() {
	docPath := flag.String("doc", "annotations_instances.json", "instances annotation document")
	imgDir := flag.String("images", ".", "directory the document's file names are relative to")
	outDir := flag.String("out", "objs", "output directory")
	workers := flag.Int("workers", 10, "parallel workers")
	flag.Parse()

	if err := util.InitLogger("debug"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer util.Sync()

	s, err := run(*docPath, *imgDir, *outDir, *workers)
	if err != nil {
		util.Logger.Fatal("extraction aborted", zap.Error(err))
	}

	util.Logger.Info("done", zap.Int("extracted", s.Succeeded), zap.Int("failed", s.Failed))
}
