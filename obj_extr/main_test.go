package main

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/model-collapse/panoptic-prep/coco"
	"github.com/model-collapse/panoptic-prep/labels"
	"github.com/model-collapse/panoptic-prep/panoptic"
	"github.com/model-collapse/panoptic-prep/raster"
)

// square with a one-pixel hole, in the ring orientation the encoder emits
var holed = [][]float64{
	{1, 1, 5, 1, 5, 5, 1, 5},
	{2, 2, 2, 3, 3, 3, 3, 2},
}

func redImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{200, 10, 10, 255})
		}
	}
	return img
}

func TestExtractBoundingBox(t *testing.T) {
	if r := extractBoundingBox(holed); r != image.Rect(1, 1, 5, 5) {
		t.Errorf("bbox = %v", r)
	}
	if r := extractBoundingBox([][]float64{{0.5, 1.2, 3.7, 1.2, 3.7, 2.9}}); r != image.Rect(0, 1, 4, 3) {
		t.Errorf("bbox = %v", r)
	}
	if r := extractBoundingBox(nil); !r.Empty() {
		t.Errorf("bbox of nothing = %v", r)
	}
}

func TestCutout(t *testing.T) {
	patch, err := cutout(redImage(6, 6), holed)
	if err != nil {
		t.Fatal(err)
	}
	if patch.Rect != image.Rect(0, 0, 4, 4) {
		t.Fatalf("patch = %v", patch.Rect)
	}

	if c := patch.NRGBAAt(0, 0); c.A < 200 || c.R != 200 {
		t.Errorf("inside pixel = %v", c)
	}
	if c := patch.NRGBAAt(3, 3); c.A < 200 {
		t.Errorf("inside pixel = %v", c)
	}
	if c := patch.NRGBAAt(1, 1); c.A > 50 {
		t.Errorf("hole pixel = %v", c)
	}
}

func TestCutout_OutOfImage(t *testing.T) {
	if _, err := cutout(redImage(3, 3), holed); err == nil {
		t.Error("expected out of scope error")
	}
	if _, err := cutout(redImage(3, 3), nil); err == nil {
		t.Error("expected empty segmentation error")
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	if err := raster.WritePNG(filepath.Join(dir, "a", "0001.png"), redImage(6, 6)); err != nil {
		t.Fatal(err)
	}

	reg, err := labels.New(labels.RUGD)
	if err != nil {
		t.Fatal(err)
	}
	agg := coco.NewAggregator(reg, panoptic.ModeInstances)
	ok := agg.RegisterImage("a/0001.png", 6, 6)
	missing := agg.RegisterImage("a/0002.png", 6, 6)
	seg := panoptic.Segment{ID: 5000, CategoryID: 5, Area: 15, BBox: panoptic.BBox{1, 1, 4, 4}, Polygons: holed}
	for _, img := range []int{ok, missing} {
		if _, err := agg.AddSegment(img, seg); err != nil {
			t.Fatal(err)
		}
	}
	docPath := filepath.Join(dir, "annotations_a_instances.json")
	if err := agg.Finalize().Save(docPath); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "objs")
	s, err := run(docPath, dir, out, 2)
	if err != nil {
		t.Fatal(err)
	}
	if s.Succeeded != 1 || s.Failed != 1 || s.Failures[0].Path != "2" {
		t.Errorf("summary = %+v", s)
	}
	if _, err := os.Stat(filepath.Join(out, "1.png")); err != nil {
		t.Errorf("object 1 not written: %v", err)
	}
}
