package main

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/model-collapse/panoptic-prep/coco"
	"github.com/model-collapse/panoptic-prep/labels"
)

func drawSegmentsOnImage(img gocv.Mat, segs []coco.SegmentInfo, reg *labels.Registry) {
	byID := reg.IDToLabel()
	for _, s := range segs {
		bbox := s.BBox.Rect()
		name := byID[s.CategoryID].Name
		if s.ID >= labels.InstanceBase {
			name = fmt.Sprintf("%s #%d", name, s.ID%labels.InstanceBase)
		}
		gocv.Rectangle(&img, bbox, color.RGBA{255, 255, 0, 0}, 1)
		gocv.PutText(&img, name, image.Pt(bbox.Min.X, bbox.Max.Y), gocv.FontHersheyComplex, 0.5, color.RGBA{255, 0, 0, 255}, 1)
	}
}

// renderPreview returns the image at path as JPEG, with segs drawn on it.
func renderPreview(path string, segs []coco.SegmentInfo, reg *labels.Registry) ([]byte, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("cannot read image %s", path)
	}
	defer img.Close()

	drawSegmentsOnImage(img, segs, reg)

	return gocv.IMEncode(gocv.JPEGFileExt, img)
}
