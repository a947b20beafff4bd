package coco

import (
	"fmt"
	"path"
	"strings"

	"github.com/model-collapse/panoptic-prep/labels"
	"github.com/model-collapse/panoptic-prep/panoptic"
)

// Aggregator collects per-image results into one Document. Ids start at 1
// and follow call order, so callers feed it in a fixed file order to get the
// same ids on every run. It is not safe for concurrent use.
type Aggregator struct {
	reg  *labels.Registry
	mode panoptic.Mode

	images   []ImageInfo
	byFile   map[string]int
	segments map[int][]SegmentInfo
	objects  []InstanceAnnotation
	used     map[uint32]bool
	nextAnn  int
}

func NewAggregator(reg *labels.Registry, mode panoptic.Mode) *Aggregator {
	return &Aggregator{
		reg:      reg,
		mode:     mode,
		byFile:   make(map[string]int),
		segments: make(map[int][]SegmentInfo),
		used:     make(map[uint32]bool),
		nextAnn:  1,
	}
}

// RegisterImage returns the id of fileName, assigning the next one on the
// first call for that name.
func (a *Aggregator) RegisterImage(fileName string, width, height int) int {
	if id, ok := a.byFile[fileName]; ok {
		return id
	}
	id := len(a.images) + 1
	a.images = append(a.images, ImageInfo{ID: id, FileName: fileName, Width: width, Height: height})
	a.byFile[fileName] = id
	return id
}

// AddSegment records one segment of a registered image and returns its
// annotation id. Only instances documents serialize annotation ids; panoptic
// segments are identified by their packed value.
func (a *Aggregator) AddSegment(imageID int, s panoptic.Segment) (int, error) {
	if imageID < 1 || imageID > len(a.images) {
		return 0, fmt.Errorf("image id %d is not registered", imageID)
	}

	id := a.nextAnn
	a.nextAnn++
	a.used[s.CategoryID] = true

	switch a.mode {
	case panoptic.ModeInstances:
		a.objects = append(a.objects, InstanceAnnotation{
			ID:           id,
			ImageID:      imageID,
			CategoryID:   s.CategoryID,
			Segmentation: s.Polygons,
			Area:         s.Area,
			BBox:         s.BBox,
			BBoxMode:     BBoxModeXYWHAbs,
		})
	default:
		a.segments[imageID] = append(a.segments[imageID], SegmentInfo{
			ID:         s.ID,
			CategoryID: s.CategoryID,
			Area:       s.Area,
			BBox:       s.BBox,
			BBoxMode:   BBoxModeXYWHAbs,
		})
	}
	return id, nil
}

func (a *Aggregator) Images() int { return len(a.images) }

func (a *Aggregator) Annotations() int { return a.nextAnn - 1 }

// Finalize builds the document. Panoptic documents list every evaluated
// class; instances documents only the classes at least one object uses.
func (a *Aggregator) Finalize() *Document {
	d := &Document{Images: append([]ImageInfo{}, a.images...)}

	switch a.mode {
	case panoptic.ModeInstances:
		d.Annotations = append([]InstanceAnnotation{}, a.objects...)
		for _, l := range a.reg.Labels() {
			if a.used[l.ID] {
				d.Categories = append(d.Categories, NewCategory(l))
			}
		}
	default:
		anns := make([]PanopticAnnotation, 0, len(a.images))
		for _, img := range a.images {
			segs := a.segments[img.ID]
			if segs == nil {
				segs = []SegmentInfo{}
			}
			anns = append(anns, PanopticAnnotation{
				ImageID:      img.ID,
				FileName:     PanopticFileName(img.FileName),
				SegmentsInfo: segs,
			})
		}
		d.Annotations = anns
		d.Categories = Categories(a.reg)
	}
	if d.Categories == nil {
		d.Categories = []Category{}
	}
	return d
}

// PanopticFileName is the name of the panoptic PNG written for a label file.
func PanopticFileName(fileName string) string {
	return strings.TrimSuffix(fileName, path.Ext(fileName)) + ".png"
}
