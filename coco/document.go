// Package coco holds the COCO-style dataset document and the aggregator that
// assigns its image and annotation ids.
package coco

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/model-collapse/panoptic-prep/labels"
	"github.com/model-collapse/panoptic-prep/panoptic"
)

// BBoxModeXYWHAbs marks [x, y, width, height] boxes in absolute pixels.
const BBoxModeXYWHAbs = 1

type ImageInfo struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type SegmentInfo struct {
	ID         uint32        `json:"id"`
	CategoryID uint32        `json:"category_id"`
	Area       int           `json:"area"`
	BBox       panoptic.BBox `json:"bbox"`
	BBoxMode   int           `json:"bbox_mode"`
	IsCrowd    int           `json:"iscrowd"`
}

// PanopticAnnotation is the per-image record of a panoptic document.
type PanopticAnnotation struct {
	ImageID      int           `json:"image_id"`
	FileName     string        `json:"file_name"`
	SegmentsInfo []SegmentInfo `json:"segments_info"`
}

// InstanceAnnotation is one object of an instances document.
type InstanceAnnotation struct {
	ID           int           `json:"id"`
	ImageID      int           `json:"image_id"`
	CategoryID   uint32        `json:"category_id"`
	Segmentation [][]float64   `json:"segmentation"`
	Area         int           `json:"area"`
	BBox         panoptic.BBox `json:"bbox"`
	BBoxMode     int           `json:"bbox_mode"`
	IsCrowd      int           `json:"iscrowd"`
}

type Category struct {
	ID            uint32   `json:"id"`
	Name          string   `json:"name"`
	Color         [3]uint8 `json:"color"`
	SuperCategory string   `json:"supercategory"`
	IsThing       int      `json:"isthing"`
}

// Document is the dataset-level annotation file. Exactly one of the two
// annotation lists is used, depending on the mode it was built in.
type Document struct {
	Images      []ImageInfo `json:"images"`
	Annotations interface{} `json:"annotations"`
	Categories  []Category  `json:"categories"`
}

// PanopticDocument and InstancesDocument are the typed forms used when
// reading a document back.
type PanopticDocument struct {
	Images      []ImageInfo          `json:"images"`
	Annotations []PanopticAnnotation `json:"annotations"`
	Categories  []Category           `json:"categories"`
}

type InstancesDocument struct {
	Images      []ImageInfo          `json:"images"`
	Annotations []InstanceAnnotation `json:"annotations"`
	Categories  []Category           `json:"categories"`
}

func NewCategory(l labels.Label) Category {
	c := Category{
		ID:            l.ID,
		Name:          l.Name,
		Color:         [3]uint8{l.Color.R, l.Color.G, l.Color.B},
		SuperCategory: l.Category,
	}
	if l.HasInstances {
		c.IsThing = 1
	}
	return c
}

// Categories lists every evaluated class of the registry in catalog order.
func Categories(reg *labels.Registry) []Category {
	var ret []Category
	for _, l := range reg.Labels() {
		if l.IgnoreInEval {
			continue
		}
		ret = append(ret, NewCategory(l))
	}
	return ret
}

func writeJSON(path string, v interface{}) (err error) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return
	}
	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func (d *Document) Save(path string) error {
	return writeJSON(path, d)
}

func SaveCategories(path string, cats []Category) error {
	return writeJSON(path, cats)
}

func readJSON(path string, v interface{}) (err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	return json.Unmarshal(data, v)
}

func LoadPanoptic(path string) (ret *PanopticDocument, err error) {
	ret = &PanopticDocument{}
	err = readJSON(path, ret)
	return
}

func LoadInstances(path string) (ret *InstancesDocument, err error) {
	ret = &InstancesDocument{}
	err = readJSON(path, ret)
	return
}

func LoadCategories(path string) (ret []Category, err error) {
	err = readJSON(path, &ret)
	return
}

// BuildFileNameIndex maps image ids to their file names.
func BuildFileNameIndex(imgs []ImageInfo) (ret map[int]string) {
	ret = make(map[int]string, len(imgs))
	for _, img := range imgs {
		ret[img.ID] = img.FileName
	}
	return
}
