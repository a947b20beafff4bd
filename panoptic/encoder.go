// Package panoptic derives the panoptic PNG and the COCO segment records of
// one image from its instance raster.
package panoptic

import (
	"errors"
	"fmt"
	"image"
	"sort"

	"github.com/model-collapse/panoptic-prep/labels"
	"github.com/model-collapse/panoptic-prep/raster"
)

var ErrDegenerateGeometry = errors.New("degenerate geometry")

type Mode string

const (
	// ModePanoptic emits every segment, stuff and things, plus the panoptic image.
	ModePanoptic Mode = "panoptic"
	// ModeInstances emits polygon records for instance-bearing classes only.
	ModeInstances Mode = "instances"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModePanoptic, ModeInstances:
		return m, nil
	}
	return "", fmt.Errorf("invalid mode %q (use 'panoptic' or 'instances')", s)
}

const DefaultTolerance = 1.0

// BBox is x, y, width, height in pixels.
type BBox [4]int

func (b BBox) Rect() image.Rectangle {
	return image.Rect(b[0], b[1], b[0]+b[2], b[1]+b[3])
}

type Segment struct {
	ID         uint32      `cbor:"1,keyasint"`
	CategoryID uint32      `cbor:"2,keyasint"`
	Area       int         `cbor:"3,keyasint"`
	BBox       BBox        `cbor:"4,keyasint"`
	Polygons   [][]float64 `cbor:"5,keyasint,omitempty"`
}

type Encoded struct {
	// Panoptic is nil in instances mode.
	Panoptic *image.RGBA
	Segments []Segment
	// Dropped lists the values whose polygons all degenerated.
	Dropped []uint32
}

type Encoder struct {
	Registry  *labels.Registry
	Mode      Mode
	Tolerance float64
}

func NewEncoder(reg *labels.Registry, mode Mode) *Encoder {
	return &Encoder{Registry: reg, Mode: mode, Tolerance: DefaultTolerance}
}

type extent struct {
	area                   int
	minX, minY, maxX, maxY int
}

func (e *Encoder) Encode(r *raster.Instance) (*Encoded, error) {
	ret := &Encoded{}
	var pan *image.RGBA
	if e.Mode == ModePanoptic {
		pan = image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
		for i := 3; i < len(pan.Pix); i += 4 {
			pan.Pix[i] = 0xff
		}
		ret.Panoptic = pan
	}

	stats := make(map[uint32]*extent)
	var last uint32
	var cur *extent
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			p := y*r.Width + x
			v := r.Pix[p]
			if v == 0 {
				continue
			}
			if v != last || cur == nil {
				cur = stats[v]
				if cur == nil {
					cur = &extent{minX: x, minY: y, maxX: x, maxY: y}
					stats[v] = cur
				}
				last = v
			}
			cur.area++
			cur.minX = min(cur.minX, x)
			cur.maxX = max(cur.maxX, x)
			cur.maxY = y

			if pan != nil {
				pan.Pix[4*p], pan.Pix[4*p+1], pan.Pix[4*p+2] = Pack(v)
			}
		}
	}

	values := make([]uint32, 0, len(stats))
	for v := range stats {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	for _, v := range values {
		lbl, err := e.Registry.ByID(labels.ClassID(v))
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", v, err)
		}
		if e.Mode == ModeInstances && !lbl.HasInstances {
			continue
		}

		s := stats[v]
		seg := Segment{
			ID:         v,
			CategoryID: lbl.ID,
			Area:       s.area,
			BBox:       BBox{s.minX, s.minY, s.maxX - s.minX + 1, s.maxY - s.minY + 1},
		}

		if e.Mode == ModeInstances {
			seg.Polygons, err = e.polygons(r, v, seg.BBox)
			if errors.Is(err, ErrDegenerateGeometry) {
				ret.Dropped = append(ret.Dropped, v)
				continue
			}
		}
		ret.Segments = append(ret.Segments, seg)
	}
	return ret, nil
}

// polygons returns the simplified boundary rings of v as flat x,y lists.
func (e *Encoder) polygons(r *raster.Instance, v uint32, box BBox) ([][]float64, error) {
	var ret [][]float64
	for _, ring := range Contours(r, v, box) {
		ring = SimplifyRing(ring, e.Tolerance)
		if len(ring) < 3 {
			continue
		}
		flat := make([]float64, 0, 2*len(ring))
		for _, p := range ring {
			flat = append(flat, float64(p.X), float64(p.Y))
		}
		ret = append(ret, flat)
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("%w: segment %d", ErrDegenerateGeometry, v)
	}
	return ret, nil
}

// Pack encodes an instance value as R + 256*G + 65536*B.
func Pack(v uint32) (r, g, b uint8) {
	return uint8(v), uint8(v >> 8), uint8(v >> 16)
}

func Unpack(r, g, b uint8) uint32 {
	return uint32(r) + uint32(g)<<8 + uint32(b)<<16
}
