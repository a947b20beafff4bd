// Package instance turns a semantic color raster into an instance raster by
// splitting every instance-bearing class into its 4-connected components.
package instance

import (
	"errors"
	"fmt"

	"github.com/model-collapse/panoptic-prep/labels"
	"github.com/model-collapse/panoptic-prep/raster"
)

var ErrInstanceOverflow = errors.New("instance overflow")

// MaxInstances is the number of components one class may produce per image.
const MaxInstances = labels.InstanceBase - 1

const unlabeled = -1

type Result struct {
	Raster *raster.Instance
	// Instances counts connected components per instance-bearing label id.
	Instances map[uint32]int
	// Unknown counts pixels whose color is not in the taxonomy.
	Unknown int
	// UnknownColors lists the distinct unknown colors in first-seen order.
	UnknownColors []labels.Color
}

type Labeler struct {
	reg *labels.Registry
}

func NewLabeler(reg *labels.Registry) *Labeler {
	return &Labeler{reg: reg}
}

// Label assigns every non-background pixel of src its instance value. Pixels
// are visited row-major, so the ordinal of a component is fixed by the
// position of its first pixel and the output is reproducible.
func (l *Labeler) Label(src *raster.Color) (*Result, error) {
	w, h := src.Width, src.Height
	n := w * h

	classes, byIndex, unknown := l.classify(src)
	ret := &Result{
		Raster:        raster.NewInstance(w, h),
		Instances:     make(map[uint32]int),
		Unknown:       unknown.pixels,
		UnknownColors: unknown.colors,
	}
	out := ret.Raster.Pix

	visited := make([]bool, n)
	ordinals := make([]uint32, len(byIndex))
	stack := make([]int32, 0, 1024)

	for p := 0; p < n; p++ {
		ci := classes[p]
		if ci == unlabeled || visited[p] {
			continue
		}

		lbl := byIndex[ci]
		if !lbl.HasInstances {
			out[p] = lbl.ID
			visited[p] = true
			continue
		}

		if ordinals[ci] >= MaxInstances {
			return nil, fmt.Errorf("%w: label %q has more than %d instances", ErrInstanceOverflow, lbl.Name, MaxInstances)
		}
		v := lbl.ID*labels.InstanceBase + ordinals[ci]
		ordinals[ci]++
		ret.Instances[lbl.ID]++

		visited[p] = true
		stack = append(stack[:0], int32(p))
		for len(stack) > 0 {
			q := int(stack[len(stack)-1])
			stack = stack[:len(stack)-1]
			out[q] = v

			x, y := q%w, q/w
			if x+1 < w && !visited[q+1] && classes[q+1] == ci {
				visited[q+1] = true
				stack = append(stack, int32(q+1))
			}
			if x > 0 && !visited[q-1] && classes[q-1] == ci {
				visited[q-1] = true
				stack = append(stack, int32(q-1))
			}
			if y+1 < h && !visited[q+w] && classes[q+w] == ci {
				visited[q+w] = true
				stack = append(stack, int32(q+w))
			}
			if y > 0 && !visited[q-w] && classes[q-w] == ci {
				visited[q-w] = true
				stack = append(stack, int32(q-w))
			}
		}
	}

	return ret, nil
}

type unknownStats struct {
	pixels int
	colors []labels.Color
}

// classify maps every pixel to an index into the returned label slice by
// exact color match. Background and unknown colors map to unlabeled. Colors
// are unique within a taxonomy, so equal indices mean equal colors.
func (l *Labeler) classify(src *raster.Color) (classes []int16, byIndex []labels.Label, unk unknownStats) {
	byIndex = l.reg.Labels()
	index := make(map[labels.Color]int16, len(byIndex))
	for i, lbl := range byIndex {
		if lbl.Color == labels.Background {
			index[lbl.Color] = unlabeled
			continue
		}
		index[lbl.Color] = int16(i)
	}

	seenUnknown := make(map[labels.Color]bool)
	classes = make([]int16, src.Width*src.Height)

	var last labels.Color
	lastClass := index[labels.Background]
	for p := range classes {
		c := labels.Color{R: src.Pix[3*p], G: src.Pix[3*p+1], B: src.Pix[3*p+2]}
		if c != last {
			ci, ok := index[c]
			if !ok {
				ci = unlabeled
				unk.pixels++
				if !seenUnknown[c] {
					seenUnknown[c] = true
					unk.colors = append(unk.colors, c)
				}
				classes[p] = ci
				continue
			}
			last, lastClass = c, ci
		}
		classes[p] = lastClass
	}
	return
}
