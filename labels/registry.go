package labels

import (
	"fmt"
)

// Registry is the read-only lookup view of one taxonomy variant. It is built
// once at startup and shared by every worker without locking.
type Registry struct {
	variant Variant
	labels  []Label
	byColor map[Color]Label
	byID    map[uint32]Label
}

func New(v Variant) (*Registry, error) {
	ls, err := Labels(v)
	if err != nil {
		return nil, err
	}
	return NewFromLabels(v, ls)
}

// NewFromLabels validates a catalog and builds its lookups.
func NewFromLabels(v Variant, ls []Label) (*Registry, error) {
	r := &Registry{
		variant: v,
		labels:  ls,
		byColor: make(map[Color]Label, len(ls)),
		byID:    make(map[uint32]Label, len(ls)),
	}

	for _, l := range ls {
		if l.ID >= InstanceBase {
			return nil, fmt.Errorf("%w: label %q id %d exceeds %d", ErrMalformedCatalog, l.Name, l.ID, InstanceBase-1)
		}
		if _, dup := r.byID[l.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d (%q)", ErrMalformedCatalog, l.ID, l.Name)
		}
		if l.Color == Background {
			if l.ID != 0 || !l.IgnoreInEval {
				return nil, fmt.Errorf("%w: background color must be id 0 and ignored, got %q", ErrMalformedCatalog, l.Name)
			}
		} else if l.ID == 0 {
			return nil, fmt.Errorf("%w: id 0 is reserved for the background color, got %q %v", ErrMalformedCatalog, l.Name, l.Color)
		}
		if prev, dup := r.byColor[l.Color]; dup {
			return nil, fmt.Errorf("%w: color %v shared by %q and %q", ErrMalformedCatalog, l.Color, prev.Name, l.Name)
		}
		r.byID[l.ID] = l
		r.byColor[l.Color] = l
	}

	if _, ok := r.byID[0]; !ok {
		return nil, fmt.Errorf("%w: missing background label", ErrMalformedCatalog)
	}
	return r, nil
}

func (r *Registry) Variant() Variant { return r.variant }

func (r *Registry) Labels() []Label {
	ret := make([]Label, len(r.labels))
	copy(ret, r.labels)
	return ret
}

func (r *Registry) ByColor(c Color) (Label, error) {
	l, ok := r.byColor[c]
	if !ok {
		return Label{}, fmt.Errorf("%w: color %v in %s", ErrUnknownLabel, c, r.variant)
	}
	return l, nil
}

func (r *Registry) ByID(id uint32) (Label, error) {
	l, ok := r.byID[id]
	if !ok {
		return Label{}, fmt.Errorf("%w: id %d in %s", ErrUnknownLabel, id, r.variant)
	}
	return l, nil
}

func (r *Registry) ColorToLabel() map[Color]Label {
	ret := make(map[Color]Label, len(r.byColor))
	for k, v := range r.byColor {
		ret[k] = v
	}
	return ret
}

func (r *Registry) IDToLabel() map[uint32]Label {
	ret := make(map[uint32]Label, len(r.byID))
	for k, v := range r.byID {
		ret[k] = v
	}
	return ret
}

// ClassID resolves an instance raster value to the label id it belongs to.
// Values at or above InstanceBase are packed id*InstanceBase+ordinal.
func ClassID(v uint32) uint32 {
	if v < InstanceBase {
		return v
	}
	return v / InstanceBase
}
