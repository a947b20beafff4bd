// Package labels holds the semantic label taxonomies of the supported
// off-road datasets and the lookups derived from them.
package labels

import (
	"errors"
	"fmt"
	"strings"
)

// InstanceBase is the packing base of instance values: a pixel of an
// instance-bearing class holds id*InstanceBase + ordinal.
const InstanceBase = 1000

var (
	ErrUnknownVariant   = errors.New("unknown dataset variant")
	ErrMalformedCatalog = errors.New("malformed label catalog")
	ErrUnknownLabel     = errors.New("unknown label")
)

type Color struct {
	R, G, B uint8
}

var Background = Color{}

func (c Color) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.R, c.G, c.B)
}

type Label struct {
	ID           uint32
	Name         string
	Category     string
	CategoryID   uint32
	HasInstances bool
	IgnoreInEval bool
	Color        Color
}

type Variant string

const (
	RUGD   Variant = "rugd"
	RELLIS Variant = "rellis"
)

func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := catalogs[v]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
	return v, nil
}

// Labels returns the ordered label list of a variant. The returned slice is a
// copy and may be modified by the caller.
func Labels(v Variant) ([]Label, error) {
	c, ok := catalogs[v]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, v)
	}
	ret := make([]Label, len(c))
	copy(ret, c)
	return ret, nil
}

// ConflictColormap pairs the label lists of two variants by position and
// maps every color of a that differs from its counterpart in b.
func ConflictColormap(a, b Variant) (map[Color]Color, error) {
	la, err := Labels(a)
	if err != nil {
		return nil, err
	}
	lb, err := Labels(b)
	if err != nil {
		return nil, err
	}

	ret := make(map[Color]Color)
	for i := 0; i < len(la) && i < len(lb); i++ {
		if la[i].Color != lb[i].Color {
			ret[la[i].Color] = lb[i].Color
		}
	}
	return ret, nil
}
