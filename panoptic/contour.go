package panoptic

import (
	"image"

	"github.com/model-collapse/panoptic-prep/raster"
)

// Directions in clockwise order on a y-down grid, so (d+1)%4 is a right turn.
const (
	east = iota
	south
	west
	north
)

var steps = [4]image.Point{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}

// Contours traces the pixel-edge boundaries of the pixels of r equal to v
// inside box. Every ring is closed implicitly and keeps the mask on its right
// hand side: outer boundaries run clockwise on screen, holes counter-clockwise.
// At vertices where two mask pixels touch only diagonally the walk turns right,
// which keeps such pixels in separate rings, matching 4-connectivity.
func Contours(r *raster.Instance, v uint32, box BBox) [][]image.Point {
	x0, y0, w, h := box[0], box[1], box[2], box[3]
	inside := func(x, y int) bool {
		if x < 0 || y < 0 || x >= w || y >= h {
			return false
		}
		return r.At(x0+x, y0+y) == v
	}

	// One bit per outgoing direction at every pixel corner of the box.
	vw := w + 1
	edges := make([]uint8, vw*(h+1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !inside(x, y) {
				continue
			}
			if !inside(x, y-1) {
				edges[y*vw+x] |= 1 << east
			}
			if !inside(x+1, y) {
				edges[y*vw+x+1] |= 1 << south
			}
			if !inside(x, y+1) {
				edges[(y+1)*vw+x+1] |= 1 << west
			}
			if !inside(x-1, y) {
				edges[(y+1)*vw+x] |= 1 << north
			}
		}
	}

	var rings [][]image.Point
	for start := range edges {
		for edges[start] != 0 {
			d := firstDir(edges[start])
			var ring []image.Point
			at := start
			for {
				edges[at] &^= 1 << d
				p := image.Point{X: at % vw, Y: at / vw}
				ring = append(ring, p.Add(image.Point{X: x0, Y: y0}))
				p = p.Add(steps[d])
				at = p.Y*vw + p.X
				if at == start {
					break
				}
				nd, ok := turn(edges[at], d)
				if !ok {
					break
				}
				d = nd
			}
			rings = append(rings, corners(ring))
		}
	}
	return rings
}

func firstDir(bits uint8) int {
	for d := east; d <= north; d++ {
		if bits&(1<<d) != 0 {
			return d
		}
	}
	return -1
}

func turn(bits uint8, d int) (int, bool) {
	for _, nd := range [3]int{(d + 1) % 4, d, (d + 3) % 4} {
		if bits&(1<<nd) != 0 {
			return nd, true
		}
	}
	return 0, false
}

// corners drops the vertices where a ring continues straight on.
func corners(ring []image.Point) []image.Point {
	n := len(ring)
	if n < 3 {
		return ring
	}
	ret := make([]image.Point, 0, n)
	for i, p := range ring {
		prev := ring[(i+n-1)%n]
		next := ring[(i+1)%n]
		if p.Sub(prev) != next.Sub(p) {
			ret = append(ret, p)
		}
	}
	return ret
}
