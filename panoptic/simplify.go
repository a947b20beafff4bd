package panoptic

import (
	"image"
	"math"
)

// SimplifyRing applies Ramer-Douglas-Peucker to a closed ring. The ring is
// split at the vertex farthest from its first vertex and both halves are
// simplified as open polylines, so the first vertex always survives.
func SimplifyRing(ring []image.Point, tolerance float64) []image.Point {
	n := len(ring)
	if n < 3 || tolerance <= 0 {
		return ring
	}

	far, best := 0, -1.0
	for i := 1; i < n; i++ {
		if d := dist(ring[i], ring[0]); d > best {
			far, best = i, d
		}
	}

	closed := make([]image.Point, n+1)
	copy(closed, ring)
	closed[n] = ring[0]

	a := simplifyLine(closed[:far+1], tolerance)
	b := simplifyLine(closed[far:], tolerance)
	ret := make([]image.Point, 0, len(a)+len(b))
	ret = append(ret, a[:len(a)-1]...)
	ret = append(ret, b[:len(b)-1]...)
	return ret
}

func simplifyLine(pts []image.Point, tolerance float64) []image.Point {
	if len(pts) < 3 {
		return pts
	}
	keep := make([]bool, len(pts))
	keep[0], keep[len(pts)-1] = true, true

	type span struct{ i, j int }
	stack := []span{{0, len(pts) - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		idx, best := -1, tolerance
		for k := s.i + 1; k < s.j; k++ {
			if d := segmentDist(pts[k], pts[s.i], pts[s.j]); d > best {
				idx, best = k, d
			}
		}
		if idx < 0 {
			continue
		}
		keep[idx] = true
		stack = append(stack, span{s.i, idx}, span{idx, s.j})
	}

	ret := make([]image.Point, 0, len(pts))
	for i, p := range pts {
		if keep[i] {
			ret = append(ret, p)
		}
	}
	return ret
}

func dist(a, b image.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

func segmentDist(p, a, b image.Point) float64 {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return dist(p, a)
	}
	t := (float64(p.X-a.X)*dx + float64(p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(float64(p.X)-(float64(a.X)+t*dx), float64(p.Y)-(float64(a.Y)+t*dy))
}
