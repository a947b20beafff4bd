package main

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/llgcode/draw2d"
	"github.com/llgcode/draw2d/draw2dimg"
)

// extractBoundingBox returns the pixel rectangle covering every ring.
// Vertices lie on pixel corners, so the rectangle is exclusive at Max.
func extractBoundingBox(rings [][]float64) (r image.Rectangle) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)

	for _, bds := range rings {
		for i := 0; i+1 < len(bds); i += 2 {
			minX, maxX = math.Min(minX, bds[i]), math.Max(maxX, bds[i])
			minY, maxY = math.Min(minY, bds[i+1]), math.Max(maxY, bds[i+1])
		}
	}
	if minX > maxX {
		return
	}

	r.Min = image.Pt(int(math.Floor(minX)), int(math.Floor(minY)))
	r.Max = image.Pt(int(math.Ceil(maxX)), int(math.Ceil(maxY)))
	return
}

// polygonMask fills the rings into an alpha mask covering bnd. The even-odd
// rule turns hole rings into holes.
func polygonMask(rings [][]float64, bnd image.Rectangle) *image.RGBA {
	mask := image.NewRGBA(image.Rect(0, 0, bnd.Dx(), bnd.Dy()))
	gc := draw2dimg.NewGraphicContext(mask)
	gc.SetFillColor(color.RGBA{0, 0, 0, 255})
	gc.SetFillRule(draw2d.FillRuleEvenOdd)

	ox, oy := float64(bnd.Min.X), float64(bnd.Min.Y)
	for _, bc := range rings {
		if len(bc) < 6 {
			continue
		}
		gc.MoveTo(bc[0]-ox, bc[1]-oy)
		for i := 2; i+1 < len(bc); i += 2 {
			gc.LineTo(bc[i]-ox, bc[i+1]-oy)
		}
		gc.Close()
	}
	gc.Fill()

	return mask
}

// cutout copies the part of img covered by rings, transparent elsewhere.
func cutout(img image.Image, rings [][]float64) (*image.NRGBA, error) {
	bnd := extractBoundingBox(rings)
	if bnd.Empty() {
		return nil, fmt.Errorf("empty segmentation")
	}

	ibound := img.Bounds()
	if !bnd.In(ibound) {
		return nil, fmt.Errorf("boundary %v out of image scope %v", bnd, ibound)
	}

	mask := polygonMask(rings, bnd)
	patch := image.NewNRGBA(image.Rect(0, 0, bnd.Dx(), bnd.Dy()))
	for y := 0; y < patch.Rect.Max.Y; y++ {
		for x := 0; x < patch.Rect.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x+bnd.Min.X, y+bnd.Min.Y)).(color.NRGBA)
			c.A = mask.RGBAAt(x, y).A
			patch.SetNRGBA(x, y, c)
		}
	}

	return patch, nil
}
