// Package raster holds the dense per-pixel grids that flow through the
// pipeline and their lossless PNG encodings.
package raster

import (
	"image"
	"image/color"

	"github.com/model-collapse/panoptic-prep/labels"
)

// Color is a row-major grid of RGB triples.
type Color struct {
	Width, Height int
	Pix           []uint8
}

func NewColor(w, h int) *Color {
	return &Color{Width: w, Height: h, Pix: make([]uint8, 3*w*h)}
}

func (c *Color) At(x, y int) labels.Color {
	i := 3 * (y*c.Width + x)
	return labels.Color{R: c.Pix[i], G: c.Pix[i+1], B: c.Pix[i+2]}
}

func (c *Color) Set(x, y int, v labels.Color) {
	i := 3 * (y*c.Width + x)
	c.Pix[i], c.Pix[i+1], c.Pix[i+2] = v.R, v.G, v.B
}

// Fill paints the rectangle [x0,x1)x[y0,y1).
func (c *Color) Fill(r image.Rectangle, v labels.Color) {
	r = r.Intersect(image.Rect(0, 0, c.Width, c.Height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c.Set(x, y, v)
		}
	}
}

// Remap replaces every pixel whose color is a key of m and returns the
// number of pixels changed.
func (c *Color) Remap(m map[labels.Color]labels.Color) (n int) {
	if len(m) == 0 {
		return
	}
	for i := 0; i < len(c.Pix); i += 3 {
		to, ok := m[labels.Color{R: c.Pix[i], G: c.Pix[i+1], B: c.Pix[i+2]}]
		if !ok {
			continue
		}
		c.Pix[i], c.Pix[i+1], c.Pix[i+2] = to.R, to.G, to.B
		n++
	}
	return
}

// ColorFromImage copies the RGB channels of img. Alpha is ignored: label
// colormaps are opaque and their channels are read as stored.
func ColorFromImage(img image.Image) *Color {
	b := img.Bounds()
	ret := NewColor(b.Dx(), b.Dy())

	switch m := img.(type) {
	case *image.RGBA:
		copyRGB(ret, m.Pix, m.Stride, 4)
	case *image.NRGBA:
		copyRGB(ret, m.Pix, m.Stride, 4)
	default:
		for y := 0; y < ret.Height; y++ {
			for x := 0; x < ret.Width; x++ {
				nc := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				ret.Set(x, y, labels.Color{R: nc.R, G: nc.G, B: nc.B})
			}
		}
	}
	return ret
}

func copyRGB(dst *Color, pix []uint8, stride, bpp int) {
	for y := 0; y < dst.Height; y++ {
		row := pix[y*stride:]
		o := 3 * y * dst.Width
		for x := 0; x < dst.Width; x++ {
			dst.Pix[o], dst.Pix[o+1], dst.Pix[o+2] = row[x*bpp], row[x*bpp+1], row[x*bpp+2]
			o += 3
		}
	}
}

// Image returns an opaque RGBA copy, which the PNG encoder writes as 8-bit
// RGB.
func (c *Color) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	for i, j := 0, 0; i < len(c.Pix); i, j = i+3, j+4 {
		img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3] = c.Pix[i], c.Pix[i+1], c.Pix[i+2], 0xff
	}
	return img
}

// Instance is a row-major grid of instance values. 0 is background.
type Instance struct {
	Width, Height int
	Pix           []uint32
}

func NewInstance(w, h int) *Instance {
	return &Instance{Width: w, Height: h, Pix: make([]uint32, w*h)}
}

func (r *Instance) At(x, y int) uint32 {
	return r.Pix[y*r.Width+x]
}

func (r *Instance) Set(x, y int, v uint32) {
	r.Pix[y*r.Width+x] = v
}
