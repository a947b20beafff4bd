package raster

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

func decodePNG(path string) (img image.Image, err error) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	img, err = png.Decode(f)
	if err != nil {
		err = fmt.Errorf("decode %s: %w", path, err)
	}
	return
}

func LoadColor(path string) (*Color, error) {
	img, err := decodePNG(path)
	if err != nil {
		return nil, err
	}
	return ColorFromImage(img), nil
}

// LoadInstanceIDs reads a 16-bit grayscale instance-id PNG.
func LoadInstanceIDs(path string) (*Instance, error) {
	img, err := decodePNG(path)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	ret := NewInstance(b.Dx(), b.Dy())
	switch m := img.(type) {
	case *image.Gray16:
		for y := 0; y < ret.Height; y++ {
			for x := 0; x < ret.Width; x++ {
				ret.Set(x, y, uint32(m.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	case *image.Gray:
		for y := 0; y < ret.Height; y++ {
			for x := 0; x < ret.Width; x++ {
				ret.Set(x, y, uint32(m.GrayAt(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	default:
		return nil, fmt.Errorf("%s: instance ids must be grayscale, got %T", path, img)
	}
	return ret, nil
}

// InstanceIDsImage converts r to 16-bit grayscale. Values above 65535 cannot
// be represented and are reported instead of truncated.
func InstanceIDsImage(r *Instance) (*image.Gray16, error) {
	img := image.NewGray16(image.Rect(0, 0, r.Width, r.Height))
	for i, v := range r.Pix {
		if v > 0xffff {
			return nil, fmt.Errorf("instance value %d at pixel %d does not fit 16 bits", v, i)
		}
		img.Pix[2*i] = uint8(v >> 8)
		img.Pix[2*i+1] = uint8(v)
	}
	return img, nil
}

// WritePNG encodes img to path through a temporary file in the same
// directory, so a path either holds a complete image or nothing new.
func WritePNG(path string, img image.Image) (err error) {
	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = png.Encode(tmp, img); err != nil {
		return
	}
	if err = tmp.Close(); err != nil {
		return
	}
	return os.Rename(tmp.Name(), path)
}
