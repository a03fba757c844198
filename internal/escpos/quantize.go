package escpos

import (
	"image"

	"golang.org/x/image/draw"
)

// DefaultThreshold is the luminance cutoff used when the caller gives none.
const DefaultThreshold = 200

// RGBAImage is a decoded raster with non-premultiplied 8-bit RGBA pixels,
// four bytes per pixel in row-major order.
type RGBAImage struct {
	Width  int
	Height int
	Pix    []byte
}

// MonoBitmap is a 1 bit per pixel image packed MSB-first, one byte-aligned
// row after another. A set bit is a printed (dark) dot.
type MonoBitmap struct {
	Width       int
	Height      int
	BytesPerRow int
	Data        []byte
}

// FromImage converts any decoded image into an RGBAImage.
func FromImage(img image.Image) RGBAImage {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) && n.Stride == 4*b.Dx() {
		return RGBAImage{Width: b.Dx(), Height: b.Dy(), Pix: n.Pix}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return RGBAImage{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}
}

// Quantize binarizes img: a pixel prints when its luminance is below
// threshold. Fully transparent pixels are background. Pixels missing from a
// short Pix slice are background too.
func Quantize(img RGBAImage, threshold int) MonoBitmap {
	width, height := img.Width, img.Height
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	bytesPerRow := (width + 7) / 8
	out := make([]byte, bytesPerRow*height)
	cut := float64(threshold)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := (y*width + x) * 4
			if idx+3 >= len(img.Pix) {
				continue
			}
			r, g, b, a := img.Pix[idx], img.Pix[idx+1], img.Pix[idx+2], img.Pix[idx+3]
			lum := 255.0
			if a != 0 {
				lum = 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			}
			if lum < cut {
				out[y*bytesPerRow+(x>>3)] |= 1 << (7 - uint(x&7))
			}
		}
	}

	return MonoBitmap{Width: width, Height: height, BytesPerRow: bytesPerRow, Data: out}
}
