package escpos

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/printerr"
)

// EncodeImageFile decodes an image container (PNG, JPEG, GIF, BMP or WebP),
// binarizes it at threshold and frames it as a raster print job. Input that
// is not a complete image fails with *printerr.DecodeError.
func EncodeImageFile(data []byte, threshold int) ([]byte, error) {
	if threshold < 0 || threshold > 255 {
		return nil, &printerr.ValidationError{Field: "threshold", Reason: "must be between 0 and 255"}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &printerr.DecodeError{Err: err}
	}
	if (cfg.Width+7)/8 > maxRasterField || cfg.Height > maxRasterField {
		return nil, &printerr.ValidationError{Field: "image", Reason: "image exceeds 65535 bytes per row or 65535 rows"}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &printerr.DecodeError{Err: err}
	}

	return EncodeRasterImage(Quantize(FromImage(img), threshold))
}
