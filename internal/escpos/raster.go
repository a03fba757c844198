package escpos

import (
	"bytes"
	"strconv"

	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/printerr"
)

// maxRasterField is the largest value the 16-bit GS v 0 size fields carry.
const maxRasterField = 0xFFFF

// EncodeRasterImage frames bm as a centered GS v 0 raster image followed by
// a short feed and a partial cut.
func EncodeRasterImage(bm MonoBitmap) ([]byte, error) {
	if bm.Width < 0 || bm.Height < 0 {
		return nil, &printerr.ValidationError{Field: "image", Reason: "negative dimensions"}
	}
	if bm.BytesPerRow != (bm.Width+7)/8 {
		return nil, &printerr.ValidationError{Field: "image", Reason: "bytesPerRow " + strconv.Itoa(bm.BytesPerRow) + " does not match width " + strconv.Itoa(bm.Width)}
	}
	if bm.BytesPerRow > maxRasterField || bm.Height > maxRasterField {
		return nil, &printerr.ValidationError{Field: "image", Reason: "image exceeds 65535 bytes per row or 65535 rows"}
	}
	if len(bm.Data) != bm.BytesPerRow*bm.Height {
		return nil, &printerr.ValidationError{Field: "image", Reason: "bitmap data length " + strconv.Itoa(len(bm.Data)) + " does not match " + strconv.Itoa(bm.BytesPerRow*bm.Height)}
	}

	xL, xH := lowHigh(bm.BytesPerRow)
	yL, yH := lowHigh(bm.Height)

	var buf bytes.Buffer
	buf.Grow(len(cmdReset) + len(cmdAlignCenter) + 8 + len(bm.Data) + 2 + len(cmdPartialCut))
	buf.Write(cmdReset)
	buf.Write(cmdAlignCenter)
	buf.Write(cmdRasterHead)
	buf.Write([]byte{RasterModeNormal, xL, xH, yL, yH})
	buf.Write(bm.Data)
	buf.Write([]byte{lf, lf})
	buf.Write(cmdPartialCut)
	return buf.Bytes(), nil
}
