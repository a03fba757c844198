// Package escpos encodes receipts and monochrome bitmaps into the ESC/POS
// command stream spoken by network thermal printers.
package escpos

// --- ESC/POS Command Bytes ---

const (
	esc = 0x1B
	gs  = 0x1D
	dle = 0x10
	lf  = 0x0A
)

var (
	cmdReset       = []byte{esc, 0x40}            // ESC @
	cmdAlignLeft   = []byte{esc, 0x61, 0x00}      // ESC a 0
	cmdAlignCenter = []byte{esc, 0x61, 0x01}      // ESC a 1
	cmdPartialCut  = []byte{gs, 0x56, 0x42, 0x00} // GS V B 0
	cmdRasterHead  = []byte{gs, 0x76, 0x30}       // GS v 0, followed by m xL xH yL yH
	cmdStatusReq   = []byte{dle, 0x04, 0x02}      // DLE EOT 2
)

// RasterModeNormal is the m parameter of GS v 0 for normal density.
const RasterModeNormal = 0

// StatusRequest returns the real-time status inquiry (DLE EOT 2). Many
// low-cost printers ignore it.
func StatusRequest() []byte {
	return append([]byte(nil), cmdStatusReq...)
}

// lowHigh splits v into its little-endian low and high bytes.
func lowHigh(v int) (byte, byte) {
	return byte(v & 0xff), byte((v >> 8) & 0xff)
}
