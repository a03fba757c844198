package escpos

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/printerr"
)

func TestEncodeRasterImage_Framing(t *testing.T) {
	bm := MonoBitmap{Width: 16, Height: 2, BytesPerRow: 2, Data: []byte{0xFF, 0x00, 0x0F, 0xF0}}

	got, err := EncodeRasterImage(bm)
	if err != nil {
		t.Fatalf("EncodeRasterImage failed: %v", err)
	}

	want := []byte{
		0x1B, 0x40,
		0x1B, 0x61, 0x01,
		0x1D, 0x76, 0x30, 0x00, 0x02, 0x00, 0x02, 0x00,
		0xFF, 0x00, 0x0F, 0xF0,
		0x0A, 0x0A,
		0x1D, 0x56, 0x42, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("unexpected framing:\n got=% x\nwant=% x", got, want)
	}
}

func TestEncodeRasterImage_LittleEndianFields(t *testing.T) {
	bm := MonoBitmap{Width: 2400, Height: 513, BytesPerRow: 300}
	bm.Data = make([]byte, 300*513)

	got, err := EncodeRasterImage(bm)
	if err != nil {
		t.Fatalf("EncodeRasterImage failed: %v", err)
	}
	head := got[5:13]
	want := []byte{0x1D, 0x76, 0x30, 0x00, 0x2C, 0x01, 0x01, 0x02}
	if !bytes.Equal(head, want) {
		t.Fatalf("unexpected header: % x", head)
	}
	if len(got) != 5+8+len(bm.Data)+2+4 {
		t.Fatalf("unexpected length: %d", len(got))
	}
}

func TestEncodeRasterImage_MaxHeight(t *testing.T) {
	got, err := EncodeRasterImage(MonoBitmap{Height: 0xFFFF})
	if err != nil {
		t.Fatalf("EncodeRasterImage failed: %v", err)
	}
	if got[11] != 0xFF || got[12] != 0xFF {
		t.Fatalf("unexpected height bytes: % x", got[11:13])
	}
}

func TestEncodeRasterImage_Rejects(t *testing.T) {
	cases := []struct {
		name string
		bm   MonoBitmap
	}{
		{"too tall", MonoBitmap{Height: 0x10000}},
		{"too wide", MonoBitmap{Width: 0x10000 * 8, BytesPerRow: 0x10000}},
		{"short data", MonoBitmap{Width: 8, Height: 2, BytesPerRow: 1, Data: []byte{0xFF}}},
		{"stride mismatch", MonoBitmap{Width: 8, Height: 1, BytesPerRow: 2, Data: []byte{0, 0}}},
		{"negative", MonoBitmap{Width: -1}},
	}

	for _, tc := range cases {
		_, err := EncodeRasterImage(tc.bm)
		var verr *printerr.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
		}
	}
}
