package testutil

import (
	"bytes"
	"encoding/binary"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

// JPEG returns a solid-color JPEG of the given size.
func JPEG(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()

	img := imaging.New(width, height, c)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		t.Fatalf("encoding test jpeg: %v", err)
	}
	return buf.Bytes()
}

// JPEGWithExif returns a small JPEG carrying an EXIF block with a DateTime
// field (omitted when dateTime is empty) and an Orientation field.
func JPEGWithExif(t *testing.T, dateTime string, orientation uint16) []byte {
	t.Helper()

	plain := JPEG(t, 8, 8, color.White)
	tiff := exifTIFF(dateTime, orientation)

	var out bytes.Buffer
	out.Write(plain[:2]) // SOI
	out.Write([]byte{0xFF, 0xE1})
	binary.Write(&out, binary.BigEndian, uint16(2+6+len(tiff)))
	out.WriteString("Exif\x00\x00")
	out.Write(tiff)
	out.Write(plain[2:])
	return out.Bytes()
}

// exifTIFF builds a little-endian TIFF structure with a single IFD.
func exifTIFF(dateTime string, orientation uint16) []byte {
	type ifdEntry struct {
		tag, typ uint16
		count    uint32
		value    uint32
	}

	var entries []ifdEntry
	entries = append(entries, ifdEntry{tag: 0x0112, typ: 3, count: 1, value: uint32(orientation)})

	var data []byte
	if dateTime != "" {
		data = append([]byte(dateTime), 0)
		entries = append(entries, ifdEntry{tag: 0x0132, typ: 2, count: uint32(len(data))})
	}

	// header (8) + entry count (2) + entries + next IFD offset (4)
	dataOffset := uint32(8 + 2 + 12*len(entries) + 4)

	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.WriteString("II")
	binary.Write(&buf, le, uint16(42))
	binary.Write(&buf, le, uint32(8))
	binary.Write(&buf, le, uint16(len(entries)))
	for _, e := range entries {
		if e.typ == 2 {
			e.value = dataOffset
		}
		binary.Write(&buf, le, e.tag)
		binary.Write(&buf, le, e.typ)
		binary.Write(&buf, le, e.count)
		binary.Write(&buf, le, e.value)
	}
	binary.Write(&buf, le, uint32(0))
	buf.Write(data)
	return buf.Bytes()
}
