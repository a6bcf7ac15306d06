package media

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rwcarlsen/goexif/exif"

	"backer-go/internal/backer"
)

// ExifExtractor reads EXIF blocks with goexif.
type ExifExtractor struct{}

// NewExifExtractor creates an ExifExtractor.
func NewExifExtractor() *ExifExtractor {
	return &ExifExtractor{}
}

// Extract decodes the EXIF block of a JPEG.
func (e *ExifExtractor) Extract(data []byte) (view backer.ExifView, err error) {
	// goexif can panic on truncated IFDs.
	defer func() {
		if r := recover(); r != nil {
			view, err = nil, fmt.Errorf("decoding exif: %v", r)
		}
	}()

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding exif: %w", err)
	}
	return &exifView{x: x}, nil
}

type exifView struct {
	x *exif.Exif
}

func (v *exifView) DateTime(tag backer.ExifTag) (string, bool) {
	t, err := v.x.Get(exif.FieldName(tag))
	if err != nil || t.Count == 0 {
		return "", false
	}
	s, err := t.StringVal()
	if err != nil {
		return "", false
	}
	s = strings.TrimRight(s, "\x00 ")
	if s == "" {
		return "", false
	}
	return s, true
}

func (v *exifView) Orientation() (uint16, bool) {
	t, err := v.x.Get(exif.Orientation)
	if err != nil || t.Count == 0 {
		return 0, false
	}
	n, err := t.Int(0)
	if err != nil || n < 0 || n > 0xffff {
		return 0, false
	}
	return uint16(n), true
}

var _ backer.ExifExtractor = (*ExifExtractor)(nil)
