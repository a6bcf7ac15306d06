package media

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"

	"backer-go/internal/backer"
)

// DefaultJPEGQuality is the quality thumbnails are encoded at.
const DefaultJPEGQuality = 90

// ThumbnailCodec renders JPEG thumbnails with imaging.
// EXIF orientation is not applied.
type ThumbnailCodec struct {
	quality int
}

// NewThumbnailCodec creates a codec encoding at quality (1-100).
// Out-of-range values select DefaultJPEGQuality.
func NewThumbnailCodec(quality int) *ThumbnailCodec {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &ThumbnailCodec{quality: quality}
}

// Thumbnail decodes data and scales it to fit in width x height, keeping the
// aspect ratio. Images already inside the box keep their size.
func (c *ThumbnailCodec) Thumbnail(data []byte, width, height int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	thumb := imaging.Fit(img, width, height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(c.quality)); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

var _ backer.ThumbnailCodec = (*ThumbnailCodec)(nil)
