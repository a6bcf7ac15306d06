package backer

// DigestFunc computes the content hash of a file. It must be deterministic.
type DigestFunc func(data []byte) string

// ExifExtractor parses EXIF metadata from image bytes.
type ExifExtractor interface {
	// Extract returns the EXIF view of data, or an error if data carries none
	// or it cannot be parsed. Callers treat any error as "no EXIF".
	Extract(data []byte) (ExifView, error)
}

// ThumbnailCodec decodes an image and renders a thumbnail that fits in
// width x height, encoded as JPEG.
type ThumbnailCodec interface {
	Thumbnail(data []byte, width, height int) ([]byte, error)
}
