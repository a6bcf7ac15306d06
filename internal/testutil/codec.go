package testutil

import (
	"bytes"
	"errors"
	"sync"

	"backer-go/internal/backer"
)

// CorruptPrefix marks content the stub codec refuses to decode.
var CorruptPrefix = []byte("corrupt")

// StubThumbnailCodec returns "thumb:" + content, and fails for content
// starting with CorruptPrefix.
type StubThumbnailCodec struct {
	mu    sync.Mutex
	calls int
}

func (c *StubThumbnailCodec) Thumbnail(data []byte, width, height int) ([]byte, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if bytes.HasPrefix(data, CorruptPrefix) {
		return nil, errors.New("unsupported image")
	}
	return append([]byte("thumb:"), data...), nil
}

// Calls returns how many thumbnails were requested.
func (c *StubThumbnailCodec) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// StubExifView is a fixed set of EXIF fields.
type StubExifView struct {
	DateTimes      map[backer.ExifTag]string
	OrientationVal uint16
}

func (v *StubExifView) DateTime(tag backer.ExifTag) (string, bool) {
	s, ok := v.DateTimes[tag]
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func (v *StubExifView) Orientation() (uint16, bool) {
	return v.OrientationVal, v.OrientationVal != 0
}

// StubExifExtractor returns the view registered for a file's exact content.
type StubExifExtractor struct {
	mu    sync.Mutex
	views map[string]*StubExifView
}

func NewStubExifExtractor() *StubExifExtractor {
	return &StubExifExtractor{views: make(map[string]*StubExifView)}
}

// Set registers view for content.
func (e *StubExifExtractor) Set(content []byte, view *StubExifView) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.views[string(content)] = view
}

func (e *StubExifExtractor) Extract(data []byte) (backer.ExifView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	view, ok := e.views[string(data)]
	if !ok {
		return nil, errors.New("no exif")
	}
	return view, nil
}
