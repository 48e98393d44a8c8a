package pageimg

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
)

// ImageFormat selects the encoding of the final page image.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
)

// emptyDataURL is what a zero sized canvas encodes to in a browser.
const emptyDataURL = "data:,"

// Encoding configures Surface.Encode.
type Encoding struct {
	Format      ImageFormat
	JPEGQuality int
}

// Surface is a raster buffer owned by exactly one render session.
type Surface struct {
	mu            sync.Mutex
	img           *image.RGBA
	width         int
	height        int
	displayWidth  int
	displayHeight int
}

// NewSurface allocates a width × height RGBA raster.
func NewSurface(width, height int) *Surface {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Surface{
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		width:  width,
		height: height,
	}
}

// SetDisplaySize records the layout box the surface is shown in. It does not
// affect the raster.
func (s *Surface) SetDisplaySize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.displayWidth, s.displayHeight = width, height
}

// DisplaySize returns the layout box set by SetDisplaySize.
func (s *Surface) DisplaySize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayWidth, s.displayHeight
}

// Size returns the raster dimensions, zero after Release.
func (s *Surface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Canvas returns the raster to draw into, nil after Release.
func (s *Surface) Canvas() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img
}

// Released reports whether Release has been called.
func (s *Surface) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img == nil
}

// Release zeroes the surface dimensions and drops the pixel buffer. Calling
// it more than once is harmless.
func (s *Surface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = nil
	s.width, s.height = 0, 0
	s.displayWidth, s.displayHeight = 0, 0
}

// Encode turns the raster into a self contained data URL.
func (s *Surface) Encode(enc Encoding) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return "", fmt.Errorf("pageimg: encode of released surface")
	}
	if s.width == 0 || s.height == 0 {
		return emptyDataURL, nil
	}

	var (
		buf  bytes.Buffer
		mime string
		err  error
	)
	switch enc.Format {
	case FormatJPEG:
		quality := enc.JPEGQuality
		if quality <= 0 || quality > 100 {
			quality = 92
		}
		mime = "image/jpeg"
		err = imaging.Encode(&buf, s.img, imaging.JPEG, imaging.JPEGQuality(quality))
	case FormatPNG, "":
		mime = "image/png"
		err = imaging.Encode(&buf, s.img, imaging.PNG)
	default:
		return "", fmt.Errorf("pageimg: unsupported image format %q", enc.Format)
	}
	if err != nil {
		return "", fmt.Errorf("unable to encode page image: %w", err)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
