// Package pageimg drives the rendering of a single document page into a
// static image. A Controller owns one render session at a time: it asks a
// PageHandle for a cancellable RenderTask, encodes the rasterized surface
// once the task settles and guarantees that surfaces and page caches are
// released on every exit path.
package pageimg

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"math"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

func logger() *slog.Logger {
	if Logger != nil {
		return Logger
	}
	return slog.Default()
}

var (
	// ErrRenderCancelled is the settlement of a task that was cancelled on
	// purpose. It is never reported as a render error.
	ErrRenderCancelled = errors.New("pageimg: rendering cancelled")

	ErrNoPage          = errors.New("pageimg: page handle is required")
	ErrInvalidScale    = errors.New("pageimg: scale must be a positive number")
	ErrInvalidRotation = errors.New("pageimg: rotation must be a multiple of 90")
	ErrDisposed        = errors.New("pageimg: controller has been disposed")
)

// IsCancelled reports whether err signals a deliberate cancellation rather
// than a render failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrRenderCancelled) || errors.Is(err, context.Canceled)
}

// Viewport is the geometry of a page for a given scale and rotation.
type Viewport struct {
	Width    float64
	Height   float64
	Scale    float64
	Rotation int
}

// DisplaySize returns the integer layout box of the viewport.
func (v Viewport) DisplaySize() (int, int) {
	return int(math.Floor(v.Width)), int(math.Floor(v.Height))
}

// PixelSize returns the raster dimensions a surface needs for this viewport.
// Fractional pixels are truncated and negative sizes clamp to zero.
func (v Viewport) PixelSize() (int, int) {
	w, h := int(v.Width), int(v.Height)
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return w, h
}

// NewViewport computes the viewport of a page whose unrotated size at scale
// 1 is width × height. Quarter turns swap the two sides.
func NewViewport(width, height, scale float64, rotation int) Viewport {
	rotation = NormalizeRotation(rotation)
	if rotation == 90 || rotation == 270 {
		width, height = height, width
	}
	return Viewport{
		Width:    width * scale,
		Height:   height * scale,
		Scale:    scale,
		Rotation: rotation,
	}
}

// NormalizeRotation maps any angle onto [0, 360).
func NormalizeRotation(rotation int) int {
	rotation %= 360
	if rotation < 0 {
		rotation += 360
	}
	return rotation
}

// RenderContext is what a PageHandle draws into.
type RenderContext struct {
	// Canvas is the raster target, sized to Viewport.PixelSize().
	Canvas *image.RGBA
	// Viewport is the device-pixel-ratio scaled viewport.
	Viewport Viewport
	// InteractiveForms asks the page to paint form widgets.
	InteractiveForms bool
}

// PageHandle is one page of a loaded document. It is borrowed by the
// controller, never owned.
type PageHandle interface {
	// Index is the zero based position of the page in its document.
	Index() int
	// Viewport must be pure and cheap.
	Viewport(scale float64, rotation int) Viewport
	// Render starts rasterizing into rc.Canvas and returns immediately.
	Render(ctx context.Context, rc RenderContext) RenderTask
	// Cleanup releases caches held by the page. It must be idempotent.
	Cleanup()
}

// RenderTask is a handle to one in-flight raster operation.
type RenderTask interface {
	// Done is closed once the task has settled.
	Done() <-chan struct{}
	// Err is valid after Done is closed; nil means success.
	Err() error
	// Running reports whether the task has not settled yet.
	Running() bool
	// Cancel asks the task to stop. It is a no-op once settled.
	Cancel()
}

// PageSummary is handed to OnRenderSuccess.
type PageSummary struct {
	PageIndex      int
	PageNumber     int
	Scale          float64
	Rotation       int
	Width          float64
	Height         float64
	OriginalWidth  float64
	OriginalHeight float64
}

func makePageSummary(page PageHandle, scale float64, rotation int) PageSummary {
	viewport := page.Viewport(scale, rotation)
	original := page.Viewport(1, rotation)
	return PageSummary{
		PageIndex:      page.Index(),
		PageNumber:     page.Index() + 1,
		Scale:          scale,
		Rotation:       viewport.Rotation,
		Width:          viewport.Width,
		Height:         viewport.Height,
		OriginalWidth:  original.Width,
		OriginalHeight: original.Height,
	}
}
