package pdfrenderer

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/drummonds/pageimg/pageimg"
)

// rasterFunc produces an unrotated raster of the page at exactly
// width × height pixels.
type rasterFunc func(ctx context.Context, width, height int, forms bool) (image.Image, error)

type cachedRaster struct {
	width  int
	height int
	forms  bool
	img    image.Image
}

// page adapts a backend raster function to pageimg.PageHandle. It keeps the
// last raster so that re-rendering at the same size is cheap; Cleanup drops it.
type page struct {
	index  int
	width  float64 // unrotated size in points
	height float64
	raster rasterFunc

	mu    sync.Mutex
	cache *cachedRaster
}

func newPage(index int, width, height float64, raster rasterFunc) *page {
	return &page{index: index, width: width, height: height, raster: raster}
}

func (p *page) Index() int {
	return p.index
}

func (p *page) Viewport(scale float64, rotation int) pageimg.Viewport {
	return pageimg.NewViewport(p.width, p.height, scale, rotation)
}

func (p *page) Render(ctx context.Context, rc pageimg.RenderContext) pageimg.RenderTask {
	return pageimg.NewTask(ctx, func(ctx context.Context) error {
		if rc.Canvas == nil {
			return errors.New("no canvas to render into")
		}
		bounds := rc.Canvas.Bounds()
		rotation := pageimg.NormalizeRotation(rc.Viewport.Rotation)
		width, height := bounds.Dx(), bounds.Dy()
		if rotation == 90 || rotation == 270 {
			width, height = height, width
		}
		if width == 0 || height == 0 {
			return nil
		}

		img, err := p.rasterize(ctx, width, height, rc.InteractiveForms)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		draw.Draw(rc.Canvas, bounds, rotate(img, rotation), image.Point{}, draw.Src)
		return nil
	})
}

func (p *page) rasterize(ctx context.Context, width, height int, forms bool) (image.Image, error) {
	p.mu.Lock()
	if c := p.cache; c != nil && c.width == width && c.height == height && c.forms == forms {
		p.mu.Unlock()
		return c.img, nil
	}
	p.mu.Unlock()

	img, err := p.raster(ctx, width, height, forms)
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		img = imaging.Resize(img, width, height, imaging.Lanczos)
	}

	p.mu.Lock()
	p.cache = &cachedRaster{width: width, height: height, forms: forms, img: img}
	p.mu.Unlock()
	return img, nil
}

func (p *page) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = nil
}

// rotate turns img clockwise by a quarter-turn multiple; imaging rotates
// counter-clockwise.
func rotate(img image.Image, rotation int) image.Image {
	switch rotation {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
