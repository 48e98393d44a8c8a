package pdfrenderer

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/drummonds/pageimg/pageimg"
)

// pointsPerInch is the PDF user space unit; fitz reports bounds at 72 DPI.
const pointsPerInch = 72.0

// FitzRenderer implements PDF rendering using go-fitz (requires CGo and MuPDF)
type FitzRenderer struct {
}

// NewFitzRenderer creates a new Fitz-based PDF renderer
func NewFitzRenderer() (*FitzRenderer, error) {
	return &FitzRenderer{}, nil
}

// Open opens a PDF document using go-fitz
func (r *FitzRenderer) Open(filename string) (Document, error) {
	doc, err := fitz.New(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	return &fitzDocument{
		doc:   doc,
		pages: make(map[int]*page),
	}, nil
}

// Close cleans up resources (no-op for Fitz renderer as each document is closed by its owner)
func (r *FitzRenderer) Close() error {
	return nil
}

type fitzDocument struct {
	// MuPDF contexts are not safe for concurrent use
	mu     sync.Mutex
	doc    *fitz.Document
	pages  map[int]*page
	closed bool
}

func (d *fitzDocument) NumPages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0
	}
	return d.doc.NumPage()
}

func (d *fitzDocument) Page(index int) (pageimg.PageHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("document already closed")
	}
	if numPages := d.doc.NumPage(); index < 0 || index >= numPages {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, index, numPages)
	}
	if p, ok := d.pages[index]; ok {
		return p, nil
	}

	bounds, err := d.doc.Bound(index)
	if err != nil {
		return nil, fmt.Errorf("unable to get size of page %d: %w", index, err)
	}
	width, height := float64(bounds.Dx()), float64(bounds.Dy())
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("page %d has an empty media box", index)
	}
	p := newPage(index, width, height, func(ctx context.Context, w, h int, forms bool) (image.Image, error) {
		return d.rasterize(ctx, index, float64(w)/width*pointsPerInch)
	})
	d.pages[index] = p
	return p, nil
}

func (d *fitzDocument) rasterize(ctx context.Context, index int, dpi float64) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.closed {
		return nil, fmt.Errorf("document already closed")
	}
	img, err := d.doc.ImageDPI(index, dpi)
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", index, err)
	}
	return img, nil
}

func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	for _, p := range d.pages {
		p.Cleanup()
	}
	return d.doc.Close()
}
