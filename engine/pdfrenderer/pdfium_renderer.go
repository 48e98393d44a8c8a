package pdfrenderer

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"

	"github.com/drummonds/pageimg/pageimg"
)

// PDFiumRenderer implements PDF rendering using go-pdfium with WebAssembly (pure Go, no CGo)
type PDFiumRenderer struct {
	pool     pdfium.Pool
	instance pdfium.Pdfium

	// A single PDFium instance is shared by every open document and must
	// not be called concurrently.
	mu sync.Mutex
}

// NewPDFiumRenderer creates a new PDFium-based PDF renderer using WebAssembly
func NewPDFiumRenderer() (*PDFiumRenderer, error) {
	// Initialize WebAssembly pool with minimal configuration
	// For single-threaded usage, we keep it simple
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1, // Minimum idle workers
		MaxIdle:  1, // Maximum idle workers
		MaxTotal: 1, // Total worker limit
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}

	// Get a PDFium instance from the pool
	instance, err := pool.GetInstance(time.Second * 30)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to get PDFium instance: %w", err)
	}

	return &PDFiumRenderer{
		pool:     pool,
		instance: instance,
	}, nil
}

// Open reads the PDF file and opens it in PDFium
func (r *PDFiumRenderer) Open(filename string) (Document, error) {
	pdfBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to read PDF file: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.instance.OpenDocument(&requests.OpenDocument{
		File: &pdfBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}

	pageCountResp, err := r.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		r.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
		return nil, fmt.Errorf("unable to get page count: %w", err)
	}

	return &pdfiumDocument{
		renderer:  r,
		document:  doc.Document,
		pageCount: pageCountResp.PageCount,
		pages:     make(map[int]*page),
	}, nil
}

// Close cleans up resources used by the PDFium renderer
func (r *PDFiumRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
	r.instance = nil
	return nil
}

type pdfiumDocument struct {
	renderer  *PDFiumRenderer
	document  references.FPDF_DOCUMENT
	pageCount int

	mu     sync.Mutex
	pages  map[int]*page
	closed bool
}

func (d *pdfiumDocument) NumPages() int {
	return d.pageCount
}

func (d *pdfiumDocument) pageRef(index int) requests.Page {
	return requests.Page{
		ByIndex: &requests.PageByIndex{
			Document: d.document,
			Index:    index,
		},
	}
}

func (d *pdfiumDocument) Page(index int) (pageimg.PageHandle, error) {
	if index < 0 || index >= d.pageCount {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, index, d.pageCount)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("document already closed")
	}
	if p, ok := d.pages[index]; ok {
		return p, nil
	}

	r := d.renderer
	r.mu.Lock()
	size, err := r.instance.GetPageSize(&requests.GetPageSize{
		Page: d.pageRef(index),
	})
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("unable to get size of page %d: %w", index, err)
	}

	p := newPage(index, size.Width, size.Height, func(ctx context.Context, width, height int, forms bool) (image.Image, error) {
		return d.rasterize(ctx, index, width, height)
	})
	d.pages[index] = p
	return p, nil
}

func (d *pdfiumDocument) rasterize(ctx context.Context, index, width, height int) (image.Image, error) {
	r := d.renderer
	r.mu.Lock()
	defer r.mu.Unlock()

	// PDFium cannot be interrupted once a page render starts, so this is
	// the last point a cancelled session can bail out.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pageRender, err := r.instance.RenderPageInPixels(&requests.RenderPageInPixels{
		Page:   d.pageRef(index),
		Width:  width,
		Height: height,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", index, err)
	}

	// Copy out before cleaning up the WebAssembly resources for this page
	img := imaging.Clone(pageRender.Result.Image)
	pageRender.Cleanup()
	return img, nil
}

func (d *pdfiumDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	for _, p := range d.pages {
		p.Cleanup()
	}

	r := d.renderer
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.instance == nil {
		return nil
	}
	_, err := r.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: d.document,
	})
	return err
}
