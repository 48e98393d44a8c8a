package pdfrenderer

import (
	"errors"

	"github.com/drummonds/pageimg/pageimg"
)

// ErrPageOutOfRange is returned by Document.Page for an index past the end.
var ErrPageOutOfRange = errors.New("page index out of range")

// Renderer opens PDF files for page rendering
type Renderer interface {
	// Open loads a PDF file. The document must be closed by the caller.
	Open(filename string) (Document, error)

	// Close cleans up any resources used by the renderer
	Close() error
}

// Document is an opened PDF whose pages can be rendered one at a time
type Document interface {
	NumPages() int
	// Page returns a handle for the zero based page index
	Page(index int) (pageimg.PageHandle, error)
	Close() error
}

// NewRenderer creates the renderer for the named backend. PDFium (pure Go,
// no CGo) is the default; "fitz" selects MuPDF.
func NewRenderer(backend string) (Renderer, error) {
	switch backend {
	case "fitz", "mupdf":
		return NewFitzRenderer()
	default:
		return NewPDFiumRenderer()
	}
}
