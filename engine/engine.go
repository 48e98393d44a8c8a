package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"

	"github.com/drummonds/pageimg/engine/pdfrenderer"
)

// ErrInvalidDocumentName is returned for names that are not a plain PDF file name
var ErrInvalidDocumentName = fmt.Errorf("invalid document name")

// DocumentInfo describes a PDF available for rendering
type DocumentInfo struct {
	Name  string `json:"name"`
	Pages int    `json:"pages"`
	Size  int64  `json:"size"`
	Error string `json:"error,omitempty"`
}

// documentCache keeps opened documents so their pages, and the raster
// caches the pages hold, survive between requests
type documentCache struct {
	mu   sync.Mutex
	docs map[string]pdfrenderer.Document
}

func (dc *documentCache) get(name string, open func() (pdfrenderer.Document, error)) (pdfrenderer.Document, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if doc, ok := dc.docs[name]; ok {
		return doc, nil
	}
	doc, err := open()
	if err != nil {
		return nil, err
	}
	if dc.docs == nil {
		dc.docs = make(map[string]pdfrenderer.Document)
	}
	dc.docs[name] = doc
	return doc, nil
}

func (dc *documentCache) closeAll() {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	for name, doc := range dc.docs {
		if err := doc.Close(); err != nil {
			Logger.Warn("Unable to close document", "name", name, "error", err)
		}
	}
	dc.docs = nil
}

// documentPath resolves a document name inside the document folder,
// refusing anything that could escape it
func (serverHandler *ServerHandler) documentPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidDocumentName, name)
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return "", fmt.Errorf("%w: %q is not a PDF", ErrInvalidDocumentName, name)
	}
	return filepath.Join(serverHandler.ServerConfig.DocumentPath, name), nil
}

// inspectDocument reads the page count with the pure Go PDF reader, which is
// much cheaper than loading the document into a rasterizer
func inspectDocument(path string) (int, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("unable to read PDF: %w", err)
	}
	defer file.Close()
	return reader.NumPage(), nil
}

// listDocuments returns every PDF in the document folder, sorted by name
func (serverHandler *ServerHandler) listDocuments() ([]DocumentInfo, error) {
	entries, err := os.ReadDir(serverHandler.ServerConfig.DocumentPath)
	if err != nil {
		return nil, err
	}

	documents := []DocumentInfo{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		info := DocumentInfo{Name: entry.Name()}
		if fileInfo, err := entry.Info(); err == nil {
			info.Size = fileInfo.Size()
		}
		pages, err := inspectDocument(filepath.Join(serverHandler.ServerConfig.DocumentPath, entry.Name()))
		if err != nil {
			Logger.Warn("Unable to inspect document", "name", entry.Name(), "error", err)
			info.Error = err.Error()
		}
		info.Pages = pages
		documents = append(documents, info)
	}
	sort.Slice(documents, func(i, j int) bool {
		return documents[i].Name < documents[j].Name
	})
	return documents, nil
}

// openDocument returns the cached rasterizer document for name
func (serverHandler *ServerHandler) openDocument(name string) (pdfrenderer.Document, error) {
	path, err := serverHandler.documentPath(name)
	if err != nil {
		return nil, err
	}
	return serverHandler.documents.get(name, func() (pdfrenderer.Document, error) {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		Logger.Info("Opening document", "path", path)
		return serverHandler.Renderer.Open(path)
	})
}
