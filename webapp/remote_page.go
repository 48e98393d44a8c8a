package webapp

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/drummonds/pageimg/pageimg"
)

// RemotePage is a page handle whose rasters are produced by the server.
// Aborting a render aborts the HTTP request behind it.
type RemotePage struct {
	Client  *http.Client
	BaseURL string // prefix for API paths, empty for same origin
	Info    PageInfo

	mu   sync.Mutex
	last *remoteRaster
}

type remoteRaster struct {
	url string
	img image.Image
}

// LoadRemotePage fetches the geometry of a page and returns its handle
func LoadRemotePage(ctx context.Context, client *http.Client, baseURL, document string, pageNumber int) (*RemotePage, error) {
	if client == nil {
		client = http.DefaultClient
	}
	var info PageInfo
	if err := fetchJSON(ctx, client, baseURL+pagePath(document, pageNumber), &info); err != nil {
		return nil, fmt.Errorf("unable to load page %d of %s: %w", pageNumber, document, err)
	}
	return &RemotePage{Client: client, BaseURL: baseURL, Info: info}, nil
}

func (p *RemotePage) Index() int {
	return p.Info.PageIndex
}

func (p *RemotePage) Viewport(scale float64, rotation int) pageimg.Viewport {
	return pageimg.NewViewport(p.Info.Width, p.Info.Height, scale, rotation)
}

func (p *RemotePage) rasterURL(rc pageimg.RenderContext) string {
	b := rc.Canvas.Bounds()
	q := url.Values{}
	q.Set("width", strconv.Itoa(b.Dx()))
	q.Set("height", strconv.Itoa(b.Dy()))
	q.Set("rotate", strconv.Itoa(pageimg.NormalizeRotation(rc.Viewport.Rotation)))
	q.Set("forms", strconv.FormatBool(rc.InteractiveForms))
	return p.BaseURL + pagePath(p.Info.Document, p.Info.PageNumber) + "/raster?" + q.Encode()
}

func (p *RemotePage) Render(ctx context.Context, rc pageimg.RenderContext) pageimg.RenderTask {
	return pageimg.NewTask(ctx, func(ctx context.Context) error {
		if rc.Canvas == nil {
			return fmt.Errorf("no canvas to render into")
		}
		if rc.Canvas.Bounds().Empty() {
			return nil
		}
		img, err := p.fetch(ctx, p.rasterURL(rc))
		if err != nil {
			return err
		}
		b := rc.Canvas.Bounds()
		if ib := img.Bounds(); ib.Dx() != b.Dx() || ib.Dy() != b.Dy() {
			img = imaging.Resize(img, b.Dx(), b.Dy(), imaging.Lanczos)
		}
		draw.Draw(rc.Canvas, b, img, img.Bounds().Min, draw.Src)
		return nil
	})
}

func (p *RemotePage) fetch(ctx context.Context, rasterURL string) (image.Image, error) {
	p.mu.Lock()
	if p.last != nil && p.last.url == rasterURL {
		img := p.last.img
		p.mu.Unlock()
		return img, nil
	}
	p.mu.Unlock()

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rasterURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("raster request failed: %s", res.Status)
	}
	img, err := imaging.Decode(res.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to decode raster: %w", err)
	}

	p.mu.Lock()
	p.last = &remoteRaster{url: rasterURL, img: img}
	p.mu.Unlock()
	return img, nil
}

// Cleanup forgets the last downloaded raster.
func (p *RemotePage) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = nil
}
