package webapp

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/drummonds/pageimg/pageimg"
)

// testAPI serves page geometry and solid red rasters for report.pdf
type testAPI struct {
	server *httptest.Server

	mu      sync.Mutex
	block   chan struct{} // when set, raster requests wait on it
	rasters int
	queries []string
	status  int
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	api := &testAPI{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/documents/report.pdf/pages/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(PageInfo{
			Document:   "report.pdf",
			PageIndex:  0,
			PageNumber: 1,
			PageCount:  2,
			Width:      40,
			Height:     30,
		})
	})
	mux.HandleFunc("/api/documents/report.pdf/pages/1/raster", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.rasters++
		api.queries = append(api.queries, r.URL.RawQuery)
		status := api.status
		block := api.block
		api.mu.Unlock()

		if block != nil {
			select {
			case <-block:
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			http.Error(w, "raster failed", status)
			return
		}
		width, _ := strconv.Atoi(r.URL.Query().Get("width"))
		height, _ := strconv.Atoi(r.URL.Query().Get("height"))
		img := imaging.New(width, height, color.RGBA{R: 255, A: 255})
		w.Header().Set("Content-Type", "image/png")
		imaging.Encode(w, img, imaging.PNG)
	})
	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

func (api *testAPI) fail(status int) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.status = status
}

func (api *testAPI) hold(release chan struct{}) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.block = release
}

func (api *testAPI) Rasters() int {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.rasters
}

func (api *testAPI) LastQuery() string {
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.queries) == 0 {
		return ""
	}
	return api.queries[len(api.queries)-1]
}

func (api *testAPI) page(t *testing.T) *RemotePage {
	t.Helper()
	page, err := LoadRemotePage(context.Background(), api.server.Client(), api.server.URL, "report.pdf", 1)
	if err != nil {
		t.Fatalf("LoadRemotePage() error = %v", err)
	}
	return page
}

func renderRemote(page *RemotePage, scale float64, rotation int) (*image.RGBA, pageimg.RenderTask) {
	viewport := page.Viewport(scale, rotation)
	canvas := image.NewRGBA(image.Rect(0, 0, 0, 0))
	if w, h := viewport.PixelSize(); w > 0 && h > 0 {
		canvas = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	return canvas, page.Render(context.Background(), pageimg.RenderContext{Canvas: canvas, Viewport: viewport})
}

func TestLoadRemotePage(t *testing.T) {
	api := newTestAPI(t)
	page := api.page(t)

	if page.Index() != 0 || page.Info.PageCount != 2 {
		t.Errorf("Unexpected page info %+v", page.Info)
	}
	v := page.Viewport(2, 90)
	if v.Width != 60 || v.Height != 80 {
		t.Errorf("Viewport() = %vx%v, want 60x80", v.Width, v.Height)
	}

	if _, err := LoadRemotePage(context.Background(), api.server.Client(), api.server.URL, "missing.pdf", 1); err == nil {
		t.Error("Expected error for a missing document")
	}
}

func TestRemotePageRender(t *testing.T) {
	api := newTestAPI(t)
	page := api.page(t)

	canvas, task := renderRemote(page, 2, 0)
	<-task.Done()
	if err := task.Err(); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := canvas.RGBAAt(10, 10); got.R != 255 || got.A != 255 {
		t.Errorf("pixel = %v, want red", got)
	}
	if q := api.LastQuery(); q != "forms=false&height=60&rotate=0&width=80" {
		t.Errorf("raster query = %q", q)
	}

	_, task = renderRemote(page, 2, 0)
	<-task.Done()
	if api.Rasters() != 1 {
		t.Errorf("raster requests = %d, want 1 (second render cached)", api.Rasters())
	}

	page.Cleanup()
	_, task = renderRemote(page, 2, 0)
	<-task.Done()
	if api.Rasters() != 2 {
		t.Errorf("raster requests = %d, want 2 after Cleanup", api.Rasters())
	}

	_, task = renderRemote(page, 1, 270)
	<-task.Done()
	if q := api.LastQuery(); q != "forms=false&height=40&rotate=270&width=30" {
		t.Errorf("rotated raster query = %q", q)
	}
}

func TestRemotePageFailure(t *testing.T) {
	api := newTestAPI(t)
	api.fail(http.StatusInternalServerError)
	page := api.page(t)

	_, task := renderRemote(page, 1, 0)
	<-task.Done()
	if task.Err() == nil || pageimg.IsCancelled(task.Err()) {
		t.Errorf("Err() = %v, want a render failure", task.Err())
	}
}

func TestRemotePageCancel(t *testing.T) {
	api := newTestAPI(t)
	release := make(chan struct{})
	api.hold(release)
	t.Cleanup(func() { close(release) })
	page := api.page(t)

	_, task := renderRemote(page, 1, 0)
	deadline := time.Now().Add(2 * time.Second)
	for api.Rasters() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	task.Cancel()

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled render did not settle")
	}
	if !pageimg.IsCancelled(task.Err()) {
		t.Errorf("Err() = %v, want cancellation", task.Err())
	}
}
