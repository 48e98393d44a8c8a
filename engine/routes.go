package engine

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"

	"github.com/drummonds/pageimg/config"

	"github.com/drummonds/pageimg/database"
	"github.com/drummonds/pageimg/engine/pdfrenderer"
	"github.com/drummonds/pageimg/pageimg"
)

// PageInfo is the unscaled geometry of a page in PDF points
type PageInfo struct {
	Document   string  `json:"document"`
	PageIndex  int     `json:"pageIndex"`
	PageNumber int     `json:"pageNumber"`
	PageCount  int     `json:"pageCount"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// RenderResponse is returned by the page image endpoint
type RenderResponse struct {
	RenderID string  `json:"renderID"`
	State    string  `json:"state"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Image    string  `json:"image,omitempty"`
	Error    string  `json:"error,omitempty"`
	Cached   bool    `json:"cached"`
}

func newRenderResponse(record *database.RenderRecord, cached bool) RenderResponse {
	return RenderResponse{
		RenderID: record.ULID.String(),
		State:    string(record.State),
		Width:    record.Width,
		Height:   record.Height,
		Image:    record.Image,
		Error:    record.Error,
		Cached:   cached,
	}
}

// maxRasterPixels is the largest pixel area one request may allocate
func (serverHandler *ServerHandler) maxRasterPixels() float64 {
	limit := serverHandler.ServerConfig.MaxRasterPixels
	if limit <= 0 {
		limit = config.DefaultMaxRasterPixels
	}
	return float64(limit)
}

// checkRasterSize rejects rasters larger than the configured pixel area.
// The sizes are floats so that absurd requests cannot overflow.
func (serverHandler *ServerHandler) checkRasterSize(width, height float64) error {
	limit := serverHandler.maxRasterPixels()
	if width*height > limit {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("requested raster of %.0fx%.0f pixels exceeds the limit of %.0f pixels", width, height, limit))
	}
	return nil
}

func jsonError(c echo.Context, code int, message string) error {
	return c.JSON(code, map[string]interface{}{
		"error": message,
	})
}

// Health reports that the server is up
func (serverHandler *ServerHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"backend": serverHandler.ServerConfig.RenderBackend,
	})
}

// GetDocuments lists the PDFs available for rendering
func (serverHandler *ServerHandler) GetDocuments(c echo.Context) error {
	documents, err := serverHandler.listDocuments()
	if err != nil {
		Logger.Error("Unable to list documents", "error", err)
		return jsonError(c, http.StatusInternalServerError, "Unable to list documents")
	}
	return c.JSON(http.StatusOK, documents)
}

// lookupPage resolves the :name and :page parameters. Page numbers in the
// URL are one based.
func (serverHandler *ServerHandler) lookupPage(c echo.Context) (pageimg.PageHandle, PageInfo, error) {
	name := c.Param("name")
	pageNumber, err := strconv.Atoi(c.Param("page"))
	if err != nil || pageNumber < 1 {
		return nil, PageInfo{}, echo.NewHTTPError(http.StatusBadRequest, "page must be a positive number")
	}

	doc, err := serverHandler.openDocument(name)
	switch {
	case errors.Is(err, ErrInvalidDocumentName):
		return nil, PageInfo{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, os.ErrNotExist):
		return nil, PageInfo{}, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("document %q not found", name))
	case err != nil:
		Logger.Error("Unable to open document", "name", name, "error", err)
		return nil, PageInfo{}, echo.NewHTTPError(http.StatusInternalServerError, "unable to open document")
	}

	page, err := doc.Page(pageNumber - 1)
	if errors.Is(err, pdfrenderer.ErrPageOutOfRange) {
		return nil, PageInfo{}, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("page %d not found", pageNumber))
	}
	if err != nil {
		Logger.Error("Unable to load page", "name", name, "page", pageNumber, "error", err)
		return nil, PageInfo{}, echo.NewHTTPError(http.StatusInternalServerError, "unable to load page")
	}

	viewport := page.Viewport(1, 0)
	return page, PageInfo{
		Document:   name,
		PageIndex:  page.Index(),
		PageNumber: page.Index() + 1,
		PageCount:  doc.NumPages(),
		Width:      viewport.Width,
		Height:     viewport.Height,
	}, nil
}

func queryInt(c echo.Context, name string, defaultValue int) (int, error) {
	value := c.QueryParam(name)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

func queryFloat(c echo.Context, name string, defaultValue float64) (float64, error) {
	value := c.QueryParam(name)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(value, 64)
}

func queryBool(c echo.Context, name string, defaultValue bool) (bool, error) {
	value := c.QueryParam(name)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.ParseBool(value)
}

// GetPageInfo returns the geometry of one page
func (serverHandler *ServerHandler) GetPageInfo(c echo.Context) error {
	_, info, err := serverHandler.lookupPage(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

// GetPageRaster rasterizes a page to exactly width × height device pixels
// (after rotation) and returns a PNG. It is the transport used by remote
// page handles in the web UI.
func (serverHandler *ServerHandler) GetPageRaster(c echo.Context) error {
	page, _, err := serverHandler.lookupPage(c)
	if err != nil {
		return err
	}
	rotation, err := queryInt(c, "rotate", 0)
	if err != nil || rotation%90 != 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "rotate must be a multiple of 90")
	}
	forms, err := queryBool(c, "forms", serverHandler.ServerConfig.InteractiveForms)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "forms must be a boolean")
	}
	viewport := page.Viewport(1, rotation)
	defaultWidth, defaultHeight := viewport.PixelSize()
	width, errW := queryInt(c, "width", defaultWidth)
	height, errH := queryInt(c, "height", defaultHeight)
	if errW != nil || errH != nil || width < 0 || height < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "width and height must be non-negative integers")
	}
	if err := serverHandler.checkRasterSize(float64(width), float64(height)); err != nil {
		return err
	}

	// scale the viewport so that its pixel size matches the request
	if viewport.Width > 0 {
		viewport.Scale = float64(width) / viewport.Width
	}
	viewport.Width, viewport.Height = float64(width), float64(height)

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	task := page.Render(c.Request().Context(), pageimg.RenderContext{
		Canvas:           canvas,
		Viewport:         viewport,
		InteractiveForms: forms,
	})
	<-task.Done()
	if err := task.Err(); err != nil {
		if pageimg.IsCancelled(err) {
			Logger.Debug("Raster request cancelled", "page", page.Index())
			return nil
		}
		Logger.Error("Raster failed", "page", page.Index(), "error", err)
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// GetPageImage renders a page through a render controller and returns the
// encoded image as a data URL
func (serverHandler *ServerHandler) GetPageImage(c echo.Context) error {
	page, info, err := serverHandler.lookupPage(c)
	if err != nil {
		return err
	}
	scale, err := queryFloat(c, "scale", serverHandler.ServerConfig.RenderConfig.DefaultScale)
	if err != nil || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return echo.NewHTTPError(http.StatusBadRequest, "scale must be a number")
	}
	rotation, err := queryInt(c, "rotate", 0)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "rotate must be an integer")
	}
	forms, err := queryBool(c, "forms", serverHandler.ServerConfig.InteractiveForms)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "forms must be a boolean")
	}
	pixelRatio := serverHandler.ServerConfig.DevicePixelRatio
	if pixelRatio == 0 {
		pixelRatio = 1
	}
	format := serverHandler.ServerConfig.ImageFormat
	if format == "" {
		format = string(pageimg.FormatPNG)
	}
	raster := page.Viewport(scale*pixelRatio, rotation)
	if err := serverHandler.checkRasterSize(raster.Width, raster.Height); err != nil {
		return err
	}

	key := database.RenderKey{
		Document:         info.Document,
		PageIndex:        info.PageIndex,
		Scale:            scale,
		Rotation:         pageimg.NormalizeRotation(rotation),
		InteractiveForms: forms,
		PixelRatio:       pixelRatio,
		Format:           format,
	}
	record, cached, err := serverHandler.cachedOrRender(c.Request().Context(), key, page)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	response := newRenderResponse(record, cached)
	code := http.StatusOK
	switch record.State {
	case database.RenderStateError:
		code = http.StatusUnprocessableEntity
	case database.RenderStateCancelled:
		// the client has gone away, nobody reads this
		code = 499
	}
	return c.JSON(code, response)
}

// GetRecentRenders lists the newest render records without image payloads
func (serverHandler *ServerHandler) GetRecentRenders(c echo.Context) error {
	limit, err := queryInt(c, "limit", 20)
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 500 {
		limit = 500
	}
	renders, err := serverHandler.DB.GetRecentRenders(limit)
	if err != nil {
		Logger.Error("Unable to fetch recent renders", "error", err)
		return jsonError(c, http.StatusInternalServerError, "Unable to fetch renders")
	}
	return c.JSON(http.StatusOK, renders)
}

// GetRender returns one stored render, including its image, by the ID that
// the page image endpoint handed out
func (serverHandler *ServerHandler) GetRender(c echo.Context) error {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid render id")
	}
	record, err := serverHandler.DB.GetRender(id)
	if errors.Is(err, database.ErrRenderNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("render %s not found", id))
	}
	if err != nil {
		Logger.Error("Unable to fetch render", "id", id, "error", err)
		return jsonError(c, http.StatusInternalServerError, "Unable to fetch render")
	}
	return c.JSON(http.StatusOK, newRenderResponse(record, true))
}

// DeleteOldRenders prunes cached renders older than olderThan minutes
func (serverHandler *ServerHandler) DeleteOldRenders(c echo.Context) error {
	minutes, err := queryInt(c, "olderThan", serverHandler.ServerConfig.CacheTTLMinutes)
	if err != nil || minutes < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "olderThan must be a non-negative number of minutes")
	}
	Logger.Info("Render cache prune triggered via API", "olderThanMinutes", minutes)
	deleted, err := serverHandler.DB.DeleteOldRenders(time.Duration(minutes) * time.Minute)
	if err != nil {
		Logger.Error("Unable to prune render cache", "error", err)
		return jsonError(c, http.StatusInternalServerError, "Unable to prune renders")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"deleted": deleted,
	})
}
