package engine

import (
	"github.com/labstack/echo/v4"

	"github.com/drummonds/pageimg/config"
	"github.com/drummonds/pageimg/database"
	"github.com/drummonds/pageimg/engine/pdfrenderer"
)

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
	Renderer     pdfrenderer.Renderer

	documents documentCache
}

// RegisterRoutes adds the render API to the echo instance
func (serverHandler *ServerHandler) RegisterRoutes() {
	api := serverHandler.Echo.Group("/api")
	api.GET("/health", serverHandler.Health)
	api.GET("/documents", serverHandler.GetDocuments)
	api.GET("/documents/:name/pages/:page", serverHandler.GetPageInfo)
	api.GET("/documents/:name/pages/:page/raster", serverHandler.GetPageRaster)
	api.GET("/documents/:name/pages/:page/image", serverHandler.GetPageImage)
	api.GET("/renders", serverHandler.GetRecentRenders)
	api.GET("/renders/:id", serverHandler.GetRender)
	api.DELETE("/renders", serverHandler.DeleteOldRenders)

	// unknown API paths must not fall through to the UI catch-all
	api.Any("/*", func(c echo.Context) error {
		return echo.ErrNotFound
	})
}

// Close releases every opened document
func (serverHandler *ServerHandler) Close() {
	serverHandler.documents.closeAll()
}
