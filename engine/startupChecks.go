package engine

import (
	"github.com/drummonds/pageimg/config"
)

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	if err := documentDirectoryChecks(serverHandler.ServerConfig); err != nil {
		return err
	}
	renderChecks(serverHandler.ServerConfig)
	return nil
}

// renderChecks logs the render settings that are likely to surprise
func renderChecks(serverConfig config.ServerConfig) {
	if serverConfig.RenderBackend == "fitz" {
		Logger.Info("Using MuPDF renderer, CGo build required")
	}
	if serverConfig.DevicePixelRatio > 3 {
		Logger.Warn("High device pixel ratio will produce very large rasters", "pixelRatio", serverConfig.DevicePixelRatio)
	}
	if serverConfig.CacheTTLMinutes <= 0 {
		Logger.Info("Render cache pruning disabled")
	}
}

// documentDirectoryChecks ensures the document storage directory exists
func documentDirectoryChecks(serverConfig config.ServerConfig) error {
	if serverConfig.DocumentPath == "" {
		Logger.Warn("Document path not configured")
		return nil
	}
	if err := config.EnsureDocumentPath(serverConfig.DocumentPath, Logger); err != nil {
		Logger.Error("Document path unusable", "path", serverConfig.DocumentPath, "error", err)
		return err
	}
	Logger.Info("Document directory ready", "path", serverConfig.DocumentPath)
	return nil
}
