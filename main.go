package main

import (
	"embed"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	config "github.com/drummonds/pageimg/config"
	database "github.com/drummonds/pageimg/database"
	engine "github.com/drummonds/pageimg/engine"
	"github.com/drummonds/pageimg/engine/pdfrenderer"
	"github.com/drummonds/pageimg/pageimg"
	"github.com/drummonds/pageimg/webapp"
)

//go:embed webapp/webapp.css
var webappFS embed.FS

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	database.Logger = Logger
	config.Logger = Logger
	engine.Logger = Logger
	pageimg.Logger = Logger
}

// newServer wires the API and the UI onto a fresh echo instance
func newServer(serverConfig config.ServerConfig, db database.Repository, renderer pdfrenderer.Renderer) *engine.ServerHandler {
	e := echo.New()
	e.HideBanner = true

	// Custom 404 handler
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}

		// Return JSON for API endpoints
		if code == http.StatusNotFound && strings.HasPrefix(c.Request().URL.Path, "/api/") {
			if he, ok := err.(*echo.HTTPError); ok && he.Message != http.StatusText(http.StatusNotFound) {
				c.JSON(http.StatusNotFound, map[string]interface{}{
					"error": he.Message,
					"path":  c.Request().URL.Path,
				})
				return
			}
			c.JSON(http.StatusNotFound, map[string]string{
				"error":   "Not Found",
				"message": "The requested API endpoint does not exist",
				"path":    c.Request().URL.Path,
			})
			return
		}

		// For other errors, use default handler
		e.DefaultHTTPErrorHandler(err, c)
	}
	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))
	e.Use(middleware.Recover())

	serverHandler := &engine.ServerHandler{DB: db, Echo: e, ServerConfig: serverConfig, Renderer: renderer} //injecting the database into the handler for routes
	serverHandler.RegisterRoutes()

	Logger.Info("Setting up go-app WASM UI")
	appHandler := webapp.Handler()

	// go-app expects wasm_exec.js at the root
	e.File("/wasm_exec.js", "web/wasm_exec.js")

	// Register go-app specific resources
	e.GET("/app.js", echo.WrapHandler(appHandler))
	e.GET("/app.css", echo.WrapHandler(appHandler))
	e.GET("/manifest.webmanifest", echo.WrapHandler(appHandler))

	// app.wasm is built into web/ from cmd/webapp
	e.Static("/web", "web")

	e.GET("/webapp/webapp.css", func(c echo.Context) error {
		data, err := webappFS.ReadFile("webapp/webapp.css")
		if err != nil {
			return c.String(http.StatusNotFound, "webapp.css not found")
		}
		return c.Blob(http.StatusOK, "text/css", data)
	})

	// Inject backend API URL into the page
	e.GET("/config.js", func(c echo.Context) error {
		configJS := fmt.Sprintf(`
// pageimg Frontend Configuration
window.pageimgConfig = {
    apiURL: "%s",
    defaultScale: %v
};
`, serverConfig.ServerAPIURL, serverConfig.InitialScale)
		c.Response().Header().Set("Content-Type", "application/javascript")
		return c.String(http.StatusOK, configJS)
	})

	// Serve go-app handler for all other routes (must be last)
	// The WASM app handles its own client-side routing and 404s via NotFoundPage component
	e.Any("/*", echo.WrapHandler(appHandler))
	return serverHandler
}

func main() {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	Logger.Info("Setting up database", "type", serverConfig.DatabaseType)
	db, err := database.NewRepository(serverConfig)
	if err != nil {
		Logger.Error("Unable to set up database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	Logger.Info("Database setup complete")

	renderer, err := pdfrenderer.NewRenderer(serverConfig.RenderBackend)
	if err != nil {
		Logger.Error("Unable to start PDF renderer", "backend", serverConfig.RenderBackend, "error", err)
		os.Exit(1)
	}
	defer renderer.Close()

	serverHandler := newServer(serverConfig, db, renderer)
	defer serverHandler.Close()
	e := serverHandler.Echo

	if err := serverHandler.StartupChecks(); err != nil { //Run all the sanity checks
		Logger.Error("Startup checks failed", "error", err)
		os.Exit(1)
	}
	scheduler := serverHandler.InitializeSchedules() //initialize all the cron jobs
	defer scheduler.Stop()

	if serverConfig.ListenAddrIP == "" {
		Logger.Info("No Ip Addr set, binding on ALL addresses")
	}

	Logger.Info("Starting HTTP server")

	// Try to start server with automatic port increment if port is in use
	maxRetries := 5
	startPort := serverConfig.ListenAddrPort
	var startErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
		Logger.Info("Attempting to start server", "address", addr, "attempt", attempt+1)

		startErr = e.Start(addr)

		// Check if error is "address already in use"
		if startErr != nil && isAddressInUse(startErr) {
			Logger.Warn("Port already in use, trying next port",
				"port", serverConfig.ListenAddrPort,
				"attempt", attempt+1,
				"max_attempts", maxRetries)

			// Increment port for next attempt
			portNum := 0
			fmt.Sscanf(serverConfig.ListenAddrPort, "%d", &portNum)
			portNum++
			serverConfig.ListenAddrPort = fmt.Sprintf("%d", portNum)

			if attempt == maxRetries-1 {
				Logger.Error("Failed to find available port after maximum retries",
					"start_port", startPort,
					"end_port", serverConfig.ListenAddrPort,
					"max_retries", maxRetries)
				return
			}
		} else if startErr != nil && startErr != http.ErrServerClosed {
			// Some other error occurred
			Logger.Error("Failed to start server", "error", startErr)
			return
		} else {
			break
		}
	}

	if startErr == nil && serverConfig.ListenAddrPort != startPort {
		Logger.Warn("Server started on alternative port due to conflicts",
			"requested_port", startPort,
			"actual_port", serverConfig.ListenAddrPort)
	}
}

// isAddressInUse checks if the error is due to address already in use
func isAddressInUse(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "address already in use")
}
