package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP     string
	ListenAddrPort   string
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string `json:"-"`
	DatabaseDbname   string
	DatabaseSslmode  string
	DatabaseURL      string `json:"-"` // full postgres DSN, overrides the fields above
	DocumentPath     string
	RenderConfig
	FrontEndConfig
}

// RenderConfig holds the defaults applied to every page render
type RenderConfig struct {
	RenderBackend    string  // pdfium or fitz
	DevicePixelRatio float64 // raster resolution multiplier
	DefaultScale     float64
	ImageFormat      string // png or jpeg
	JPEGQuality      int
	InteractiveForms bool // paint form widgets unless a request says otherwise
	CacheTTLMinutes  int  // rendered images older than this are pruned
	PruneInterval    int  // minutes between prune runs
	MaxRasterPixels  int  // largest raster a single request may ask for
}

// DefaultMaxRasterPixels caps a raster at roughly 160MB of RGBA
const DefaultMaxRasterPixels = 40_000_000

// FrontEndConfig stores all of the frontend settings
type FrontEndConfig struct {
	ServerAPIURL string
	InitialScale float64 // zoom the viewer opens documents at
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvFloat gets a positive float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil || floatVal <= 0 {
		return defaultValue
	}
	return floatVal
}

// loadEnvFiles loads .env files (silently ignore if they don't exist)
func loadEnvFiles(names ...string) {
	for _, name := range names {
		_ = godotenv.Load(name)
	}
}

// LoadRenderConfig reads the render settings from the environment
func LoadRenderConfig() RenderConfig {
	renderConfig := RenderConfig{
		RenderBackend:    strings.ToLower(getEnv("RENDER_BACKEND", "pdfium")),
		DevicePixelRatio: getEnvFloat("DEVICE_PIXEL_RATIO", 1),
		DefaultScale:     getEnvFloat("DEFAULT_SCALE", 1),
		ImageFormat:      strings.ToLower(getEnv("IMAGE_FORMAT", "png")),
		JPEGQuality:      getEnvInt("JPEG_QUALITY", 90),
		InteractiveForms: getEnvBool("RENDER_INTERACTIVE_FORMS", false),
		CacheTTLMinutes:  getEnvInt("RENDER_CACHE_TTL", 60),
		PruneInterval:    getEnvInt("PRUNE_INTERVAL", 10),
		MaxRasterPixels:  getEnvInt("MAX_RASTER_PIXELS", DefaultMaxRasterPixels),
	}
	switch renderConfig.ImageFormat {
	case "png", "jpeg":
	case "jpg":
		renderConfig.ImageFormat = "jpeg"
	default:
		renderConfig.ImageFormat = "png"
	}
	if renderConfig.PruneInterval <= 0 {
		renderConfig.PruneInterval = 10
	}
	if renderConfig.MaxRasterPixels <= 0 {
		renderConfig.MaxRasterPixels = DefaultMaxRasterPixels
	}
	return renderConfig
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	loadEnvFiles(".env", "config.env")

	logger := setupLogging()
	Logger = logger

	// Server configuration
	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")

	// Database configuration
	serverConfigLive.DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	serverConfigLive.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	serverConfigLive.DatabasePort = getEnv("DATABASE_PORT", "5432")
	serverConfigLive.DatabaseUser = getEnv("DATABASE_USER", "pageimg")
	serverConfigLive.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	serverConfigLive.DatabaseDbname = getEnv("DATABASE_NAME", "databases/pageimg.sqlite")
	serverConfigLive.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "disable")
	serverConfigLive.DatabaseURL = getEnv("DATABASE_URL", "")

	logger.Info("Database configuration loaded", "type", serverConfigLive.DatabaseType)

	// Document storage configuration
	documentPathRelative := filepath.ToSlash(getEnv("DOCUMENT_PATH", "documents"))
	documentPathAbs, err := filepath.Abs(documentPathRelative)
	if err != nil {
		logger.Error("Error creating document path", "path", documentPathRelative, "error", err)
		documentPathAbs = documentPathRelative
	}
	serverConfigLive.DocumentPath = documentPathAbs

	serverConfigLive.RenderConfig = LoadRenderConfig()
	logger.Info("Render configuration loaded",
		"backend", serverConfigLive.RenderBackend,
		"pixelRatio", serverConfigLive.DevicePixelRatio,
		"format", serverConfigLive.ImageFormat,
		"cacheTTLMinutes", serverConfigLive.CacheTTLMinutes,
		"maxRasterPixels", serverConfigLive.MaxRasterPixels)

	// Frontend configuration
	serverConfigLive.FrontEndConfig = FrontEndConfig{
		ServerAPIURL: getEnv("SERVER_API_URL", ""),
		InitialScale: serverConfigLive.RenderConfig.DefaultScale,
	}

	fmt.Println("\n========================================")
	fmt.Println("   pageimg - PDF Page Image Server")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Serving documents from: %s\n", serverConfigLive.DocumentPath)
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "pageimg.log"))

	return serverConfigLive, logger
}

// SetupFrontend loads configuration for frontend-only server
func SetupFrontend() (FrontEndConfig, *slog.Logger) {
	loadEnvFiles(".env", "config.env", "frontend.env")

	logger := setupLogging()
	Logger = logger

	frontendConfig := loadFrontEndConfig()
	logger.Info("Frontend configuration loaded",
		"apiURL", frontendConfig.ServerAPIURL,
		"initialScale", frontendConfig.InitialScale)

	return frontendConfig, logger
}

// loadFrontEndConfig reads the settings the standalone frontend serves to
// the browser
func loadFrontEndConfig() FrontEndConfig {
	return FrontEndConfig{
		ServerAPIURL: getEnv("SERVER_API_URL", "http://localhost:8000"),
		InitialScale: getEnvFloat("DEFAULT_SCALE", 1),
	}
}

// parseLevel maps LOG_LEVEL onto a slog level, defaulting to debug
func parseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	handlerOptions := &slog.HandlerOptions{Level: parseLevel(getEnv("LOG_LEVEL", "debug"))}

	logOutput := getEnv("LOG_OUTPUT", "file")
	var logWriter io.Writer

	if logOutput == "stdout" {
		logWriter = os.Stdout
	} else {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "pageimg.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}

// checkDocumentPath verifies that the document folder exists
func checkDocumentPath(documentPath string, logger *slog.Logger) error {
	info, err := os.Stat(documentPath)
	if err != nil {
		logger.Error("Cannot find document folder at location specified", "path", documentPath)
		return err
	}
	if !info.IsDir() {
		logger.Error("Document path is not a folder", "path", documentPath)
		return fmt.Errorf("%s is not a directory", documentPath)
	}
	logger.Debug("Document folder found", "path", documentPath)
	return nil
}

// EnsureDocumentPath creates the document folder if it is missing
func EnsureDocumentPath(documentPath string, logger *slog.Logger) error {
	if err := checkDocumentPath(documentPath, logger); err == nil {
		return nil
	}
	logger.Info("Creating document folder", "path", documentPath)
	if err := os.MkdirAll(documentPath, 0755); err != nil {
		return fmt.Errorf("unable to create document folder: %w", err)
	}
	return nil
}
