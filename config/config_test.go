package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckDocumentPath_ValidPath(t *testing.T) {
	tempDir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	err := checkDocumentPath(tempDir, logger)
	if err != nil {
		t.Errorf("Expected no error with valid path, got: %v", err)
	}
}

func TestCheckDocumentPath_InvalidPath(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	invalidPath := "/nonexistent/path/to/documents"
	err := checkDocumentPath(invalidPath, logger)
	if err == nil {
		t.Error("Expected error with invalid path, got nil")
	}
	t.Logf("Correctly returned error for invalid path: %v", err)
}

func TestCheckDocumentPath_File(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	file := filepath.Join(t.TempDir(), "sample.pdf")
	if err := os.WriteFile(file, []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	if err := checkDocumentPath(file, logger); err == nil {
		t.Error("Expected error when document path is a file")
	}
}

func TestEnsureDocumentPath(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	missing := filepath.Join(t.TempDir(), "nested", "documents")

	if err := EnsureDocumentPath(missing, logger); err != nil {
		t.Fatalf("EnsureDocumentPath() error = %v", err)
	}
	if err := checkDocumentPath(missing, logger); err != nil {
		t.Errorf("Document folder was not created: %v", err)
	}
}

func TestLoadRenderConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want RenderConfig
	}{
		{
			name: "Defaults",
			env:  map[string]string{},
			want: RenderConfig{RenderBackend: "pdfium", DevicePixelRatio: 1, DefaultScale: 1, ImageFormat: "png", JPEGQuality: 90, CacheTTLMinutes: 60, PruneInterval: 10, MaxRasterPixels: DefaultMaxRasterPixels},
		},
		{
			name: "Overrides",
			env: map[string]string{
				"RENDER_BACKEND":           "FITZ",
				"DEVICE_PIXEL_RATIO":       "2",
				"DEFAULT_SCALE":            "0.5",
				"IMAGE_FORMAT":             "jpg",
				"JPEG_QUALITY":             "75",
				"RENDER_INTERACTIVE_FORMS": "true",
				"RENDER_CACHE_TTL":         "5",
				"PRUNE_INTERVAL":           "1",
				"MAX_RASTER_PIXELS":        "1000000",
			},
			want: RenderConfig{RenderBackend: "fitz", DevicePixelRatio: 2, DefaultScale: 0.5, ImageFormat: "jpeg", JPEGQuality: 75, InteractiveForms: true, CacheTTLMinutes: 5, PruneInterval: 1, MaxRasterPixels: 1000000},
		},
		{
			name: "Invalid values fall back",
			env: map[string]string{
				"DEVICE_PIXEL_RATIO": "-3",
				"DEFAULT_SCALE":      "huge",
				"IMAGE_FORMAT":       "gif",
				"PRUNE_INTERVAL":     "0",
				"MAX_RASTER_PIXELS":  "-1",
			},
			want: RenderConfig{RenderBackend: "pdfium", DevicePixelRatio: 1, DefaultScale: 1, ImageFormat: "png", JPEGQuality: 90, CacheTTLMinutes: 60, PruneInterval: 10, MaxRasterPixels: DefaultMaxRasterPixels},
		},
	}

	keys := []string{"RENDER_BACKEND", "DEVICE_PIXEL_RATIO", "DEFAULT_SCALE", "IMAGE_FORMAT", "JPEG_QUALITY",
		"RENDER_INTERACTIVE_FORMS", "RENDER_CACHE_TTL", "PRUNE_INTERVAL", "MAX_RASTER_PIXELS"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range keys {
				t.Setenv(key, tt.env[key])
			}
			got := LoadRenderConfig()
			if got != tt.want {
				t.Errorf("LoadRenderConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadFrontEndConfig(t *testing.T) {
	t.Setenv("SERVER_API_URL", "http://api.internal:8000")
	t.Setenv("DEFAULT_SCALE", "1.25")

	got := loadFrontEndConfig()
	want := FrontEndConfig{ServerAPIURL: "http://api.internal:8000", InitialScale: 1.25}
	if got != want {
		t.Errorf("loadFrontEndConfig() = %+v, want %+v", got, want)
	}

	// The viewer's initial zoom and the render default share DEFAULT_SCALE.
	if render := LoadRenderConfig(); render.DefaultScale != got.InitialScale {
		t.Errorf("RenderConfig.DefaultScale = %v, InitialScale = %v", render.DefaultScale, got.InitialScale)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
