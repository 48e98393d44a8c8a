package webapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// GetAPIBaseURL returns the configured API base URL
// It reads from window.pageimgConfig.apiURL if available,
// otherwise falls back to empty string (relative URLs)
func GetAPIBaseURL() string {
	// Check if config is available in browser
	if !app.IsClient {
		return "" // Server-side rendering - use relative URLs
	}

	// Try to get API URL from global config
	config := app.Window().Get("pageimgConfig")
	if config.Truthy() {
		apiURL := config.Get("apiURL")
		if apiURL.Truthy() {
			url := apiURL.String()
			// Ensure no trailing slash
			if len(url) > 0 && url[len(url)-1] == '/' {
				return url[:len(url)-1]
			}
			return url
		}
	}

	// Fallback to relative URLs (same origin)
	return ""
}

// BuildAPIURL constructs a full API URL from a path
// Example: BuildAPIURL("/api/documents") -> "http://backend:8000/api/documents"
// or just "/api/documents" if using relative URLs
func BuildAPIURL(path string) string {
	baseURL := GetAPIBaseURL()
	if baseURL == "" {
		return path // Relative URL
	}
	return baseURL + path
}

// pagePath is the API path of one page; pageNumber is one based
func pagePath(document string, pageNumber int) string {
	return fmt.Sprintf("/api/documents/%s/pages/%d", url.PathEscape(document), pageNumber)
}

// DocumentInfo is a PDF listed by the server
type DocumentInfo struct {
	Name  string `json:"name"`
	Pages int    `json:"pages"`
	Size  int64  `json:"size"`
	Error string `json:"error,omitempty"`
}

// PageInfo is the unscaled geometry of a page
type PageInfo struct {
	Document   string  `json:"document"`
	PageIndex  int     `json:"pageIndex"`
	PageNumber int     `json:"pageNumber"`
	PageCount  int     `json:"pageCount"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// fetchJSON issues a GET for apiURL and decodes the JSON body into v
func fetchJSON(ctx context.Context, client *http.Client, apiURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("%s returned %s", apiURL, res.Status)
	}
	return json.NewDecoder(res.Body).Decode(v)
}
