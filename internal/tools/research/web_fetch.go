// Package research provides the network-facing tools.
package research

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"planforge/internal/logging"
	"planforge/internal/tools"
)

// maxFetchBytes bounds fetched documents. Bigger pages are truncated.
const maxFetchBytes = 2 << 20 // 2MB

// WebFetchTool returns a tool for fetching a URL over HTTP GET.
func WebFetchTool() *tools.Tool {
	return &tools.Tool{
		Name:         "web_fetch",
		Description:  "Fetch the contents of a URL (text and HTML only)",
		Capabilities: []tools.Capability{tools.CapNetwork},
		Execute:      executeWebFetch,
		Schema: tools.ToolSchema{
			Required: []string{"url"},
			Properties: map[string]tools.Property{
				"url": {
					Type:        "string",
					Description: "The URL to fetch (http or https)",
				},
				"timeout_seconds": {
					Type:        "integer",
					Description: "Request timeout in seconds (default: 30)",
					Default:     30,
				},
			},
		},
	}
}

func executeWebFetch(ctx context.Context, args map[string]any, ectx *tools.ExecutionContext) (string, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return "", fmt.Errorf("%w: url is required", tools.ErrInvalidInput)
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("%w: only http and https URLs are supported", tools.ErrInvalidInput)
	}

	timeout := 30
	switch t := args["timeout_seconds"].(type) {
	case int:
		if t > 0 {
			timeout = t
		}
	case float64:
		if t > 0 {
			timeout = int(t)
		}
	}

	logging.ToolsDebug("web_fetch: url=%s", url)
	return fetchURL(ctx, url, time.Duration(timeout)*time.Second)
}

// fetchURL performs a bounded HTTP GET and returns the body as text.
func fetchURL(ctx context.Context, url string, timeout time.Duration) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; planforge/1.0)")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch failed: HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/") &&
		!strings.Contains(contentType, "json") && !strings.Contains(contentType, "xml") {
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	return string(body), nil
}
