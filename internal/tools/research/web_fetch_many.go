package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"planforge/internal/logging"
	"planforge/internal/tools"
)

// maxConcurrentFetches bounds parallelism for web_fetch_many.
const maxConcurrentFetches = 4

// WebFetchManyTool returns a tool for fetching several URLs concurrently.
func WebFetchManyTool() *tools.Tool {
	return &tools.Tool{
		Name:         "web_fetch_many",
		Description:  "Fetch the contents of several URLs concurrently (text and HTML only)",
		Capabilities: []tools.Capability{tools.CapNetwork},
		Execute:      executeWebFetchMany,
		Schema: tools.ToolSchema{
			Required: []string{"urls"},
			Properties: map[string]tools.Property{
				"urls": {
					Type:        "array",
					Description: "The URLs to fetch (http or https, at most 8)",
					Items:       &tools.PropertyItems{Type: "string"},
				},
				"timeout_seconds": {
					Type:        "integer",
					Description: "Per-request timeout in seconds (default: 30)",
					Default:     30,
				},
			},
		},
	}
}

func executeWebFetchMany(ctx context.Context, args map[string]any, ectx *tools.ExecutionContext) (string, error) {
	urls, err := urlsArg(args["urls"])
	if err != nil {
		return "", err
	}
	if len(urls) == 0 {
		return "", fmt.Errorf("%w: urls is required", tools.ErrInvalidInput)
	}
	if len(urls) > 8 {
		return "", fmt.Errorf("%w: at most 8 URLs per call", tools.ErrInvalidInput)
	}
	for _, u := range urls {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return "", fmt.Errorf("%w: only http and https URLs are supported: %s", tools.ErrInvalidInput, u)
		}
	}

	timeout := 30 * time.Second
	switch t := args["timeout_seconds"].(type) {
	case int:
		if t > 0 {
			timeout = time.Duration(t) * time.Second
		}
	case float64:
		if t > 0 {
			timeout = time.Duration(t) * time.Second
		}
	}

	logging.ToolsDebug("web_fetch_many: %d urls", len(urls))

	type result struct {
		body string
		err  error
	}

	results := make([]result, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, u := range urls {
		g.Go(func() error {
			body, err := fetchURL(gctx, u, timeout)
			// Individual failures are reported inline rather than
			// failing the whole batch.
			results[i] = result{body: body, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var out strings.Builder
	for i, r := range results {
		if i > 0 {
			out.WriteString("\n")
		}
		fmt.Fprintf(&out, "=== %s ===\n", urls[i])
		if r.err != nil {
			fmt.Fprintf(&out, "ERROR: %v\n", r.err)
			continue
		}
		out.WriteString(r.body)
		if !strings.HasSuffix(r.body, "\n") {
			out.WriteString("\n")
		}
	}
	return out.String(), nil
}

func urlsArg(v any) ([]string, error) {
	switch vals := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return vals, nil
	case []any:
		urls := make([]string, 0, len(vals))
		for _, item := range vals {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: urls must be strings", tools.ErrInvalidInput)
			}
			urls = append(urls, s)
		}
		return urls, nil
	default:
		return nil, fmt.Errorf("%w: urls must be an array of strings", tools.ErrInvalidInput)
	}
}
