package core

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"planforge/internal/logging"
	"planforge/internal/tools"
)

// GlobTool returns a tool for finding files matching a pattern.
func GlobTool() *tools.Tool {
	return &tools.Tool{
		Name:         "glob",
		Description:  "Find files matching a glob pattern",
		Capabilities: []tools.Capability{tools.CapReadFiles},
		Execute:      executeGlob,
		Schema: tools.ToolSchema{
			Required: []string{"pattern"},
			Properties: map[string]tools.Property{
				"pattern": {
					Type:        "string",
					Description: "Glob pattern (e.g., '**/*.go', 'src/*.ts')",
				},
				"base_path": {
					Type:        "string",
					Description: "Base directory for search (default: working directory)",
				},
				"max_results": {
					Type:        "integer",
					Description: "Maximum number of results (default: 100)",
					Default:     100,
				},
			},
		},
	}
}

func executeGlob(ctx context.Context, args map[string]any, ectx *tools.ExecutionContext) (string, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return "", fmt.Errorf("%w: pattern is required", tools.ErrInvalidInput)
	}

	basePath := "."
	if bp, ok := args["base_path"].(string); ok && bp != "" {
		basePath = bp
	}
	basePath = resolvePath(basePath, ectx)

	maxResults := 100
	if mr, ok := intArg(args, "max_results"); ok && mr > 0 {
		maxResults = mr
	}

	logging.ToolsDebug("glob: pattern=%s, base=%s", pattern, basePath)

	var matches []string
	if strings.Contains(pattern, "**") {
		suffix := strings.TrimPrefix(strings.SplitN(pattern, "**", 2)[1], "/")
		err := filepath.Walk(basePath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if len(matches) >= maxResults {
				return filepath.SkipAll
			}
			if info.IsDir() {
				return nil
			}
			matched := suffix == ""
			if !matched {
				matched, _ = filepath.Match(suffix, info.Name())
			}
			if matched {
				relPath, _ := filepath.Rel(basePath, path)
				matches = append(matches, relPath)
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to walk directory: %w", err)
		}
	} else {
		globMatches, err := filepath.Glob(filepath.Join(basePath, pattern))
		if err != nil {
			return "", fmt.Errorf("invalid glob pattern: %w", err)
		}
		for _, m := range globMatches {
			if len(matches) >= maxResults {
				break
			}
			relPath, _ := filepath.Rel(basePath, m)
			matches = append(matches, relPath)
		}
	}

	if len(matches) == 0 {
		return "No files matched", nil
	}
	return strings.Join(matches, "\n"), nil
}

// SearchTextTool returns a tool for regex search across files.
func SearchTextTool() *tools.Tool {
	return &tools.Tool{
		Name:         "search_text",
		Description:  "Search file contents with a regular expression",
		Capabilities: []tools.Capability{tools.CapReadFiles},
		Execute:      executeSearchText,
		Schema: tools.ToolSchema{
			Required: []string{"pattern"},
			Properties: map[string]tools.Property{
				"pattern": {
					Type:        "string",
					Description: "Regular expression to search for",
				},
				"path": {
					Type:        "string",
					Description: "File or directory to search (default: working directory)",
				},
				"file_glob": {
					Type:        "string",
					Description: "Only search files matching this glob (e.g., '*.go')",
				},
				"max_results": {
					Type:        "integer",
					Description: "Maximum matching lines to return (default: 100)",
					Default:     100,
				},
			},
		},
	}
}

func executeSearchText(ctx context.Context, args map[string]any, ectx *tools.ExecutionContext) (string, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return "", fmt.Errorf("%w: pattern is required", tools.ErrInvalidInput)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("%w: invalid regex: %v", tools.ErrInvalidInput, err)
	}

	root, _ := args["path"].(string)
	if root == "" {
		root = "."
	}
	root = resolvePath(root, ectx)

	fileGlob, _ := args["file_glob"].(string)

	maxResults := 100
	if mr, ok := intArg(args, "max_results"); ok && mr > 0 {
		maxResults = mr
	}

	var sb strings.Builder
	count := 0

	searchFile := func(path string) error {
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if re.MatchString(line) {
				relPath, _ := filepath.Rel(root, path)
				if relPath == "." {
					relPath = filepath.Base(path)
				}
				fmt.Fprintf(&sb, "%s:%d: %s\n", relPath, lineNo, strings.TrimSpace(line))
				count++
				if count >= maxResults {
					return filepath.SkipAll
				}
			}
		}
		return nil
	}

	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("failed to stat path: %w", err)
	}

	if !info.IsDir() {
		_ = searchFile(root)
	} else {
		err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			name := info.Name()
			if info.IsDir() {
				if strings.HasPrefix(name, ".") && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return nil
			}
			if fileGlob != "" {
				if matched, _ := filepath.Match(fileGlob, name); !matched {
					return nil
				}
			}
			return searchFile(path)
		})
		if err != nil && err != filepath.SkipAll {
			return "", fmt.Errorf("search failed: %w", err)
		}
	}

	if count == 0 {
		return "No matches found", nil
	}
	return sb.String(), nil
}
