package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"planforge/internal/tools"
)

func testContext(dir string) *tools.ExecutionContext {
	return &tools.ExecutionContext{SessionID: "test", WorkingDir: dir}
}

func TestReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ectx := testContext(dir)

	out, err := executeWriteFile(context.Background(), map[string]any{
		"path":    "hello.txt",
		"content": "line one\nline two\nline three",
	}, ectx)
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !strings.Contains(out, "hello.txt") {
		t.Errorf("write output = %q", out)
	}

	got, err := executeReadFile(context.Background(), map[string]any{"path": "hello.txt"}, ectx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != "line one\nline two\nline three" {
		t.Errorf("read = %q", got)
	}
}

func TestReadFileLineRange(t *testing.T) {
	dir := t.TempDir()
	ectx := testContext(dir)
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("a\nb\nc\nd\ne"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := executeReadFile(context.Background(), map[string]any{
		"path":       "f.txt",
		"start_line": float64(2), // JSON decoding produces float64
		"end_line":   float64(4),
	}, ectx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != "b\nc\nd" {
		t.Errorf("range read = %q, want b/c/d", got)
	}
}

func TestEditFileReplacesFirst(t *testing.T) {
	dir := t.TempDir()
	ectx := testContext(dir)
	path := filepath.Join(dir, "e.txt")
	if err := os.WriteFile(path, []byte("foo bar foo"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := executeEditFile(context.Background(), map[string]any{
		"path":     "e.txt",
		"old_text": "foo",
		"new_text": "baz",
	}, ectx); err != nil {
		t.Fatalf("edit failed: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "baz bar foo" {
		t.Errorf("content = %q", content)
	}
}

func TestEditFileMissingOldText(t *testing.T) {
	dir := t.TempDir()
	ectx := testContext(dir)
	if err := os.WriteFile(filepath.Join(dir, "e.txt"), []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := executeEditFile(context.Background(), map[string]any{
		"path":     "e.txt",
		"old_text": "nope",
		"new_text": "x",
	}, ectx)
	if err == nil {
		t.Error("expected error for absent old_text")
	}
}

func TestDeleteFileRefusesDirectory(t *testing.T) {
	dir := t.TempDir()
	ectx := testContext(dir)
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	if _, err := executeDeleteFile(context.Background(), map[string]any{"path": "sub"}, ectx); err == nil {
		t.Error("expected error deleting a directory")
	}
}

func TestListFilesSkipsHidden(t *testing.T) {
	dir := t.TempDir()
	ectx := testContext(dir)
	for _, name := range []string{"a.txt", "b.txt", ".hidden"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := executeListFiles(context.Background(), map[string]any{}, ectx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if strings.Contains(out, ".hidden") {
		t.Errorf("hidden file listed: %q", out)
	}
	if !strings.Contains(out, "a.txt") || !strings.Contains(out, "b.txt") {
		t.Errorf("expected files missing: %q", out)
	}
}

func TestGlobRecursive(t *testing.T) {
	dir := t.TempDir()
	ectx := testContext(dir)
	if err := os.MkdirAll(filepath.Join(dir, "pkg", "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"main.go", "pkg/a.go", "pkg/sub/b.go", "pkg/readme.md"} {
		if err := os.WriteFile(filepath.Join(dir, p), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := executeGlob(context.Background(), map[string]any{"pattern": "**/*.go"}, ectx)
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	for _, want := range []string{"main.go", "a.go", "b.go"} {
		if !strings.Contains(out, want) {
			t.Errorf("glob output missing %s: %q", want, out)
		}
	}
	if strings.Contains(out, "readme.md") {
		t.Errorf("glob matched non-go file: %q", out)
	}
}

func TestSearchText(t *testing.T) {
	dir := t.TempDir()
	ectx := testContext(dir)
	if err := os.WriteFile(filepath.Join(dir, "code.go"), []byte("package x\nfunc Hello() {}\nfunc world() {}"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := executeSearchText(context.Background(), map[string]any{
		"pattern":   `func \w+\(\)`,
		"file_glob": "*.go",
	}, ectx)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(out, "code.go:2") {
		t.Errorf("search output = %q", out)
	}
}

func TestRegisterAll(t *testing.T) {
	reg := tools.NewRegistry()
	if err := RegisterAll(reg); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}
	for _, name := range []string{"read_file", "write_file", "edit_file", "delete_file", "list_files", "glob", "search_text"} {
		if !reg.Has(name) {
			t.Errorf("tool %s not registered", name)
		}
	}
	// Mutating tools must require approval; read-only ones must not.
	if !reg.Get("write_file").RequiresApproval {
		t.Error("write_file should require approval")
	}
	if reg.Get("read_file").RequiresApproval {
		t.Error("read_file should not require approval")
	}
}
