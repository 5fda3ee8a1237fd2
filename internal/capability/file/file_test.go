package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mgarg123/ai-single-file-agents/internal/capability"
)

func testExecutor(t *testing.T, confirm bool) (*capability.Executor, string) {
	t.Helper()
	dir := t.TempDir()
	registry := capability.NewRegistry()
	registry.MustRegister(Set()...)
	executor := capability.NewExecutor(registry,
		capability.WithWorkDir(dir),
		capability.WithConfirm(func(string) bool { return confirm }),
	)
	return executor, dir
}

func execute(t *testing.T, executor *capability.Executor, name string, args map[string]any) capability.Result {
	t.Helper()
	result, err := executor.Execute(context.Background(), capability.Invocation{Capability: name, Args: args})
	if err != nil {
		t.Fatalf("execute %s: %v", name, err)
	}
	return result
}

func TestCreateAndViewFile(t *testing.T) {
	executor, dir := testExecutor(t, true)

	result := execute(t, executor, "create_file", map[string]any{
		"path": ".", "filename": "a.txt", "content": "hello",
	})
	if !strings.Contains(result.Summary, "File created") {
		t.Fatalf("unexpected summary: %s", result.Summary)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil || string(raw) != "hello" {
		t.Fatalf("file content mismatch: %q err=%v", raw, err)
	}

	view := execute(t, executor, "view_file", map[string]any{"path": ".", "filename": "a.txt"})
	if !strings.Contains(view.Summary, "hello") {
		t.Fatalf("view did not include content: %s", view.Summary)
	}
}

func TestViewMissingFileReportsNotFound(t *testing.T) {
	executor, _ := testExecutor(t, true)

	result := execute(t, executor, "view_file", map[string]any{"path": ".", "filename": "missing.txt"})
	if !strings.Contains(result.Summary, "File not found") {
		t.Fatalf("unexpected summary: %s", result.Summary)
	}
}

func TestCreateFileOverwriteDeclined(t *testing.T) {
	executor, dir := testExecutor(t, false)
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := execute(t, executor, "create_file", map[string]any{
		"path": ".", "filename": "a.txt", "content": "new",
	})
	if !strings.Contains(result.Summary, "cancelled") {
		t.Fatalf("expected cancellation summary, got %s", result.Summary)
	}
	raw, _ := os.ReadFile(filepath.Join(dir, "a.txt"))
	if string(raw) != "old" {
		t.Fatalf("declined overwrite must not change content, got %q", raw)
	}
}

func TestDeleteFileConfirmedAndDeclined(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		executor, dir := testExecutor(t, false)
		path := filepath.Join(dir, "a.txt")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}

		result := execute(t, executor, "delete_file", map[string]any{"path": ".", "filename": "a.txt"})
		if !strings.Contains(result.Summary, "cancelled") {
			t.Fatalf("expected cancellation, got %s", result.Summary)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("declined deletion must keep the file")
		}
	})

	t.Run("confirmed", func(t *testing.T) {
		executor, dir := testExecutor(t, true)
		path := filepath.Join(dir, "a.txt")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}

		result := execute(t, executor, "delete_file", map[string]any{"path": ".", "filename": "a.txt"})
		if !strings.Contains(result.Summary, "File deleted") {
			t.Fatalf("unexpected summary: %s", result.Summary)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("file should be gone")
		}
	})
}

func TestDeleteMissingFile(t *testing.T) {
	executor, _ := testExecutor(t, true)

	result := execute(t, executor, "delete_file", map[string]any{"path": ".", "filename": "missing.txt"})
	if !strings.Contains(result.Summary, "File not found") {
		t.Fatalf("unexpected summary: %s", result.Summary)
	}
}

func TestAddContentAppendsAndOverwrites(t *testing.T) {
	executor, dir := testExecutor(t, true)
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("one"), 0o644); err != nil {
		t.Fatal(err)
	}

	execute(t, executor, "add_content_to_file", map[string]any{
		"path": ".", "filename": "a.txt", "content": "-two", "append": true,
	})
	raw, _ := os.ReadFile(path)
	if string(raw) != "one-two" {
		t.Fatalf("append failed: %q", raw)
	}

	execute(t, executor, "add_content_to_file", map[string]any{
		"path": ".", "filename": "a.txt", "content": "fresh", "append": false,
	})
	raw, _ = os.ReadFile(path)
	if string(raw) != "fresh" {
		t.Fatalf("overwrite failed: %q", raw)
	}
}

func TestRenameFileKeepsDirectory(t *testing.T) {
	executor, dir := testExecutor(t, true)
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	// 新名字里的路径部分被剥掉，重命名不允许跨目录移动。
	execute(t, executor, "rename_file", map[string]any{
		"path": ".", "filename": "a.txt", "new_filename": "sub/b.txt",
	})
	if _, err := os.Stat(filepath.Join(dir, "b.txt")); err != nil {
		t.Fatalf("renamed file missing in original directory: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sub", "b.txt")); !os.IsNotExist(err) {
		t.Fatalf("rename must not create files outside the directory")
	}
}

func TestFileExists(t *testing.T) {
	executor, dir := testExecutor(t, true)
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	yes := execute(t, executor, "file_exists", map[string]any{"path": ".", "filename": "a.txt"})
	if yes.Value != true {
		t.Fatalf("expected true, got %v", yes.Value)
	}
	no := execute(t, executor, "file_exists", map[string]any{"path": ".", "filename": "b.txt"})
	if no.Value != false {
		t.Fatalf("expected false, got %v", no.Value)
	}
	if !strings.Contains(no.Summary, "does not exist") {
		t.Fatalf("unexpected summary: %s", no.Summary)
	}
}

func TestSearchFileContent(t *testing.T) {
	executor, dir := testExecutor(t, true)
	content := "alpha\nbeta target line\ngamma\n"
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	result := execute(t, executor, "search_file_content", map[string]any{
		"path": ".", "filename": "a.txt", "search_term": "target",
	})
	if !strings.Contains(result.Summary, "target") {
		t.Fatalf("match missing from summary: %s", result.Summary)
	}
}

func TestCountLinesInFile(t *testing.T) {
	executor, dir := testExecutor(t, true)
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := execute(t, executor, "count_lines_in_file", map[string]any{"path": ".", "filename": "a.txt"})
	if !strings.Contains(result.Summary, "3") {
		t.Fatalf("unexpected summary: %s", result.Summary)
	}
}

func TestCreateAndDeleteDirectory(t *testing.T) {
	executor, dir := testExecutor(t, true)

	execute(t, executor, "create_directory", map[string]any{"path": "nested/inner"})
	if info, err := os.Stat(filepath.Join(dir, "nested", "inner")); err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}

	result := execute(t, executor, "delete_directory", map[string]any{"path": "nested"})
	if !strings.Contains(result.Summary, "deleted") {
		t.Fatalf("unexpected summary: %s", result.Summary)
	}
	if _, err := os.Stat(filepath.Join(dir, "nested")); !os.IsNotExist(err) {
		t.Fatalf("directory should be gone")
	}
}
