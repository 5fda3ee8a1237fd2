// Package file 提供面向本地文件系统的能力集。
// 所有能力的摘要面向规划器输出英文，破坏性操作在执行前
// 通过注入的确认端口征求操作者同意。
package file

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mgarg123/ai-single-file-agents/internal/capability"
)

// Set 返回文件系统能力集，注册顺序即目录渲染顺序。
func Set() []capability.Capability {
	return []capability.Capability{
		{
			Name:        "list_files",
			Description: "List all files (not directories) in the given directory.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Default: "."},
			},
			Invoke: listFiles,
		},
		{
			Name:        "list_directories",
			Description: "List all directories (not files) in the given directory.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Default: "."},
			},
			Invoke: listDirectories,
		},
		{
			Name:        "view_file",
			Description: "Show the contents of a file in the given directory.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Default: "."},
				{Name: "filename", Type: "string", Required: true},
			},
			Invoke: viewFile,
		},
		{
			Name:        "create_file",
			Description: "Create a new file with the specified content; asks before overwriting.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Default: "."},
				{Name: "filename", Type: "string", Required: true},
				{Name: "content", Type: "string", Default: ""},
			},
			Invoke: createFile,
		},
		{
			Name:        "add_content_to_file",
			Description: "Append content to an existing file, or overwrite it when append is false.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Default: "."},
				{Name: "filename", Type: "string", Required: true},
				{Name: "content", Type: "string", Required: true},
				{Name: "append", Type: "bool", Default: true},
			},
			Invoke: addContentToFile,
		},
		{
			Name:        "delete_file",
			Description: "Delete the specified file after operator confirmation.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Default: "."},
				{Name: "filename", Type: "string", Required: true},
			},
			Invoke: deleteFile,
		},
		{
			Name:        "rename_file",
			Description: "Rename a file in place to the specified new filename.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Default: "."},
				{Name: "filename", Type: "string", Required: true},
				{Name: "new_filename", Type: "string", Required: true},
			},
			Invoke: renameFile,
		},
		{
			Name:        "copy_file",
			Description: "Copy a file from the source directory to the destination directory.",
			Params: []capability.Param{
				{Name: "source_path", Type: "string", Default: "."},
				{Name: "filename", Type: "string", Required: true},
				{Name: "dest_path", Type: "string", Default: "."},
				{Name: "dest_filename", Type: "string", Default: ""},
			},
			Invoke: copyFile,
		},
		{
			Name:        "move_file",
			Description: "Move a file from the source directory to the destination directory.",
			Params: []capability.Param{
				{Name: "source_path", Type: "string", Default: "."},
				{Name: "filename", Type: "string", Required: true},
				{Name: "dest_path", Type: "string", Default: "."},
			},
			Invoke: moveFile,
		},
		{
			Name:        "file_exists",
			Description: "Check whether a file exists in the given directory.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Default: "."},
				{Name: "filename", Type: "string", Required: true},
			},
			Invoke: fileExists,
		},
		{
			Name:        "create_directory",
			Description: "Create a new directory at the specified path.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Required: true},
			},
			Invoke: createDirectory,
		},
		{
			Name:        "delete_directory",
			Description: "Delete a directory and its contents after operator confirmation.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Required: true},
			},
			Invoke: deleteDirectory,
		},
		{
			Name:        "search_files_by_name",
			Description: "Search for files whose names match a regular expression in the given directory.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Default: "."},
				{Name: "pattern", Type: "string", Required: true},
			},
			Invoke: searchFilesByName,
		},
		{
			Name:        "search_file_content",
			Description: "Search a file for lines containing the given text (case-insensitive).",
			Params: []capability.Param{
				{Name: "path", Type: "string", Default: "."},
				{Name: "filename", Type: "string", Required: true},
				{Name: "search_term", Type: "string", Required: true},
			},
			Invoke: searchFileContent,
		},
		{
			Name:        "search_text_across_files",
			Description: "Search all text files under a directory for a regular expression.",
			Params: []capability.Param{
				{Name: "pattern", Type: "string", Required: true},
				{Name: "directory", Type: "string", Default: "."},
			},
			Invoke: searchTextAcrossFiles,
		},
		{
			Name:        "replace_text_in_file",
			Description: "Replace every occurrence of old_text with new_text in the specified file.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Default: "."},
				{Name: "filename", Type: "string", Required: true},
				{Name: "old_text", Type: "string", Required: true},
				{Name: "new_text", Type: "string", Required: true},
			},
			Invoke: replaceTextInFile,
		},
		{
			Name:        "count_lines_in_file",
			Description: "Count the total number of lines in the specified file.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Default: "."},
				{Name: "filename", Type: "string", Required: true},
			},
			Invoke: countLinesInFile,
		},
		{
			Name:        "get_file_metadata",
			Description: "Report size, modification time and permissions for a file.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Default: "."},
				{Name: "filename", Type: "string", Required: true},
			},
			Invoke: fileMetadata,
		},
		{
			Name:        "get_directory_size",
			Description: "Calculate the total size of a directory including all subdirectories.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Default: "."},
			},
			Invoke: directorySize,
		},
		{
			Name:        "find_large_files",
			Description: "Find files larger than the given size in megabytes, searching recursively.",
			Params: []capability.Param{
				{Name: "min_size_mb", Type: "float", Required: true},
				{Name: "path", Type: "string", Default: "."},
			},
			Invoke: findLargeFiles,
		},
		{
			Name:        "find_duplicate_files",
			Description: "Find duplicate files by content hash, searching recursively.",
			Params: []capability.Param{
				{Name: "path", Type: "string", Default: "."},
			},
			Invoke: findDuplicateFiles,
		},
	}
}

// resolve 把规划器给出的路径折算成绝对路径：
// 处理 ".."/"~" 等别名并以 WorkDir 作为相对路径基准。
func resolve(env capability.Env, path string) string {
	trimmed := strings.ToLower(strings.TrimSpace(path))
	switch trimmed {
	case "", ".":
		path = "."
	case "previous directory", "parent directory", "..":
		path = ".."
	case "previous to previous directory", "two levels up", "../..":
		path = "../.."
	}
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	if !filepath.IsAbs(path) && env.WorkDir != "" {
		path = filepath.Join(env.WorkDir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func str(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func listFiles(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	dir := resolve(env, str(args, "path"))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Sprintf("Directory not found or inaccessible: %s", dir), nil, nil
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return fmt.Sprintf("Files in %s: none", dir), files, nil
	}
	return fmt.Sprintf("Files in %s: %s", dir, strings.Join(files, ", ")), files, nil
}

func listDirectories(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	dir := resolve(env, str(args, "path"))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Sprintf("Directory not found: %s", dir), nil, nil
	}
	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	sort.Strings(dirs)
	if len(dirs) == 0 {
		return fmt.Sprintf("Directories in %s: none", dir), dirs, nil
	}
	return fmt.Sprintf("Directories in %s: %s", dir, strings.Join(dirs, ", ")), dirs, nil
}

func viewFile(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	full := filepath.Join(resolve(env, str(args, "path")), str(args, "filename"))
	content, err := os.ReadFile(full)
	if err != nil {
		return fmt.Sprintf("File not found: %s", full), nil, nil
	}
	return fmt.Sprintf("Content of %s:\n%s", full, string(content)), string(content), nil
}

func createFile(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	dir := resolve(env, str(args, "path"))
	full := filepath.Join(dir, str(args, "filename"))
	if _, err := os.Stat(full); err == nil {
		if env.Confirm == nil || !env.Confirm(fmt.Sprintf("File %s already exists. Overwrite?", full)) {
			return "File creation cancelled", nil, nil
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(full, []byte(str(args, "content")), 0o644); err != nil {
		return "", nil, fmt.Errorf("create file %s: %w", full, err)
	}
	return fmt.Sprintf("File created: %s", full), nil, nil
}

func addContentToFile(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	full := filepath.Join(resolve(env, str(args, "path")), str(args, "filename"))
	if _, err := os.Stat(full); err != nil {
		return fmt.Sprintf("File not found: %s", full), nil, nil
	}
	appendMode := true
	if v, ok := args["append"].(bool); ok {
		appendMode = v
	}
	flags := os.O_WRONLY | os.O_CREATE
	action := "appended to"
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
		action = "overwritten in"
	}
	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("open file %s: %w", full, err)
	}
	defer f.Close()
	if _, err := f.WriteString(str(args, "content")); err != nil {
		return "", nil, fmt.Errorf("write file %s: %w", full, err)
	}
	return fmt.Sprintf("Content %s: %s", action, full), nil, nil
}

func deleteFile(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	full := filepath.Join(resolve(env, str(args, "path")), str(args, "filename"))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return fmt.Sprintf("File not found: %s", full), nil, nil
	}
	if env.Confirm == nil || !env.Confirm(fmt.Sprintf("Are you sure you want to delete %s?", full)) {
		return fmt.Sprintf("Deletion of %s cancelled.", full), nil, nil
	}
	if err := os.Remove(full); err != nil {
		return "", nil, fmt.Errorf("delete file %s: %w", full, err)
	}
	return fmt.Sprintf("File deleted: %s", full), nil, nil
}

func renameFile(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	full := filepath.Join(resolve(env, str(args, "path")), str(args, "filename"))
	if _, err := os.Stat(full); err != nil {
		return fmt.Sprintf("File not found: %s", full), nil, nil
	}
	// 新名字只保留文件名部分，禁止借改名移动到其他目录。
	newName := filepath.Base(strings.TrimSpace(str(args, "new_filename")))
	if newName == "" || newName == "." {
		return "Invalid new filename provided.", nil, nil
	}
	target := filepath.Join(filepath.Dir(full), newName)
	if err := os.Rename(full, target); err != nil {
		return "", nil, fmt.Errorf("rename %s: %w", full, err)
	}
	return fmt.Sprintf("Renamed: %s -> %s", full, target), nil, nil
}

func copyFile(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	source := filepath.Join(resolve(env, str(args, "source_path")), str(args, "filename"))
	destName := str(args, "dest_filename")
	if destName == "" {
		destName = str(args, "filename")
	}
	dest := filepath.Join(resolve(env, str(args, "dest_path")), destName)
	in, err := os.Open(source)
	if err != nil {
		return fmt.Sprintf("Source file not found: %s", source), nil, nil
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", nil, fmt.Errorf("create destination directory: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", nil, fmt.Errorf("create destination file %s: %w", dest, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return "", nil, fmt.Errorf("copy %s: %w", source, err)
	}
	return fmt.Sprintf("File copied: %s -> %s", source, dest), nil, nil
}

func moveFile(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	source := filepath.Join(resolve(env, str(args, "source_path")), str(args, "filename"))
	if _, err := os.Stat(source); err != nil {
		return fmt.Sprintf("Source file not found: %s", source), nil, nil
	}
	dest := filepath.Join(resolve(env, str(args, "dest_path")), str(args, "filename"))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", nil, fmt.Errorf("create destination directory: %w", err)
	}
	if err := os.Rename(source, dest); err != nil {
		return "", nil, fmt.Errorf("move %s: %w", source, err)
	}
	return fmt.Sprintf("File moved: %s -> %s", source, dest), nil, nil
}

func fileExists(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	full := filepath.Join(resolve(env, str(args, "path")), str(args, "filename"))
	info, err := os.Stat(full)
	exists := err == nil && !info.IsDir()
	if exists {
		return fmt.Sprintf("File exists: %s", full), true, nil
	}
	return fmt.Sprintf("File does not exist: %s", full), false, nil
}

func createDirectory(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	dir := resolve(env, str(args, "path"))
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		if env.Confirm == nil || !env.Confirm(fmt.Sprintf("Directory %s already exists. Recreate?", dir)) {
			return "Directory creation cancelled", nil, nil
		}
		if err := os.RemoveAll(dir); err != nil {
			return "", nil, fmt.Errorf("remove existing directory %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	return fmt.Sprintf("Directory created: %s", dir), nil, nil
}

func deleteDirectory(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	dir := resolve(env, str(args, "path"))
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Sprintf("Directory not found: %s", dir), nil, nil
	}
	if env.Confirm == nil || !env.Confirm(fmt.Sprintf("Delete %s and all of its contents?", dir)) {
		return fmt.Sprintf("Deletion of %s cancelled.", dir), nil, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", nil, fmt.Errorf("delete directory %s: %w", dir, err)
	}
	return fmt.Sprintf("Directory and its contents deleted: %s", dir), nil, nil
}

func searchFilesByName(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	dir := resolve(env, str(args, "path"))
	pattern, err := regexp.Compile("(?i)" + str(args, "pattern"))
	if err != nil {
		return fmt.Sprintf("Invalid pattern: %v", err), nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Sprintf("Directory not found: %s", dir), nil, nil
	}
	var matches []string
	for _, entry := range entries {
		if !entry.IsDir() && pattern.MatchString(entry.Name()) {
			matches = append(matches, entry.Name())
		}
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No files found matching %q in %s", str(args, "pattern"), dir), matches, nil
	}
	return fmt.Sprintf("Found %d file(s) matching %q in %s: %s",
		len(matches), str(args, "pattern"), dir, strings.Join(matches, ", ")), matches, nil
}

func searchFileContent(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	full := filepath.Join(resolve(env, str(args, "path")), str(args, "filename"))
	content, err := os.ReadFile(full)
	if err != nil {
		return fmt.Sprintf("File not found: %s", full), nil, nil
	}
	term := strings.ToLower(str(args, "search_term"))
	var matches []string
	for i, line := range strings.Split(string(content), "\n") {
		if strings.Contains(strings.ToLower(line), term) {
			matches = append(matches, fmt.Sprintf("Line %d: %s", i+1, strings.TrimSpace(line)))
		}
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No matches found for %q in %s", str(args, "search_term"), full), matches, nil
	}
	return fmt.Sprintf("Found %d match(es) for %q in %s:\n%s",
		len(matches), str(args, "search_term"), full, strings.Join(matches, "\n")), matches, nil
}

func searchTextAcrossFiles(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	dir := resolve(env, str(args, "directory"))
	pattern, err := regexp.Compile("(?i)" + str(args, "pattern"))
	if err != nil {
		return fmt.Sprintf("Invalid regex pattern: %v", err), nil, nil
	}
	type match struct {
		File    string `json:"file"`
		Line    int    `json:"line"`
		Content string `json:"content"`
	}
	var matches []match
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil || looksBinary(raw) {
			return nil
		}
		for i, line := range strings.Split(string(raw), "\n") {
			if pattern.MatchString(line) {
				matches = append(matches, match{File: path, Line: i + 1, Content: strings.TrimSpace(line)})
			}
		}
		return nil
	})
	if len(matches) == 0 {
		return fmt.Sprintf("No matches for pattern %q found in %s", str(args, "pattern"), dir), matches, nil
	}
	return fmt.Sprintf("Found %d matches for pattern %q in %s",
		len(matches), str(args, "pattern"), dir), matches, nil
}

func looksBinary(raw []byte) bool {
	limit := len(raw)
	if limit > 1024 {
		limit = 1024
	}
	for _, b := range raw[:limit] {
		if b == 0 {
			return true
		}
	}
	return false
}

func replaceTextInFile(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	full := filepath.Join(resolve(env, str(args, "path")), str(args, "filename"))
	raw, err := os.ReadFile(full)
	if err != nil {
		return fmt.Sprintf("File not found: %s", full), nil, nil
	}
	oldText, newText := str(args, "old_text"), str(args, "new_text")
	replaced := strings.ReplaceAll(string(raw), oldText, newText)
	if err := os.WriteFile(full, []byte(replaced), 0o644); err != nil {
		return "", nil, fmt.Errorf("write file %s: %w", full, err)
	}
	return fmt.Sprintf("Replaced %q with %q in %s", oldText, newText, full), nil, nil
}

func countLinesInFile(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	full := filepath.Join(resolve(env, str(args, "path")), str(args, "filename"))
	raw, err := os.ReadFile(full)
	if err != nil {
		return fmt.Sprintf("File not found: %s", full), nil, nil
	}
	count := strings.Count(string(raw), "\n")
	if len(raw) > 0 && !strings.HasSuffix(string(raw), "\n") {
		count++
	}
	return fmt.Sprintf("File %s contains %d line(s)", full, count), count, nil
}

func fileMetadata(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	full := filepath.Join(resolve(env, str(args, "path")), str(args, "filename"))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return fmt.Sprintf("File not found: %s", full), nil, nil
	}
	return fmt.Sprintf("Metadata for %s: size=%s, modified=%s, permissions=%o",
		full, formatSize(info.Size()), info.ModTime().Format("2006-01-02 15:04:05"), info.Mode().Perm()), nil, nil
}

func directorySize(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	dir := resolve(env, str(args, "path"))
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Sprintf("Directory not found or inaccessible: %s", dir), nil, nil
	}
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return fmt.Sprintf("Total size of directory %s: %s", dir, formatSize(total)), total, nil
}

func findLargeFiles(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	minMB, _ := args["min_size_mb"].(float64)
	dir := resolve(env, str(args, "path"))
	minBytes := int64(minMB * 1024 * 1024)
	var large []string
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil && info.Size() > minBytes {
			large = append(large, fmt.Sprintf("%s (%s)", path, formatSize(info.Size())))
		}
		return nil
	})
	if len(large) == 0 {
		return fmt.Sprintf("No files larger than %.1fMB found in %s", minMB, dir), large, nil
	}
	return fmt.Sprintf("Found %d files larger than %.1fMB in %s: %s",
		len(large), minMB, dir, strings.Join(large, ", ")), large, nil
}

func findDuplicateFiles(_ context.Context, args map[string]any, env capability.Env) (string, any, error) {
	dir := resolve(env, str(args, "path"))
	hashes := make(map[string][]string)
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		sum := fmt.Sprintf("%x", md5.Sum(raw))
		hashes[sum] = append(hashes[sum], path)
		return nil
	})
	duplicates := make(map[string][]string)
	for sum, paths := range hashes {
		if len(paths) > 1 {
			sort.Strings(paths)
			duplicates[sum] = paths
		}
	}
	if len(duplicates) == 0 {
		return fmt.Sprintf("No duplicate files found in %s", dir), duplicates, nil
	}
	return fmt.Sprintf("Found %d groups of duplicate files in %s", len(duplicates), dir), duplicates, nil
}

func formatSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d bytes", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(size)/1024)
	case size < 1024*1024*1024:
		return fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
	default:
		return fmt.Sprintf("%.2f GB", float64(size)/(1024*1024*1024))
	}
}
