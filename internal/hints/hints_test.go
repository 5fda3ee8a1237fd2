package hints

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStaticProviderMatchesKeywords(t *testing.T) {
	provider := NewStaticProvider([]Snippet{
		{Title: "Renaming", Content: "rename keeps the directory", Keywords: []string{"rename"}},
		{Title: "Commits", Content: "stage before committing", Keywords: []string{"commit", "提交"}},
	}, 3)

	results := provider.Query("please RENAME a.txt to b.txt")
	if len(results) != 1 || results[0].Title != "Renaming" {
		t.Fatalf("unexpected results: %+v", results)
	}

	if got := provider.Query("open the browser"); len(got) != 0 {
		t.Fatalf("expected no matches, got %+v", got)
	}
}

func TestStaticProviderEmptyKeywordsAlwaysMatch(t *testing.T) {
	provider := NewStaticProvider([]Snippet{
		{Title: "General", Content: "always shown"},
	}, 3)

	if got := provider.Query("anything at all"); len(got) != 1 {
		t.Fatalf("keywordless snippets must always match, got %+v", got)
	}
}

func TestStaticProviderHonorsMaxResults(t *testing.T) {
	items := []Snippet{
		{Title: "a", Content: "a"},
		{Title: "b", Content: "b"},
		{Title: "c", Content: "c"},
		{Title: "d", Content: "d"},
	}
	provider := NewStaticProvider(items, 2)

	if got := provider.Query("x"); len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
}

func TestLoadStaticProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hints.yaml")
	raw := `- title: Renaming
  content: rename keeps the directory
  keywords: [rename]
  agents: [file]
- title: Commits
  content: stage before committing
  keywords: [commit]
  agents: [git]
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	provider, err := LoadStaticProvider(path, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	results := provider.Query("rename the file")
	if len(results) != 1 || results[0].Content != "rename keeps the directory" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestLoadStaticProviderErrors(t *testing.T) {
	if _, err := LoadStaticProvider("", 0); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := LoadStaticProvider(filepath.Join(t.TempDir(), "missing.yaml"), 0); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
