package capability

import (
	"context"
	"testing"

	xerrors "github.com/mgarg123/ai-single-file-agents/internal/errors"
)

func noop(_ context.Context, _ map[string]any, _ Env) (string, any, error) {
	return "ok", nil, nil
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(Capability{Name: "list_files", Invoke: noop}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := registry.Register(Capability{Name: "list_files", Invoke: noop})
	if err == nil {
		t.Fatalf("expected duplicate error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeDuplicateCapability {
		t.Fatalf("unexpected code: %s", xerrors.CodeOf(err))
	}
}

func TestRegistryCatalogPreservesRegistrationOrder(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(
		Capability{Name: "zebra", Invoke: noop},
		Capability{Name: "apple", Invoke: noop},
		Capability{Name: "mango", Invoke: noop},
	)

	catalog := registry.Catalog()
	if len(catalog) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(catalog))
	}
	want := []string{"zebra", "apple", "mango"}
	for i, name := range want {
		if catalog[i].Name != name {
			t.Fatalf("catalog[%d] = %s, want %s", i, catalog[i].Name, name)
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(Capability{Name: "git_status", Invoke: noop})

	if _, ok := registry.Lookup("git_status"); !ok {
		t.Fatalf("expected to find registered capability")
	}
	if _, ok := registry.Lookup("git_push"); ok {
		t.Fatalf("lookup must miss for unregistered capability")
	}
}

func TestSignatureRendersParamsAndDefaults(t *testing.T) {
	cap := Capability{
		Name: "search_files_by_name",
		Params: []Param{
			{Name: "pattern", Type: "string", Required: true},
			{Name: "path", Type: "string", Required: false, Default: "."},
		},
	}
	got := cap.Signature()
	want := "search_files_by_name(pattern: string, path: string = .)"
	if got != want {
		t.Fatalf("Signature() = %q, want %q", got, want)
	}
}
