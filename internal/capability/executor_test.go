package capability

import (
	"context"
	"errors"
	"testing"

	xerrors "github.com/mgarg123/ai-single-file-agents/internal/errors"
)

func executorWith(t *testing.T, caps ...Capability) *Executor {
	t.Helper()
	registry := NewRegistry()
	registry.MustRegister(caps...)
	return NewExecutor(registry, WithConfirm(func(string) bool { return true }))
}

func TestExecuteUnknownCapability(t *testing.T) {
	executor := executorWith(t, Capability{Name: "list_files", Invoke: noop})

	_, err := executor.Execute(context.Background(), Invocation{Capability: "teleport"})
	if err == nil {
		t.Fatalf("expected unknown capability error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeUnknownCapability {
		t.Fatalf("unexpected code: %s", xerrors.CodeOf(err))
	}
}

func TestExecuteMissingRequiredArgument(t *testing.T) {
	executor := executorWith(t, Capability{
		Name:   "view_file",
		Params: []Param{{Name: "filename", Type: "string", Required: true}},
		Invoke: noop,
	})

	_, err := executor.Execute(context.Background(), Invocation{Capability: "view_file", Args: map[string]any{}})
	if err == nil {
		t.Fatalf("expected missing argument error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeMissingArgument {
		t.Fatalf("unexpected code: %s", xerrors.CodeOf(err))
	}
}

func TestExecuteFillsDefaults(t *testing.T) {
	var seen map[string]any
	executor := executorWith(t, Capability{
		Name: "list_files",
		Params: []Param{
			{Name: "path", Type: "string", Required: false, Default: "."},
		},
		Invoke: func(_ context.Context, args map[string]any, _ Env) (string, any, error) {
			seen = args
			return "ok", nil, nil
		},
	})

	if _, err := executor.Execute(context.Background(), Invocation{Capability: "list_files", Args: map[string]any{}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen["path"] != "." {
		t.Fatalf("default not applied: %+v", seen)
	}
}

func TestExecuteCoercesJSONNumbers(t *testing.T) {
	var seen map[string]any
	executor := executorWith(t, Capability{
		Name: "find_large_files",
		Params: []Param{
			{Name: "limit", Type: "int", Required: true},
			{Name: "headless", Type: "bool", Required: false},
		},
		Invoke: func(_ context.Context, args map[string]any, _ Env) (string, any, error) {
			seen = args
			return "ok", nil, nil
		},
	})

	// JSON 反序列化把数字统一成 float64，布尔可能以字符串出现。
	_, err := executor.Execute(context.Background(), Invocation{
		Capability: "find_large_files",
		Args:       map[string]any{"limit": float64(5), "headless": "true"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen["limit"] != 5 {
		t.Fatalf("expected coerced int 5, got %T %v", seen["limit"], seen["limit"])
	}
	if seen["headless"] != true {
		t.Fatalf("expected coerced bool true, got %T %v", seen["headless"], seen["headless"])
	}
}

func TestExecuteRejectsUncoercibleArgument(t *testing.T) {
	executor := executorWith(t, Capability{
		Name:   "count_lines_in_file",
		Params: []Param{{Name: "limit", Type: "int", Required: true}},
		Invoke: noop,
	})

	_, err := executor.Execute(context.Background(), Invocation{
		Capability: "count_lines_in_file",
		Args:       map[string]any{"limit": "many"},
	})
	if err == nil {
		t.Fatalf("expected malformed arguments error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeMalformedArguments {
		t.Fatalf("unexpected code: %s", xerrors.CodeOf(err))
	}
}

func TestExecuteAbsorbsCapabilityError(t *testing.T) {
	executor := executorWith(t, Capability{
		Name: "git_commit",
		Invoke: func(_ context.Context, _ map[string]any, _ Env) (string, any, error) {
			return "", nil, errors.New("index locked")
		},
	})

	result, err := executor.Execute(context.Background(), Invocation{Capability: "git_commit"})
	if err != nil {
		t.Fatalf("capability errors must be absorbed, got %v", err)
	}
	if !result.Failed {
		t.Fatalf("expected failed result")
	}
	if result.Summary == "" {
		t.Fatalf("failure summary must not be empty")
	}
}

func TestExecuteAbsorbsPanic(t *testing.T) {
	executor := executorWith(t, Capability{
		Name: "flaky",
		Invoke: func(_ context.Context, _ map[string]any, _ Env) (string, any, error) {
			panic("nil dereference")
		},
	})

	result, err := executor.Execute(context.Background(), Invocation{Capability: "flaky"})
	if err != nil {
		t.Fatalf("panics must be absorbed, got %v", err)
	}
	if !result.Failed {
		t.Fatalf("expected failed result after panic")
	}
}

func TestExecutePassesEnvToCapability(t *testing.T) {
	var gotDir string
	var confirmed bool
	registry := NewRegistry()
	registry.MustRegister(Capability{
		Name: "delete_file",
		Invoke: func(_ context.Context, _ map[string]any, env Env) (string, any, error) {
			gotDir = env.WorkDir
			confirmed = env.Confirm("sure?")
			return "ok", nil, nil
		},
	})
	executor := NewExecutor(registry,
		WithWorkDir("/tmp/workspace"),
		WithConfirm(func(string) bool { return true }),
	)

	if _, err := executor.Execute(context.Background(), Invocation{Capability: "delete_file"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotDir != "/tmp/workspace" || !confirmed {
		t.Fatalf("env not injected: dir=%q confirmed=%v", gotDir, confirmed)
	}
}
