package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.json")
	raw := `{
  "planner": {"provider": "openai"},
  "agent": {"hints_path": "hints.yaml", "work_dir": "workspace"}
}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address: %s", cfg.Server.Address)
	}
	if cfg.Storage.RunStore.Driver != "memory" || cfg.Queue.Driver != "memory" {
		t.Fatalf("unexpected driver defaults: %+v", cfg)
	}
	if cfg.Planner.OpenAI.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected model default: %s", cfg.Planner.OpenAI.Model)
	}
	if cfg.Agent.MaxRetries != 3 || cfg.Agent.Workers != 1 {
		t.Fatalf("unexpected agent defaults: %+v", cfg.Agent)
	}

	// 相对路径折算到配置文件所在目录。
	if cfg.Agent.HintsPath != filepath.Join(dir, "hints.yaml") {
		t.Fatalf("hints path not resolved: %s", cfg.Agent.HintsPath)
	}
	if cfg.Agent.WorkDir != filepath.Join(dir, "workspace") {
		t.Fatalf("work dir not resolved: %s", cfg.Agent.WorkDir)
	}
}

func TestLoadRejectsInvalidInput(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
}

func TestPlannerTimeout(t *testing.T) {
	cfg := Default()
	if cfg.PlannerTimeout() != 60*time.Second {
		t.Fatalf("unexpected default timeout: %v", cfg.PlannerTimeout())
	}
	cfg.Planner.TimeoutSecs = 5
	if cfg.PlannerTimeout() != 5*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.PlannerTimeout())
	}
}

func TestOpenAIKeyFromEnv(t *testing.T) {
	cfg := Default()
	cfg.Planner.OpenAI.APIKeyEnv = "TEST_PLANNER_KEY"

	t.Setenv("TEST_PLANNER_KEY", "secret")
	key, err := cfg.OpenAIKey()
	if err != nil || key != "secret" {
		t.Fatalf("unexpected key: %q err=%v", key, err)
	}

	t.Setenv("TEST_PLANNER_KEY", "")
	if _, err := cfg.OpenAIKey(); err == nil {
		t.Fatalf("expected error for unset key")
	}
}
