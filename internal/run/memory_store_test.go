package run

import (
	"context"
	"errors"
	"testing"
)

func sampleRun(id string) *Run {
	return &Run{
		ID:          id,
		Instruction: "create a.txt",
		Agent:       AgentFile,
		Status:      StatusPending,
		MaxRetries:  3,
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, sampleRun("run-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Instruction != "create a.txt" || got.Status != StatusPending {
		t.Fatalf("unexpected run: %+v", got)
	}

	if err := store.Create(ctx, sampleRun("run-1")); !errors.Is(err, ErrRunConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreClaimTransitions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, sampleRun("run-1")); err != nil {
		t.Fatal(err)
	}

	claimed, err := store.Claim(ctx, "run-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed run: %+v", claimed)
	}

	if _, err := store.Claim(ctx, "run-1"); !errors.Is(err, ErrRunConflict) {
		t.Fatalf("expected conflict on running run, got %v", err)
	}

	if err := store.MarkSucceeded(ctx, "run-1", ExecutionResult{Outcome: "done", Summary: "ok"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if _, err := store.Claim(ctx, "run-1"); !errors.Is(err, ErrRunCompleted) {
		t.Fatalf("expected completed error, got %v", err)
	}
}

func TestMemoryStoreClaimExhaustsRetries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	r := sampleRun("run-1")
	r.MaxRetries = 2
	if err := store.Create(ctx, r); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := store.Claim(ctx, "run-1"); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if err := store.MarkFailed(ctx, "run-1", CodeRunProcessing, "boom", false); err != nil {
			t.Fatalf("mark failed %d: %v", i, err)
		}
	}

	if _, err := store.Claim(ctx, "run-1"); !errors.Is(err, ErrRunExhausted) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
}

func TestMemoryStoreMarkFailedRecordsError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, sampleRun("run-1")); err != nil {
		t.Fatal(err)
	}

	if err := store.MarkFailed(ctx, "run-1", CodeRunProcessing, "planner unreachable", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFailed || got.LastError != "planner unreachable" || got.ErrorCode != string(CodeRunProcessing) {
		t.Fatalf("unexpected run: %+v", got)
	}
}

func TestMemoryStoreListFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	pending := sampleRun("run-pending")
	failed := sampleRun("run-failed")
	failed.Agent = AgentGit
	gitRun := sampleRun("run-git")
	gitRun.Agent = AgentGit

	for _, r := range []*Run{pending, failed, gitRun} {
		if err := store.Create(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.MarkFailed(ctx, "run-failed", CodeRunProcessing, "boom", true); err != nil {
		t.Fatal(err)
	}

	byStatus, err := store.List(ctx, ListOptions{Statuses: []Status{StatusFailed}})
	if err != nil {
		t.Fatal(err)
	}
	if len(byStatus) != 1 || byStatus[0].ID != "run-failed" {
		t.Fatalf("unexpected status filter result: %+v", byStatus)
	}

	byAgent, err := store.List(ctx, ListOptions{Agents: []AgentKind{AgentGit}})
	if err != nil {
		t.Fatal(err)
	}
	if len(byAgent) != 2 {
		t.Fatalf("expected 2 git runs, got %d", len(byAgent))
	}

	byQuery, err := store.List(ctx, ListOptions{Query: "boom"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byQuery) != 1 || byQuery[0].ID != "run-failed" {
		t.Fatalf("unexpected query result: %+v", byQuery)
	}
}

func TestMemoryStoreListPagination(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := store.Create(ctx, sampleRun(id)); err != nil {
			t.Fatal(err)
		}
	}

	page, err := store.List(ctx, ListOptions{Limit: 2, Offset: 1, Order: SortByUpdatedAsc})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 results, got %d", len(page))
	}

	empty, err := store.List(ctx, ListOptions{Offset: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %d", len(empty))
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, sampleRun(id)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.Claim(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkSucceeded(ctx, "a", ExecutionResult{Outcome: "done"}); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkFailed(ctx, "b", CodeRunProcessing, "boom", true); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.Succeeded != 1 || stats.Failed != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.NewestUpdatedAt == 0 || stats.OldestUpdatedAt == 0 {
		t.Fatalf("expected updated bounds to be populated: %+v", stats)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, sampleRun("run-1")); err != nil {
		t.Fatal(err)
	}

	first, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	first.Instruction = "mutated"

	second, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if second.Instruction != "create a.txt" {
		t.Fatalf("store must return copies, got %q", second.Instruction)
	}
}
