package run

import (
	"context"
	"testing"

	xerrors "github.com/mgarg123/ai-single-file-agents/internal/errors"
)

func newServiceFixture(t *testing.T) (*Service, *MemoryStore, *MemoryQueue) {
	t.Helper()
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	return NewService(store, queue, 3), store, queue
}

func TestServiceSubmitCreatesAndPublishes(t *testing.T) {
	service, store, queue := newServiceFixture(t)
	ctx := context.Background()

	created, err := service.Submit(ctx, SubmitRequest{Instruction: "create a.txt"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated run id")
	}
	if created.Agent != AgentFile {
		t.Fatalf("agent must default to file, got %s", created.Agent)
	}
	if created.Status != StatusPending || created.MaxRetries != 3 {
		t.Fatalf("unexpected run: %+v", created)
	}

	stored, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("stored run missing: %v", err)
	}
	if stored.Instruction != "create a.txt" {
		t.Fatalf("unexpected stored run: %+v", stored)
	}

	select {
	case id := <-queue.ch:
		if id != created.ID {
			t.Fatalf("published wrong id: %s", id)
		}
	default:
		t.Fatalf("expected run to be published")
	}
}

func TestServiceSubmitValidation(t *testing.T) {
	service, _, _ := newServiceFixture(t)
	ctx := context.Background()

	if _, err := service.Submit(ctx, SubmitRequest{Instruction: "   "}); xerrors.CodeOf(err) != CodeRunValidation {
		t.Fatalf("expected validation error for empty instruction, got %v", err)
	}
	if _, err := service.Submit(ctx, SubmitRequest{Instruction: "x", Agent: AgentKind("robot")}); xerrors.CodeOf(err) != CodeRunValidation {
		t.Fatalf("expected validation error for unknown agent, got %v", err)
	}
}

func TestServiceSubmitIsIdempotentByID(t *testing.T) {
	service, _, _ := newServiceFixture(t)
	ctx := context.Background()

	first, err := service.Submit(ctx, SubmitRequest{ID: "run-1", Instruction: "create a.txt"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := service.Submit(ctx, SubmitRequest{ID: "run-1", Instruction: "something else"})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID || second.Instruction != "create a.txt" {
		t.Fatalf("idempotent submit must return the original run: %+v", second)
	}
}

func TestServiceSubmitMarksFailedWhenPublishFails(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	if err := queue.Close(); err != nil {
		t.Fatal(err)
	}
	service := NewService(store, queue, 3)
	ctx := context.Background()

	_, err := service.Submit(ctx, SubmitRequest{ID: "run-1", Instruction: "create a.txt"})
	if xerrors.CodeOf(err) != CodeRunPublish {
		t.Fatalf("expected publish error, got %v", err)
	}

	stored, getErr := store.Get(ctx, "run-1")
	if getErr != nil {
		t.Fatal(getErr)
	}
	if stored.Status != StatusFailed || stored.ErrorCode != string(CodeRunPublish) {
		t.Fatalf("run must be failed after publish error: %+v", stored)
	}
}

func TestServiceListAndStats(t *testing.T) {
	service, _, _ := newServiceFixture(t)
	ctx := context.Background()

	for _, instruction := range []string{"one", "two", "three"} {
		if _, err := service.Submit(ctx, SubmitRequest{Instruction: instruction}); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := service.List(ctx, WithLimit(2))
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}

	stats, err := service.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.Pending != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
