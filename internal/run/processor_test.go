package run

import (
	"context"
	"testing"

	"github.com/mgarg123/ai-single-file-agents/internal/agent"
	xerrors "github.com/mgarg123/ai-single-file-agents/internal/errors"
)

type fakeRunner struct {
	result *agent.RunResult
	err    error
	calls  int
}

func (f *fakeRunner) Run(_ context.Context, _ AgentKind, _ string) (*agent.RunResult, error) {
	f.calls++
	return f.result, f.err
}

func newProcessorFixture(t *testing.T, runner Runner) (*Processor, *MemoryStore, *MemoryQueue) {
	t.Helper()
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	processor := NewProcessor(runner, store, queue, queue)
	return processor, store, queue
}

func TestProcessorHandleSuccess(t *testing.T) {
	runner := &fakeRunner{result: &agent.RunResult{
		Outcome:      agent.OutcomeDone,
		Summary:      "Task finished: completed 1 of 1 planned operation(s).",
		Executions:   1,
		Completed:    1,
		Estimated:    1,
		PlannerCalls: 1,
	}}
	processor, store, _ := newProcessorFixture(t, runner)

	ctx := context.Background()
	if err := store.Create(ctx, sampleRun("run-1")); err != nil {
		t.Fatal(err)
	}

	if err := processor.handle(ctx, "run-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", got.Status)
	}
	if got.Result == nil || got.Result.Executions != 1 || got.Result.Outcome != "done" {
		t.Fatalf("unexpected result: %+v", got.Result)
	}
}

func TestProcessorHandleNonRetryableFailure(t *testing.T) {
	failure := xerrors.New(xerrors.CodeStagnation, "no forward progress")
	runner := &fakeRunner{
		result: &agent.RunResult{
			Outcome:     agent.OutcomeFailed,
			FailureCode: xerrors.CodeStagnation,
			Summary:     `No forward progress: "delete_file" failed the same way twice in a row.`,
		},
		err: failure,
	}
	processor, store, queue := newProcessorFixture(t, runner)

	ctx := context.Background()
	if err := store.Create(ctx, sampleRun("run-1")); err != nil {
		t.Fatal(err)
	}

	if err := processor.handle(ctx, "run-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.ErrorCode != string(xerrors.CodeStagnation) {
		t.Fatalf("expected stagnation code, got %s", got.ErrorCode)
	}

	// 不可重试的失败不应重新入队。
	select {
	case id := <-queue.ch:
		t.Fatalf("unexpected republish of %s", id)
	default:
	}
}

func TestProcessorHandleRetryableFailureRepublishes(t *testing.T) {
	failure := xerrors.New(xerrors.CodePlannerCommunication, "connection refused",
		xerrors.WithRetryable(true))
	runner := &fakeRunner{err: failure}
	processor, store, queue := newProcessorFixture(t, runner)

	ctx := context.Background()
	if err := store.Create(ctx, sampleRun("run-1")); err != nil {
		t.Fatal(err)
	}

	if err := processor.handle(ctx, "run-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFailed || got.Attempts != 1 {
		t.Fatalf("unexpected run: %+v", got)
	}

	select {
	case id := <-queue.ch:
		if id != "run-1" {
			t.Fatalf("republished wrong run: %s", id)
		}
	default:
		t.Fatalf("expected republish for retryable failure")
	}
}

func TestProcessorHandleSkipsCompletedRun(t *testing.T) {
	runner := &fakeRunner{result: &agent.RunResult{Outcome: agent.OutcomeDone}}
	processor, store, _ := newProcessorFixture(t, runner)

	ctx := context.Background()
	if err := store.Create(ctx, sampleRun("run-1")); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkSucceeded(ctx, "run-1", ExecutionResult{Outcome: "done"}); err != nil {
		t.Fatal(err)
	}

	if err := processor.handle(ctx, "run-1"); err != nil {
		t.Fatalf("completed runs must be skipped silently, got %v", err)
	}
	if runner.calls != 0 {
		t.Fatalf("runner must not be invoked for completed runs")
	}
}

func TestProcessorHandleMissingRun(t *testing.T) {
	runner := &fakeRunner{}
	processor, _, _ := newProcessorFixture(t, runner)

	if err := processor.handle(context.Background(), "ghost"); err != nil {
		t.Fatalf("missing runs must be skipped silently, got %v", err)
	}
	if runner.calls != 0 {
		t.Fatalf("runner must not be invoked for missing runs")
	}
}

func TestRunnerFuncAdapter(t *testing.T) {
	called := false
	var fn Runner = RunnerFunc(func(_ context.Context, kind AgentKind, instruction string) (*agent.RunResult, error) {
		called = true
		if kind != AgentGit || instruction != "commit everything" {
			t.Fatalf("arguments not forwarded: %s %s", kind, instruction)
		}
		return &agent.RunResult{Outcome: agent.OutcomeDone}, nil
	})

	if _, err := fn.Run(context.Background(), AgentGit, "commit everything"); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatalf("adapter did not invoke wrapped function")
	}
}

func TestProcessorStartRequiresConsumer(t *testing.T) {
	processor := NewProcessor(&fakeRunner{}, NewMemoryStore(), nil, NewMemoryQueue(1))
	if err := processor.Start(context.Background()); err == nil {
		t.Fatalf("expected error when consumer is missing")
	}
}
