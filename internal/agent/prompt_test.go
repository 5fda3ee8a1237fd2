package agent

import (
	"strings"
	"testing"

	"github.com/mgarg123/ai-single-file-agents/internal/capability"
	"github.com/mgarg123/ai-single-file-agents/internal/hints"
	"github.com/mgarg123/ai-single-file-agents/internal/planner"
)

func promptRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	registry := capability.NewRegistry()
	registry.MustRegister(
		succeeding("create_note", "File created"),
		succeeding("delete_note", "File deleted"),
	)
	return registry
}

func TestSystemPromptListsCatalogInOrder(t *testing.T) {
	compiler := newPromptCompiler(promptRegistry(t), nil, 0)

	ledger := NewLedger()
	ledger.Append(TurnUser, "create a note")
	req := compiler.Compile("create a note", ledger)

	createIdx := strings.Index(req.System, "create_note(")
	deleteIdx := strings.Index(req.System, "delete_note(")
	if createIdx < 0 || deleteIdx < 0 {
		t.Fatalf("catalog entries missing from system prompt:\n%s", req.System)
	}
	if createIdx > deleteIdx {
		t.Fatalf("catalog must preserve registration order")
	}
	if !strings.Contains(req.System, `{"tool": <name>, "args": {...}, "done": <bool>}`) {
		t.Fatalf("envelope contract missing from system prompt")
	}
}

func TestCompileMapsRolesAndPrefixesObservations(t *testing.T) {
	compiler := newPromptCompiler(promptRegistry(t), nil, 0)

	ledger := NewLedger()
	ledger.Append(TurnUser, "create a note")
	ledger.Append(TurnPlanner, `{"tool": "create_note", "args": {}, "done": true}`)
	ledger.Append(TurnObservation, "File created: a.txt")

	req := compiler.Compile("create a note", ledger)
	if len(req.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != planner.RoleUser {
		t.Fatalf("first message should be the user instruction")
	}
	if req.Messages[1].Role != planner.RoleAssistant {
		t.Fatalf("planner turns must map to assistant messages")
	}
	if req.Messages[2].Role != planner.RoleUser || !strings.HasPrefix(req.Messages[2].Content, "Observation: ") {
		t.Fatalf("observation turns must be user messages with prefix, got %+v", req.Messages[2])
	}
}

func TestCompileRetentionKeepsFirstUserTurn(t *testing.T) {
	compiler := newPromptCompiler(promptRegistry(t), nil, 3)

	ledger := NewLedger()
	ledger.Append(TurnUser, "the instruction")
	for i := 0; i < 5; i++ {
		ledger.Append(TurnPlanner, "envelope")
		ledger.Append(TurnObservation, "result")
	}

	req := compiler.Compile("the instruction", ledger)
	if len(req.Messages) != 3 {
		t.Fatalf("expected 3 retained messages, got %d", len(req.Messages))
	}
	if req.Messages[0].Content != "the instruction" {
		t.Fatalf("first user turn must always survive retention")
	}
	if req.Messages[2].Content != "Observation: result" {
		t.Fatalf("retention must keep the most recent turns, got %+v", req.Messages[2])
	}
}

func TestSystemPromptIncludesMatchingHints(t *testing.T) {
	provider := hints.NewStaticProvider([]hints.Snippet{
		{Title: "Renaming", Content: "rename keeps the directory", Keywords: []string{"rename"}},
		{Title: "Unrelated", Content: "never shown", Keywords: []string{"browser"}},
	}, 3)
	compiler := newPromptCompiler(promptRegistry(t), provider, 0)

	ledger := NewLedger()
	ledger.Append(TurnUser, "rename a.txt to b.txt")
	req := compiler.Compile("rename a.txt to b.txt", ledger)

	if !strings.Contains(req.System, "rename keeps the directory") {
		t.Fatalf("matching hint missing from system prompt")
	}
	if strings.Contains(req.System, "never shown") {
		t.Fatalf("non-matching hint leaked into system prompt")
	}
}
