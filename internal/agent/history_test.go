package agent

import "testing"

func TestLedgerAppendPreservesOrder(t *testing.T) {
	ledger := NewLedger()
	ledger.Append(TurnUser, "create a.txt")
	ledger.Append(TurnPlanner, `{"tool": "create_file"}`)
	ledger.Append(TurnObservation, "File created: a.txt")

	turns := ledger.Snapshot()
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].Role != TurnUser || turns[1].Role != TurnPlanner || turns[2].Role != TurnObservation {
		t.Fatalf("unexpected roles: %+v", turns)
	}
}

func TestLedgerSnapshotIsACopy(t *testing.T) {
	ledger := NewLedger()
	ledger.Append(TurnUser, "original")

	snapshot := ledger.Snapshot()
	snapshot[0].Content = "mutated"

	if turn, _ := ledger.Last(); turn.Content != "original" {
		t.Fatalf("snapshot mutation leaked into the ledger: %q", turn.Content)
	}
}

func TestLedgerTail(t *testing.T) {
	ledger := NewLedger()
	ledger.Append(TurnUser, "a")
	ledger.Append(TurnPlanner, "b")
	ledger.Append(TurnObservation, "c")

	tail := ledger.Tail(2)
	if len(tail) != 2 || tail[0].Content != "b" || tail[1].Content != "c" {
		t.Fatalf("unexpected tail: %+v", tail)
	}
	if got := ledger.Tail(0); len(got) != 3 {
		t.Fatalf("Tail(0) should return everything, got %d", len(got))
	}
	if got := ledger.Tail(10); len(got) != 3 {
		t.Fatalf("oversized tail should return everything, got %d", len(got))
	}
}

func TestLedgerLast(t *testing.T) {
	ledger := NewLedger()
	if _, ok := ledger.Last(); ok {
		t.Fatalf("empty ledger must not report a last turn")
	}
	ledger.Append(TurnUser, "a")
	turn, ok := ledger.Last()
	if !ok || turn.Content != "a" {
		t.Fatalf("unexpected last turn: %+v", turn)
	}
}
