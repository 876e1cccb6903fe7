package rag

import "testing"

func validPlan() []Phase {
	return []Phase{
		{ID: "p1", Required: true, Completed: true, ActionsRan: 2},
	}
}

func TestNewCaseID_Deterministic(t *testing.T) {
	a := NewCaseID("session-1", 3)
	b := NewCaseID("session-1", 3)
	if a != b {
		t.Fatalf("expected stable id, got %q and %q", a, b)
	}

	c := NewCaseID("session-1", 4)
	if a == c {
		t.Fatalf("expected different turn ids to produce different case ids")
	}
}

func TestExtractCase_RejectsEmptyQuery(t *testing.T) {
	turn := TurnSummary{UserQuery: "  ", OriginalPlan: validPlan()}
	if _, ok := ExtractCase(turn, "col-1", "user-1"); ok {
		t.Fatalf("expected extraction to reject an empty query")
	}
}

func TestExtractCase_RejectsEmptyPlan(t *testing.T) {
	turn := TurnSummary{UserQuery: "do the thing"}
	if _, ok := ExtractCase(turn, "col-1", "user-1"); ok {
		t.Fatalf("expected extraction to reject a turn with no plan")
	}
}

func TestExtractCase_RejectsUnrecoverableTrace(t *testing.T) {
	turn := TurnSummary{
		UserQuery:    "do the thing",
		OriginalPlan: validPlan(),
		Trace:        []TraceEntry{{Unrecoverable: true, Message: "boom"}},
	}
	if _, ok := ExtractCase(turn, "col-1", "user-1"); ok {
		t.Fatalf("expected extraction to reject an unrecoverable trace entry")
	}
}

func TestExtractCase_RejectsHistoryOnlyShortcut(t *testing.T) {
	turn := TurnSummary{
		UserQuery: "do the thing",
		OriginalPlan: []Phase{
			{ID: "p1", Required: true, Completed: true, ActionsRan: 1, ToolUsed: tdaContextReportTool},
		},
	}
	if _, ok := ExtractCase(turn, "col-1", "user-1"); ok {
		t.Fatalf("expected extraction to reject a plan relying on the history-only shortcut")
	}
}

func TestExtractCase_RejectsIncompleteRequiredPhasesWithoutOrchestration(t *testing.T) {
	turn := TurnSummary{
		UserQuery: "do the thing",
		OriginalPlan: []Phase{
			{ID: "p1", Required: true, Completed: false, ActionsRan: 1},
		},
	}
	if _, ok := ExtractCase(turn, "col-1", "user-1"); ok {
		t.Fatalf("expected extraction to reject incomplete required phases with no orchestration fallback")
	}
}

func TestExtractCase_AcceptsOrchestrationFallback(t *testing.T) {
	turn := TurnSummary{
		UserQuery: "do the thing",
		OriginalPlan: []Phase{
			{ID: "p1", Required: true, Completed: false, ActionsRan: 1},
		},
		SystemOrchestrationRan: true,
	}
	rc, ok := ExtractCase(turn, "col-1", "user-1")
	if !ok {
		t.Fatalf("expected extraction to accept the orchestration fallback")
	}
	if rc.StrategyType != StrategySuccessful {
		t.Fatalf("expected a successful case, got %q", rc.StrategyType)
	}
	if rc.CollectionID != "col-1" || rc.UserUUID != "user-1" {
		t.Fatalf("expected collection/user to be carried onto the case, got %+v", rc)
	}
}

func TestExtractCase_AcceptsFullyCompletedPlan(t *testing.T) {
	turn := TurnSummary{
		UserQuery:    "do the thing",
		OriginalPlan: validPlan(),
		OutputTokens: 42,
	}
	rc, ok := ExtractCase(turn, "col-1", "user-1")
	if !ok {
		t.Fatalf("expected extraction to accept a fully completed required plan")
	}
	if rc.OutputTokens != 42 {
		t.Fatalf("expected output tokens to carry over, got %d", rc.OutputTokens)
	}
	if rc.IsMostEfficient {
		t.Fatalf("expected a freshly extracted case to not yet be the champion")
	}
}
