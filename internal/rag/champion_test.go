package rag

import (
	"context"
	"testing"
)

func newTestEngine(t *testing.T) (*Engine, *RAGCollection) {
	t.Helper()
	e := NewEngine(t.TempDir(), nil)
	col := &RAGCollection{
		ID:             "planner-1",
		DisplayName:    "Planner One",
		RepositoryType: RepositoryPlanner,
		MCPServerID:    "mcp-1",
		OwnerUUID:      "user-1",
		Visibility:     VisibilityPrivate,
		Enabled:        true,
	}
	if err := e.RegisterCollection(col, nil); err != nil {
		t.Fatalf("register collection: %v", err)
	}
	e.embedders[col.ID] = nil
	e.stores[col.ID] = mustStore(t, e.collectionDir(col.ID), col.ID)
	return e, col
}

func mustStore(t *testing.T, dir, collection string) *VectorStore {
	t.Helper()
	store, err := NewVectorStore(StoreConfig{PersistPath: dir, Collection: collection}, stubEmbedder{})
	if err != nil {
		t.Fatalf("new vector store: %v", err)
	}
	return store
}

func successfulTurn(sessionID string, turnID int, query string, outputTokens int) TurnSummary {
	return TurnSummary{
		SessionID:    sessionID,
		TurnID:       turnID,
		UserQuery:    query,
		OriginalPlan: validPlan(),
		OutputTokens: outputTokens,
	}
}

func TestEngine_ProcessTurnForRAG_FirstCaseBecomesChampion(t *testing.T) {
	e, col := newTestEngine(t)
	ctx := context.Background()
	subject := AccessSubject{UserUUID: "user-1"}

	turn := successfulTurn("s1", 1, "how do I deploy", 100)
	rc, err := e.ProcessTurnForRAG(ctx, subject, turn, col.ID, "")
	if err != nil {
		t.Fatalf("process turn: %v", err)
	}
	if !rc.IsMostEfficient {
		t.Fatalf("expected the first successful case to become champion")
	}
}

func TestEngine_ProcessTurnForRAG_FewerTokensDisplacesChampion(t *testing.T) {
	e, col := newTestEngine(t)
	ctx := context.Background()
	subject := AccessSubject{UserUUID: "user-1"}

	first, err := e.ProcessTurnForRAG(ctx, subject, successfulTurn("s1", 1, "how do I deploy", 200), col.ID, "")
	if err != nil {
		t.Fatalf("process first turn: %v", err)
	}
	second, err := e.ProcessTurnForRAG(ctx, subject, successfulTurn("s1", 2, "how do I deploy", 50), col.ID, "")
	if err != nil {
		t.Fatalf("process second turn: %v", err)
	}

	if !second.IsMostEfficient {
		t.Fatalf("expected the cheaper case to become champion")
	}

	reloaded, err := loadCaseFile(casePath(e, col.ID, first.ID))
	if err != nil {
		t.Fatalf("reload first case: %v", err)
	}
	if reloaded.IsMostEfficient {
		t.Fatalf("expected the displaced champion to be demoted on disk")
	}
}

func TestEngine_ProcessTurnForRAG_RejectsWriteWithoutOwnership(t *testing.T) {
	e, col := newTestEngine(t)
	ctx := context.Background()
	subject := AccessSubject{UserUUID: "someone-else"}

	_, err := e.ProcessTurnForRAG(ctx, subject, successfulTurn("s1", 1, "how do I deploy", 100), col.ID, "")
	if err == nil {
		t.Fatalf("expected a non-owner to be rejected for write access")
	}
}

func TestEngine_UpdateCaseFeedback_DownvoteTriggersReelection(t *testing.T) {
	e, col := newTestEngine(t)
	ctx := context.Background()
	subject := AccessSubject{UserUUID: "user-1"}

	first, err := e.ProcessTurnForRAG(ctx, subject, successfulTurn("s1", 1, "how do I deploy", 200), col.ID, "")
	if err != nil {
		t.Fatalf("process first turn: %v", err)
	}
	second, err := e.ProcessTurnForRAG(ctx, subject, successfulTurn("s1", 2, "how do I deploy", 50), col.ID, "")
	if err != nil {
		t.Fatalf("process second turn: %v", err)
	}
	if !second.IsMostEfficient {
		t.Fatalf("expected second (cheaper) case to be champion before downvote")
	}

	if err := e.UpdateCaseFeedback(ctx, second.ID, -1); err != nil {
		t.Fatalf("update case feedback: %v", err)
	}

	reloadedFirst, err := loadCaseFile(casePath(e, col.ID, first.ID))
	if err != nil {
		t.Fatalf("reload first case: %v", err)
	}
	if !reloadedFirst.IsMostEfficient {
		t.Fatalf("expected re-election to promote the remaining non-downvoted case")
	}

	reloadedSecond, err := loadCaseFile(casePath(e, col.ID, second.ID))
	if err != nil {
		t.Fatalf("reload second case: %v", err)
	}
	if reloadedSecond.IsMostEfficient {
		t.Fatalf("expected the downvoted case to stay demoted")
	}
	if reloadedSecond.UserFeedbackScore != -1 {
		t.Fatalf("expected the downvoted case's score to persist, got %d", reloadedSecond.UserFeedbackScore)
	}
}

func TestOutranks_DownvotedNeverWins(t *testing.T) {
	candidate := &RAGCase{UserFeedbackScore: -1, OutputTokens: 1}
	incumbent := &RAGCase{UserFeedbackScore: 0, OutputTokens: 1000}
	if outranks(candidate, incumbent) {
		t.Fatalf("expected a downvoted candidate to never outrank an incumbent")
	}
}

func TestOutranks_DownvotedIncumbentAlwaysLoses(t *testing.T) {
	candidate := &RAGCase{UserFeedbackScore: 0, OutputTokens: 1000}
	incumbent := &RAGCase{UserFeedbackScore: -1, OutputTokens: 1}
	if !outranks(candidate, incumbent) {
		t.Fatalf("expected a downvoted incumbent to always lose")
	}
}

func casePath(e *Engine, collectionID string, id CaseID) string {
	return e.collectionDir(collectionID) + "/" + string(id) + ".json"
}
