package rag

import (
	"context"
	"testing"
)

func TestExampleSource_RetrieveExamples_EmptyWhenNoCases(t *testing.T) {
	e, col := newTestEngine(t)
	source := NewExampleSource(e, AccessSubject{UserUUID: "user-1"}, []string{col.ID})

	examples, confidence, err := source.RetrieveExamples(context.Background(), "how do I deploy", 3)
	if err != nil {
		t.Fatalf("retrieve examples: %v", err)
	}
	if len(examples) != 0 {
		t.Fatalf("expected no examples from an empty collection, got %d", len(examples))
	}
	if confidence != 0 {
		t.Fatalf("expected zero confidence with no results, got %v", confidence)
	}
}

func TestExampleSource_RetrieveExamples_ReturnsChampion(t *testing.T) {
	e, col := newTestEngine(t)
	ctx := context.Background()
	subject := AccessSubject{UserUUID: "user-1"}

	if _, err := e.ProcessTurnForRAG(ctx, subject, successfulTurn("s1", 1, "how do I deploy", 100), col.ID, ""); err != nil {
		t.Fatalf("process turn: %v", err)
	}

	source := NewExampleSource(e, subject, []string{col.ID})
	examples, _, err := source.RetrieveExamples(ctx, "how do I deploy", 3)
	if err != nil {
		t.Fatalf("retrieve examples: %v", err)
	}
	if len(examples) != 1 {
		t.Fatalf("expected one retrieved example, got %d", len(examples))
	}
	if examples[0].UserQuery != "how do I deploy" {
		t.Fatalf("expected the retrieved example's query to carry over, got %q", examples[0].UserQuery)
	}
}
