package rag

import "testing"

func TestRAGCollection_Validate_PlannerRequiresMCPServerID(t *testing.T) {
	c := &RAGCollection{ID: "c1", RepositoryType: RepositoryPlanner}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected planner collection without an MCP server id to fail validation")
	}
	c.MCPServerID = "mcp-1"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected a planner collection with an MCP server id to validate, got %v", err)
	}
}

func TestRAGCollection_Validate_KnowledgeDoesNotRequireMCPServerID(t *testing.T) {
	c := &RAGCollection{ID: "c2", RepositoryType: RepositoryKnowledge}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected knowledge collection to validate without an MCP server id, got %v", err)
	}
}

func TestRAGCollection_IsAccessible(t *testing.T) {
	owned := &RAGCollection{ID: "c1", OwnerUUID: "u1", Visibility: VisibilityPrivate}
	admin := &RAGCollection{ID: "c2", Visibility: VisibilityPrivate}
	public := &RAGCollection{ID: "c3", OwnerUUID: "u2", Visibility: VisibilityPublic}
	subscribed := &RAGCollection{ID: "c4", OwnerUUID: "u2", Visibility: VisibilityPrivate}

	owner := accessSubject{UserUUID: "u1"}
	stranger := accessSubject{UserUUID: "u3"}
	subscriber := accessSubject{UserUUID: "u3", Subscribed: map[string]bool{"c4": true}}

	if !owned.isAccessible(owner) {
		t.Fatalf("expected owner to access their own collection")
	}
	if owned.isAccessible(stranger) {
		t.Fatalf("expected a stranger to be denied access to a private collection")
	}
	if !admin.isAccessible(stranger) {
		t.Fatalf("expected admin-owned collections to be accessible to any user")
	}
	if !public.isAccessible(stranger) {
		t.Fatalf("expected a public collection to be accessible to any user")
	}
	if subscribed.isAccessible(stranger) {
		t.Fatalf("expected a private collection to be inaccessible without a subscription")
	}
	if !subscribed.isAccessible(subscriber) {
		t.Fatalf("expected a subscribed user to access a private collection")
	}
}

func TestRAGCollection_IsWritable(t *testing.T) {
	owned := &RAGCollection{ID: "c1", OwnerUUID: "u1", Visibility: VisibilityPublic}
	public := &RAGCollection{ID: "c2", OwnerUUID: "u2", Visibility: VisibilityPublic}

	owner := accessSubject{UserUUID: "u1"}
	subscriber := accessSubject{UserUUID: "u3", Subscribed: map[string]bool{"c2": true}}

	if !owned.isWritable(owner) {
		t.Fatalf("expected the owner to have write access")
	}
	if public.isWritable(subscriber) {
		t.Fatalf("expected a subscriber without ownership to lack write access, even to a public collection")
	}
}
