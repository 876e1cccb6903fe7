package rag

import "fmt"

// RepositoryType distinguishes per-session planner strategy collections
// from cross-session knowledge collections.
type RepositoryType string

const (
	RepositoryPlanner   RepositoryType = "planner"
	RepositoryKnowledge RepositoryType = "knowledge"
)

// Visibility controls who can read a collection without an explicit
// subscription.
type Visibility string

const (
	VisibilityPrivate  Visibility = "private"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPublic   Visibility = "public"
)

// RAGCollection is a per-owner container of cases: a directory of case JSON
// files plus a per-collection vector index keyed on user_query embeddings.
type RAGCollection struct {
	ID             string
	DisplayName    string
	EmbeddingModel string
	RepositoryType RepositoryType

	// OwnerUUID is empty for admin-owned collections.
	OwnerUUID  string
	Visibility Visibility
	Enabled    bool

	// MCPServerID is required for planner collections (see Validate);
	// knowledge collections may leave it empty.
	MCPServerID string

	// ChunkSize/ChunkOverlap apply to knowledge collections only.
	ChunkSize    int
	ChunkOverlap int

	IsDefault bool
}

// Validate enforces the RAGCollection invariants from spec §3: planner
// collections require a non-null MCP server id; default collections cannot
// be removed (checked by the caller holding the default pointer, not here).
func (c *RAGCollection) Validate() error {
	if c.RepositoryType == RepositoryPlanner && c.MCPServerID == "" {
		return fmt.Errorf("collection %q: planner collections require an assigned MCP server id", c.ID)
	}
	return nil
}

// accessSubject is the caller context a collection access check is
// evaluated against.
type accessSubject struct {
	UserUUID    string
	Subscribed  map[string]bool // collection id -> subscribed
}

// isAccessible reports whether subject can read c, per spec §4.7:
// admin-owned, owned-by-user, public/unlisted, or explicitly subscribed.
func (c *RAGCollection) isAccessible(subject accessSubject) bool {
	if c.OwnerUUID == "" {
		return true
	}
	if c.OwnerUUID == subject.UserUUID {
		return true
	}
	if c.Visibility == VisibilityPublic || c.Visibility == VisibilityUnlisted {
		return true
	}
	return subject.Subscribed[c.ID]
}

// isWritable reports whether subject has write access to c: owned only.
// Subscribed and public/unlisted access never confers write access.
func (c *RAGCollection) isWritable(subject accessSubject) bool {
	if c.OwnerUUID == "" {
		return subject.UserUUID == ""
	}
	return c.OwnerUUID == subject.UserUUID
}
