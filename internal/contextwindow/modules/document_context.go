package modules

import (
	"context"
	"fmt"
	"strings"

	"weavectx/internal/contextwindow"
	tokenutil "weavectx/internal/shared/token"
)

// AttachedDocument is one document the user attached to the session.
type AttachedDocument struct {
	Name    string
	Content string
}

// DocumentContext contributes the text of documents attached to the
// session, read from SessionData["attached_documents"]
// ([]AttachedDocument). Condensation truncates each file individually
// rather than dropping whole documents, so every attachment keeps its
// heading; its text may be cut to nothing when its share of the budget is
// too small.
type DocumentContext struct {
	Base
}

func NewDocumentContext() *DocumentContext {
	return &DocumentContext{Base: NewBase("document_context")}
}

func (m *DocumentContext) ModuleID() string { return "document_context" }

func (m *DocumentContext) AppliesTo(_ contextwindow.ProfileType) bool { return true }

func (m *DocumentContext) docs(actx *contextwindow.AssemblyContext) []AttachedDocument {
	docs, _ := actx.SessionData["attached_documents"].([]AttachedDocument)
	return docs
}

func renderDocs(docs []AttachedDocument) string {
	var sb strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&sb, "### %s\n%s\n\n", d.Name, d.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *DocumentContext) Contribute(_ context.Context, _ int, actx *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	docs := m.docs(actx)
	content := renderDocs(docs)
	return contextwindow.Contribution{
		Content:     content,
		TokensUsed:  tokenutil.CountTokens(content),
		Metadata:    map[string]any{"document_count": len(docs)},
		Condensable: true,
	}, nil
}

// Condense gives each document an equal share of targetTokens and truncates
// its content to that share, rather than dropping whole documents.
func (m *DocumentContext) Condense(_ context.Context, _ string, targetTokens int, actx *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	docs := m.docs(actx)
	if len(docs) == 0 || targetTokens <= 0 {
		content := renderDocs(docs)
		return contextwindow.Contribution{Content: content, TokensUsed: tokenutil.CountTokens(content), Metadata: map[string]any{"condensed": true, "strategy": "per_file_truncation"}}, nil
	}

	perDocBudget := targetTokens / len(docs)
	truncated := make([]AttachedDocument, len(docs))
	for i, d := range docs {
		truncated[i] = AttachedDocument{Name: d.Name, Content: truncateToTokens(d.Content, perDocBudget)}
	}
	content := renderDocs(truncated)
	return contextwindow.Contribution{
		Content:    content,
		TokensUsed: tokenutil.CountTokens(content),
		Metadata: map[string]any{
			"condensed": true,
			"strategy":  "per_file_truncation",
		},
		Condensable: true,
	}, nil
}

// truncateToTokens trims s to roughly budget tokens by repeatedly cutting
// its character length in proportion to budget over its current token
// count, a cheap approximation that avoids re-tokenizing character by
// character.
func truncateToTokens(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	for tokenutil.CountTokens(s) > budget && len(s) > 0 {
		cut := len(s) * budget / max(tokenutil.CountTokens(s), 1)
		if cut >= len(s) {
			cut = len(s) - 1
		}
		if cut <= 0 {
			return ""
		}
		s = s[:cut]
	}
	return s
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
