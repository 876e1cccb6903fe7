package modules

import (
	"context"
	"fmt"
	"strings"

	"weavectx/internal/contextwindow"
	tokenutil "weavectx/internal/shared/token"
)

// RAGExample is one retrieved few-shot example from the RAG retriever.
type RAGExample struct {
	UserQuery string
	Strategy  string
	Score     float64
}

// RAGExampleSource is the capability the rag_context module pulls examples
// through; wired at AssemblyContext.Dependencies["rag_retriever"] so this
// package stays independent of the concrete internal/rag types.
type RAGExampleSource interface {
	RetrieveExamples(ctx context.Context, query string, k int) ([]RAGExample, float64, error)
}

// RAGContext contributes retrieved few-shot examples of successful past
// strategies for the current user query. Its metadata.confidence field
// drives the orchestrator's high_confidence_rag dynamic-adjustment
// condition. Condensation drops the lowest-scoring examples first.
type RAGContext struct {
	Base
}

func NewRAGContext() *RAGContext {
	return &RAGContext{Base: NewBase("rag_context")}
}

func (m *RAGContext) ModuleID() string { return "rag_context" }

func (m *RAGContext) AppliesTo(profileType contextwindow.ProfileType) bool {
	return profileType == contextwindow.ProfileToolEnabled ||
		profileType == contextwindow.ProfileRAGFocused ||
		profileType == contextwindow.ProfileGenie
}

func renderExamples(examples []RAGExample) string {
	var sb strings.Builder
	for _, e := range examples {
		fmt.Fprintf(&sb, "Query: %s\nStrategy: %s\n\n", e.UserQuery, e.Strategy)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *RAGContext) Contribute(ctx context.Context, budget int, actx *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	src, ok := actx.Dependencies["rag_retriever"].(RAGExampleSource)
	if !ok {
		return contextwindow.Contribution{Content: "", TokensUsed: 0, Metadata: map[string]any{}, Condensable: true}, nil
	}

	query, _ := actx.SessionData["user_query"].(string)
	const defaultK = 3
	examples, confidence, err := src.RetrieveExamples(ctx, query, defaultK)
	if err != nil {
		return contextwindow.Contribution{}, fmt.Errorf("rag_context: retrieve examples: %w", err)
	}

	content := renderExamples(examples)
	return contextwindow.Contribution{
		Content:    content,
		TokensUsed: tokenutil.CountTokens(content),
		Metadata: map[string]any{
			"example_count": len(examples),
			"confidence":    confidence,
		},
		Condensable: true,
	}, nil
}

// Condense drops the tail of the example list (lowest scoring, since
// examples arrive already sorted by descending adjusted score) until the
// rendered block fits targetTokens.
func (m *RAGContext) Condense(ctx context.Context, content string, targetTokens int, actx *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	src, ok := actx.Dependencies["rag_retriever"].(RAGExampleSource)
	if !ok {
		return m.Base.Condense(ctx, content, targetTokens, actx)
	}

	query, _ := actx.SessionData["user_query"].(string)
	const maxK = 3
	examples, confidence, err := src.RetrieveExamples(ctx, query, maxK)
	if err != nil {
		return contextwindow.Contribution{}, fmt.Errorf("rag_context: retrieve examples: %w", err)
	}

	for len(examples) > 0 {
		rendered := renderExamples(examples)
		if targetTokens <= 0 || tokenutil.CountTokens(rendered) <= targetTokens {
			return contextwindow.Contribution{
				Content:    rendered,
				TokensUsed: tokenutil.CountTokens(rendered),
				Metadata: map[string]any{
					"condensed":     true,
					"strategy":      "fewer_examples",
					"example_count": len(examples),
					"confidence":    confidence,
				},
				Condensable: true,
			}, nil
		}
		examples = examples[:len(examples)-1]
	}
	return contextwindow.Contribution{
		Content:    "",
		TokensUsed: 0,
		Metadata:   map[string]any{"condensed": true, "strategy": "fewer_examples", "example_count": 0},
	}, nil
}
