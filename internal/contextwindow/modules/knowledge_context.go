package modules

import (
	"context"
	"fmt"
	"strings"

	"weavectx/internal/contextwindow"
	tokenutil "weavectx/internal/shared/token"
)

// KnowledgeChunk is one retrieved chunk from a knowledge collection.
type KnowledgeChunk struct {
	Source  string
	Content string
}

// KnowledgeSource is the capability knowledge_context retrieves chunks
// through, wired at Dependencies["knowledge_retriever"].
type KnowledgeSource interface {
	RetrieveKnowledge(ctx context.Context, query string, k int) ([]KnowledgeChunk, error)
}

// KnowledgeContext contributes retrieved knowledge-base chunks relevant to
// the current query. Applies to rag-focused and tool-enabled profiles.
type KnowledgeContext struct {
	Base
}

func NewKnowledgeContext() *KnowledgeContext {
	return &KnowledgeContext{Base: NewBase("knowledge_context")}
}

func (m *KnowledgeContext) ModuleID() string { return "knowledge_context" }

func (m *KnowledgeContext) AppliesTo(profileType contextwindow.ProfileType) bool {
	return profileType == contextwindow.ProfileRAGFocused || profileType == contextwindow.ProfileToolEnabled
}

func renderKnowledge(chunks []KnowledgeChunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&sb, "[%s]\n%s\n\n", c.Source, c.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *KnowledgeContext) Contribute(ctx context.Context, budget int, actx *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	src, ok := actx.Dependencies["knowledge_retriever"].(KnowledgeSource)
	if !ok {
		return contextwindow.Contribution{Content: "", TokensUsed: 0, Metadata: map[string]any{}, Condensable: true}, nil
	}
	query, _ := actx.SessionData["user_query"].(string)
	const defaultK = 5
	chunks, err := src.RetrieveKnowledge(ctx, query, defaultK)
	if err != nil {
		return contextwindow.Contribution{}, fmt.Errorf("knowledge_context: retrieve: %w", err)
	}
	content := renderKnowledge(chunks)
	return contextwindow.Contribution{
		Content:     content,
		TokensUsed:  tokenutil.CountTokens(content),
		Metadata:    map[string]any{"chunk_count": len(chunks)},
		Condensable: true,
	}, nil
}

// Condense drops trailing chunks (lowest relevance, since chunks arrive
// ranked) until the block fits targetTokens.
func (m *KnowledgeContext) Condense(ctx context.Context, content string, targetTokens int, actx *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	src, ok := actx.Dependencies["knowledge_retriever"].(KnowledgeSource)
	if !ok {
		return m.Base.Condense(ctx, content, targetTokens, actx)
	}
	query, _ := actx.SessionData["user_query"].(string)
	const maxK = 5
	chunks, err := src.RetrieveKnowledge(ctx, query, maxK)
	if err != nil {
		return contextwindow.Contribution{}, fmt.Errorf("knowledge_context: retrieve: %w", err)
	}
	for len(chunks) > 0 {
		rendered := renderKnowledge(chunks)
		if targetTokens <= 0 || tokenutil.CountTokens(rendered) <= targetTokens {
			return contextwindow.Contribution{
				Content:    rendered,
				TokensUsed: tokenutil.CountTokens(rendered),
				Metadata:   map[string]any{"condensed": true, "strategy": "fewer_chunks", "chunk_count": len(chunks)},
				Condensable: true,
			}, nil
		}
		chunks = chunks[:len(chunks)-1]
	}
	return contextwindow.Contribution{
		Content:    "",
		TokensUsed: 0,
		Metadata:   map[string]any{"condensed": true, "strategy": "fewer_chunks", "chunk_count": 0},
	}, nil
}
