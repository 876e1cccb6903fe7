package modules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weavectx/internal/contextwindow"
)

func TestSystemPrompt_Contribute(t *testing.T) {
	m := NewSystemPrompt()
	actx := &contextwindow.AssemblyContext{
		Dependencies: map[string]any{"system_prompt": "You are a helpful assistant."},
	}

	contrib, err := m.Contribute(context.Background(), 100, actx)
	require.NoError(t, err)
	assert.Equal(t, "You are a helpful assistant.", contrib.Content)
	assert.Greater(t, contrib.TokensUsed, 0)
	assert.False(t, contrib.Condensable)
	assert.True(t, m.AppliesTo(contextwindow.ProfileLLMOnly))
}

func TestToolDefinitions_CondenseNamesOnly(t *testing.T) {
	m := NewToolDefinitions()
	actx := &contextwindow.AssemblyContext{
		Dependencies: map[string]any{"tools": []ToolDefinition{
			{Name: "search_code", Description: "Search the repository", Schema: "{}"},
			{Name: "read_file", Description: "Read a file", Schema: "{}"},
		}},
	}

	full, err := m.Contribute(context.Background(), 1000, actx)
	require.NoError(t, err)
	assert.Contains(t, full.Content, "Search the repository")

	condensed, err := m.Condense(context.Background(), full.Content, 1000, actx)
	require.NoError(t, err)
	assert.Contains(t, condensed.Content, "search_code")
	assert.Contains(t, condensed.Content, "read_file")
	assert.NotContains(t, condensed.Content, "Search the repository")
	assert.Equal(t, "names_only", condensed.Metadata["strategy"])
	assert.Less(t, condensed.TokensUsed, full.TokensUsed)
}

func TestConversationHistory_SlidingWindow(t *testing.T) {
	m := NewConversationHistory()
	turns := []ConversationTurn{
		{Role: "user", Content: "first message, fairly long so it costs tokens"},
		{Role: "assistant", Content: "first reply, also fairly long to cost tokens"},
		{Role: "user", Content: "second message"},
		{Role: "assistant", Content: "second reply"},
	}
	actx := &contextwindow.AssemblyContext{SessionData: map[string]any{"conversation_history": turns}}

	full, err := m.Contribute(context.Background(), 1000, actx)
	require.NoError(t, err)
	assert.Contains(t, full.Content, "first message")

	condensed, err := m.Condense(context.Background(), full.Content, 5, actx)
	require.NoError(t, err)
	assert.LessOrEqual(t, condensed.TokensUsed, full.TokensUsed)
	assert.Equal(t, "sliding_window", condensed.Metadata["strategy"])
	// The most recent turn must survive the window slide.
	assert.Contains(t, condensed.Content, "second reply")
}

func TestDocumentContext_PerFileTruncation(t *testing.T) {
	m := NewDocumentContext()
	docs := []AttachedDocument{
		{Name: "a.txt", Content: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		{Name: "b.txt", Content: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"},
	}
	actx := &contextwindow.AssemblyContext{SessionData: map[string]any{"attached_documents": docs}}

	full, err := m.Contribute(context.Background(), 1000, actx)
	require.NoError(t, err)

	condensed, err := m.Condense(context.Background(), full.Content, 8, actx)
	require.NoError(t, err)
	assert.Contains(t, condensed.Content, "a.txt")
	assert.Contains(t, condensed.Content, "b.txt")
	assert.LessOrEqual(t, condensed.TokensUsed, full.TokensUsed)
}

func TestBase_DefaultsWhenNotOverridden(t *testing.T) {
	b := NewBase("example_module")
	status := b.GetStatus()
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, "example_module", status["module_id"])

	purge, err := b.Purge(context.Background(), "session-1", "user-1")
	require.NoError(t, err)
	assert.False(t, purge.Purged)

	contrib, err := b.Condense(context.Background(), "some content", 10, &contextwindow.AssemblyContext{})
	require.NoError(t, err)
	assert.False(t, contrib.Condensable)
	assert.Equal(t, "not condensable", contrib.Metadata["reason"])
}
