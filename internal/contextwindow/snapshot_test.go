package contextwindow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_ToSummaryText(t *testing.T) {
	s := &ContextWindowSnapshot{
		AvailableBudget: 184000,
		TotalUsed:       10400,
		UtilizationPct:  5.7,
		Contributions: []ContributionMetric{
			{ModuleID: "system_prompt", Label: "System", TokensUsed: 1000, IsActive: true},
			{ModuleID: "tool_definitions", Label: "Tools", TokensUsed: 3200, IsActive: true},
			{ModuleID: "conversation_history", Label: "History", TokensUsed: 4100, IsActive: true},
			{ModuleID: "document_context", Label: "Docs", TokensUsed: 0, IsActive: true},
		},
	}

	text := s.ToSummaryText()
	assert.Contains(t, text, "Context: 10.4K/184K (5.7%)")
	assert.Contains(t, text, "Syst:1.0K")
	assert.Contains(t, text, "Tool:3.2K")
	assert.NotContains(t, text, "Docs:0.0K")
}

func TestSnapshot_ToSSEEvent(t *testing.T) {
	s := &ContextWindowSnapshot{
		ContextWindowTypeID:   "default",
		ContextWindowTypeName: "Default",
		ModelContextLimit:     128000,
		AvailableBudget:       112000,
		TotalUsed:             5000,
		UtilizationPct:        4.46,
		Contributions: []ContributionMetric{
			{ModuleID: "system_prompt", TokensAllocated: 10000, TokensUsed: 5000, Metadata: map[string]any{}},
		},
		ProfileType:       ProfileLLMOnly,
		ActiveModuleCount: 1,
		SessionID:         "sess-1",
		TurnNumber:        2,
	}

	event := s.ToSSEEvent()
	assert.Equal(t, "context_window_snapshot", event.Type)
	assert.Equal(t, "sess-1", event.SessionID)
	assert.Equal(t, 2, event.TurnNumber)
	require.Len(t, event.Contributions, 1)
	assert.Equal(t, "system_prompt", event.Contributions[0]["module_id"])
}
