package modules

import (
	"context"
	"fmt"
	"strings"

	"weavectx/internal/contextwindow"
	tokenutil "weavectx/internal/shared/token"
)

// ConversationTurn is one prior turn in the session's history.
type ConversationTurn struct {
	Role    string
	Content string
}

// ConversationHistory contributes the running conversation transcript, read
// from SessionData["conversation_history"] ([]ConversationTurn). Applies to
// all profile types; condensation slides the window to the most recent
// turns that fit the target budget.
type ConversationHistory struct {
	Base
}

func NewConversationHistory() *ConversationHistory {
	return &ConversationHistory{Base: NewBase("conversation_history")}
}

func (m *ConversationHistory) ModuleID() string { return "conversation_history" }

func (m *ConversationHistory) AppliesTo(_ contextwindow.ProfileType) bool { return true }

func (m *ConversationHistory) turns(actx *contextwindow.AssemblyContext) []ConversationTurn {
	turns, _ := actx.SessionData["conversation_history"].([]ConversationTurn)
	return turns
}

func render(turns []ConversationTurn) string {
	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *ConversationHistory) Contribute(_ context.Context, _ int, actx *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	content := render(m.turns(actx))
	return contextwindow.Contribution{
		Content:     content,
		TokensUsed:  tokenutil.CountTokens(content),
		Metadata:    map[string]any{"turn_count": len(m.turns(actx))},
		Condensable: true,
	}, nil
}

// Condense slides the window forward, dropping the oldest turns first,
// until the rendered transcript fits targetTokens.
func (m *ConversationHistory) Condense(_ context.Context, _ string, targetTokens int, actx *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	turns := m.turns(actx)
	for len(turns) > 1 {
		rendered := render(turns)
		if targetTokens <= 0 || tokenutil.CountTokens(rendered) <= targetTokens {
			break
		}
		turns = turns[1:]
	}
	content := render(turns)
	return contextwindow.Contribution{
		Content:    content,
		TokensUsed: tokenutil.CountTokens(content),
		Metadata: map[string]any{
			"condensed":        true,
			"strategy":         "sliding_window",
			"turns_retained":   len(turns),
		},
		Condensable: true,
	}, nil
}
