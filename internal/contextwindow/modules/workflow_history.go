package modules

import (
	"context"
	"fmt"
	"strings"

	"weavectx/internal/contextwindow"
	tokenutil "weavectx/internal/shared/token"
)

// WorkflowStep is one completed step of the current turn's plan execution.
type WorkflowStep struct {
	Phase   string
	Summary string
}

// WorkflowHistory contributes a compact markdown summary of the current
// turn's executed plan steps, read from SessionData["workflow_history"]
// ([]WorkflowStep). Its canonical output is markdown; the strategic prompt
// builder re-adapts this into turn-indexed JSON (see
// contextwindow.Builder.formatStrategicHistory). Applies to tool-enabled
// and genie profiles only.
type WorkflowHistory struct {
	Base
}

func NewWorkflowHistory() *WorkflowHistory {
	return &WorkflowHistory{Base: NewBase("workflow_history")}
}

func (m *WorkflowHistory) ModuleID() string { return "workflow_history" }

func (m *WorkflowHistory) AppliesTo(profileType contextwindow.ProfileType) bool {
	return profileType == contextwindow.ProfileToolEnabled || profileType == contextwindow.ProfileGenie
}

func (m *WorkflowHistory) steps(actx *contextwindow.AssemblyContext) []WorkflowStep {
	steps, _ := actx.SessionData["workflow_history"].([]WorkflowStep)
	return steps
}

func (m *WorkflowHistory) render(steps []WorkflowStep) string {
	var sb strings.Builder
	for i, s := range steps {
		fmt.Fprintf(&sb, "%d. **%s** — %s\n", i+1, s.Phase, s.Summary)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *WorkflowHistory) Contribute(_ context.Context, _ int, actx *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	steps := m.steps(actx)
	content := m.render(steps)
	return contextwindow.Contribution{
		Content:     content,
		TokensUsed:  tokenutil.CountTokens(content),
		Metadata:    map[string]any{"step_count": len(steps)},
		Condensable: true,
	}, nil
}

// Condense drops the oldest steps, keeping the most recent ones that fit.
func (m *WorkflowHistory) Condense(_ context.Context, _ string, targetTokens int, actx *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	steps := m.steps(actx)
	for len(steps) > 1 {
		rendered := m.render(steps)
		if targetTokens <= 0 || tokenutil.CountTokens(rendered) <= targetTokens {
			break
		}
		steps = steps[1:]
	}
	content := m.render(steps)
	return contextwindow.Contribution{
		Content:    content,
		TokensUsed: tokenutil.CountTokens(content),
		Metadata: map[string]any{
			"condensed":     true,
			"strategy":      "sliding_window",
			"steps_retained": len(steps),
		},
		Condensable: true,
	}, nil
}
