package modules

import (
	"context"

	"weavectx/internal/contextwindow"
	tokenutil "weavectx/internal/shared/token"
)

// SystemPrompt contributes the profile's static system prompt, read from
// AssemblyContext.Dependencies["system_prompt"]. It is required and applies
// to every profile type.
type SystemPrompt struct {
	Base
}

// NewSystemPrompt constructs the system_prompt module.
func NewSystemPrompt() *SystemPrompt {
	return &SystemPrompt{Base: NewBase("system_prompt")}
}

func (m *SystemPrompt) ModuleID() string { return "system_prompt" }

func (m *SystemPrompt) AppliesTo(_ contextwindow.ProfileType) bool { return true }

func (m *SystemPrompt) Contribute(_ context.Context, budget int, actx *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	prompt, _ := actx.Dependencies["system_prompt"].(string)
	tokens := tokenutil.CountTokens(prompt)
	return contextwindow.Contribution{
		Content:     prompt,
		TokensUsed:  tokens,
		Metadata:    map[string]any{},
		Condensable: false,
	}, nil
}
