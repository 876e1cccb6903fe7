package modules

import (
	"context"
	"fmt"
	"strings"

	"weavectx/internal/contextwindow"
	tokenutil "weavectx/internal/shared/token"
)

// ComponentInstruction is one installed component's usage instructions
// surfaced to the model (distinct from tool schemas: free-form guidance on
// when/how to invoke a component's tools together).
type ComponentInstruction struct {
	Component    string
	Instructions string
}

// ComponentInstructions contributes per-component usage guidance, read
// from Dependencies["component_instructions"] ([]ComponentInstruction).
// Applies to tool-enabled and genie profiles.
type ComponentInstructions struct {
	Base
}

func NewComponentInstructions() *ComponentInstructions {
	return &ComponentInstructions{Base: NewBase("component_instructions")}
}

func (m *ComponentInstructions) ModuleID() string { return "component_instructions" }

func (m *ComponentInstructions) AppliesTo(profileType contextwindow.ProfileType) bool {
	return profileType == contextwindow.ProfileToolEnabled || profileType == contextwindow.ProfileGenie
}

func (m *ComponentInstructions) items(actx *contextwindow.AssemblyContext) []ComponentInstruction {
	items, _ := actx.Dependencies["component_instructions"].([]ComponentInstruction)
	return items
}

func renderComponents(items []ComponentInstruction) string {
	var sb strings.Builder
	for _, it := range items {
		fmt.Fprintf(&sb, "### %s\n%s\n\n", it.Component, it.Instructions)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *ComponentInstructions) Contribute(_ context.Context, _ int, actx *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	items := m.items(actx)
	content := renderComponents(items)
	return contextwindow.Contribution{
		Content:     content,
		TokensUsed:  tokenutil.CountTokens(content),
		Metadata:    map[string]any{"component_count": len(items)},
		Condensable: true,
	}, nil
}

// Condense drops components from the end of the supplied list first,
// keeping as many full instruction blocks as fit.
func (m *ComponentInstructions) Condense(_ context.Context, _ string, targetTokens int, actx *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	items := m.items(actx)
	for len(items) > 0 {
		rendered := renderComponents(items)
		if targetTokens <= 0 || tokenutil.CountTokens(rendered) <= targetTokens {
			return contextwindow.Contribution{
				Content:    rendered,
				TokensUsed: tokenutil.CountTokens(rendered),
				Metadata:   map[string]any{"condensed": true, "strategy": "fewer_components", "component_count": len(items)},
				Condensable: true,
			}, nil
		}
		items = items[:len(items)-1]
	}
	return contextwindow.Contribution{
		Content:    "",
		TokensUsed: 0,
		Metadata:   map[string]any{"condensed": true, "strategy": "fewer_components", "component_count": 0},
	}, nil
}
