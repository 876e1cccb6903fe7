package modules

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"weavectx/internal/contextwindow"
	tokenutil "weavectx/internal/shared/token"
)

// ToolDefinition is one tool available to the current profile.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      string
}

// ToolDefinitions contributes the full tool catalog available to the
// current profile, read from Dependencies["tools"] ([]ToolDefinition).
// Applies only to tool-enabled and genie profiles; condensation drops to a
// names-only listing.
type ToolDefinitions struct {
	Base
}

func NewToolDefinitions() *ToolDefinitions {
	return &ToolDefinitions{Base: NewBase("tool_definitions")}
}

func (m *ToolDefinitions) ModuleID() string { return "tool_definitions" }

func (m *ToolDefinitions) AppliesTo(profileType contextwindow.ProfileType) bool {
	return profileType == contextwindow.ProfileToolEnabled || profileType == contextwindow.ProfileGenie
}

func (m *ToolDefinitions) tools(actx *contextwindow.AssemblyContext) []ToolDefinition {
	tools, _ := actx.Dependencies["tools"].([]ToolDefinition)
	sorted := append([]ToolDefinition(nil), tools...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return sorted
}

func (m *ToolDefinitions) Contribute(_ context.Context, _ int, actx *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	var sb strings.Builder
	for _, t := range m.tools(actx) {
		fmt.Fprintf(&sb, "## %s\n%s\n\n%s\n\n", t.Name, t.Description, t.Schema)
	}
	content := strings.TrimRight(sb.String(), "\n")
	return contextwindow.Contribution{
		Content:     content,
		TokensUsed:  tokenutil.CountTokens(content),
		Metadata:    map[string]any{"tool_count": len(m.tools(actx))},
		Condensable: true,
	}, nil
}

// Condense drops tool descriptions and schemas, keeping names only — the
// names-only strategy spec §4.3 calls for.
func (m *ToolDefinitions) Condense(_ context.Context, content string, targetTokens int, actx *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	names := make([]string, 0, len(m.tools(actx)))
	for _, t := range m.tools(actx) {
		names = append(names, t.Name)
	}
	reduced := "Available tools: " + strings.Join(names, ", ")
	tokens := tokenutil.CountTokens(reduced)
	if targetTokens > 0 && tokens > targetTokens {
		// Still over budget with names alone; truncate the list itself.
		for len(names) > 0 && tokenutil.CountTokens("Available tools: "+strings.Join(names, ", ")) > targetTokens {
			names = names[:len(names)-1]
		}
		reduced = "Available tools: " + strings.Join(names, ", ")
		tokens = tokenutil.CountTokens(reduced)
	}
	return contextwindow.Contribution{
		Content:    reduced,
		TokensUsed: tokens,
		Metadata: map[string]any{
			"condensed": true,
			"strategy":  "names_only",
		},
		Condensable: true,
	}, nil
}
