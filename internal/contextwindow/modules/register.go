package modules

import "weavectx/internal/contextwindow"

// RegisterBuiltins registers every built-in context module on r with its
// category, capabilities, and default budget shape. Call once during
// process startup before the first Assemble.
func RegisterBuiltins(r *contextwindow.Registry) {
	r.RegisterBuiltin(contextwindow.ModuleDefinition{
		ModuleID:               "system_prompt",
		DisplayName:            "System Prompt",
		Version:                "1.0.0",
		Category:               "identity",
		Capabilities:           contextwindow.Capabilities{},
		ApplicableProfileTypes: allProfiles,
		Required:               true,
		Defaults:               contextwindow.ModuleDefaults{Priority: 100, TargetPct: 10, MinPct: 5, MaxPct: 15},
		Handler:                NewSystemPrompt(),
		Source:                 contextwindow.SourceBuiltin,
	})

	r.RegisterBuiltin(contextwindow.ModuleDefinition{
		ModuleID:               "tool_definitions",
		DisplayName:            "Tool Definitions",
		Version:                "1.0.0",
		Category:               "tools",
		Capabilities:           contextwindow.Capabilities{Condensable: true},
		ApplicableProfileTypes: []contextwindow.ProfileType{contextwindow.ProfileToolEnabled, contextwindow.ProfileGenie},
		Required:               false,
		Defaults:               contextwindow.ModuleDefaults{Priority: 90, TargetPct: 20, MinPct: 10, MaxPct: 30},
		Handler:                NewToolDefinitions(),
		Source:                 contextwindow.SourceBuiltin,
	})

	r.RegisterBuiltin(contextwindow.ModuleDefinition{
		ModuleID:               "conversation_history",
		DisplayName:            "Conversation History",
		Version:                "1.0.0",
		Category:               "history",
		Capabilities:           contextwindow.Capabilities{Condensable: true},
		ApplicableProfileTypes: allProfiles,
		Required:               false,
		Defaults:               contextwindow.ModuleDefaults{Priority: 70, TargetPct: 20, MinPct: 5, MaxPct: 35},
		Handler:                NewConversationHistory(),
		Source:                 contextwindow.SourceBuiltin,
	})

	r.RegisterBuiltin(contextwindow.ModuleDefinition{
		ModuleID:               "workflow_history",
		DisplayName:            "Workflow History",
		Version:                "1.0.0",
		Category:               "history",
		Capabilities:           contextwindow.Capabilities{Condensable: true},
		ApplicableProfileTypes: []contextwindow.ProfileType{contextwindow.ProfileToolEnabled, contextwindow.ProfileGenie},
		Required:               false,
		Defaults:               contextwindow.ModuleDefaults{Priority: 65, TargetPct: 15, MinPct: 5, MaxPct: 25},
		Handler:                NewWorkflowHistory(),
		Source:                 contextwindow.SourceBuiltin,
	})

	r.RegisterBuiltin(contextwindow.ModuleDefinition{
		ModuleID:               "rag_context",
		DisplayName:            "RAG Context",
		Version:                "1.0.0",
		Category:               "retrieval",
		Capabilities:           contextwindow.Capabilities{Condensable: true},
		ApplicableProfileTypes: []contextwindow.ProfileType{contextwindow.ProfileToolEnabled, contextwindow.ProfileRAGFocused, contextwindow.ProfileGenie},
		Required:               false,
		Defaults:               contextwindow.ModuleDefaults{Priority: 60, TargetPct: 15, MinPct: 0, MaxPct: 25},
		Handler:                NewRAGContext(),
		Source:                 contextwindow.SourceBuiltin,
	})

	r.RegisterBuiltin(contextwindow.ModuleDefinition{
		ModuleID:               "knowledge_context",
		DisplayName:            "Knowledge Context",
		Version:                "1.0.0",
		Category:               "retrieval",
		Capabilities:           contextwindow.Capabilities{Condensable: true},
		ApplicableProfileTypes: []contextwindow.ProfileType{contextwindow.ProfileRAGFocused, contextwindow.ProfileToolEnabled},
		Required:               false,
		Defaults:               contextwindow.ModuleDefaults{Priority: 55, TargetPct: 10, MinPct: 0, MaxPct: 20},
		Handler:                NewKnowledgeContext(),
		Source:                 contextwindow.SourceBuiltin,
	})

	r.RegisterBuiltin(contextwindow.ModuleDefinition{
		ModuleID:               "document_context",
		DisplayName:            "Document Context",
		Version:                "1.0.0",
		Category:               "attachments",
		Capabilities:           contextwindow.Capabilities{Condensable: true},
		ApplicableProfileTypes: allProfiles,
		Required:               false,
		Defaults:               contextwindow.ModuleDefaults{Priority: 50, TargetPct: 10, MinPct: 0, MaxPct: 20},
		Handler:                NewDocumentContext(),
		Source:                 contextwindow.SourceBuiltin,
	})

	r.RegisterBuiltin(contextwindow.ModuleDefinition{
		ModuleID:               "component_instructions",
		DisplayName:            "Component Instructions",
		Version:                "1.0.0",
		Category:               "tools",
		Capabilities:           contextwindow.Capabilities{Condensable: true},
		ApplicableProfileTypes: []contextwindow.ProfileType{contextwindow.ProfileToolEnabled, contextwindow.ProfileGenie},
		Required:               false,
		Defaults:               contextwindow.ModuleDefaults{Priority: 40, TargetPct: 10, MinPct: 0, MaxPct: 20},
		Handler:                NewComponentInstructions(),
		Source:                 contextwindow.SourceBuiltin,
	})
}

var allProfiles = []contextwindow.ProfileType{
	contextwindow.ProfileToolEnabled,
	contextwindow.ProfileLLMOnly,
	contextwindow.ProfileRAGFocused,
	contextwindow.ProfileGenie,
}
