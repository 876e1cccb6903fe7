// Package modules holds the built-in context modules: system prompt, tool
// definitions, conversation history, workflow history, RAG context,
// knowledge context, document context, and component instructions.
package modules

import (
	"context"

	"weavectx/internal/contextwindow"
	tokenutil "weavectx/internal/shared/token"
)

// Base supplies the default Condense/Purge/GetStatus behavior every
// built-in module inherits unless it overrides one. A module embedding Base
// and never overriding Condense is reported by the orchestrator as
// non-condensable, matching the contract in contextwindow.Condenser.
type Base struct {
	id string
}

// NewBase returns a Base tagged with the owning module's id, used in the
// default GetStatus payload.
func NewBase(moduleID string) Base {
	return Base{id: moduleID}
}

// Condense recomputes tokens_used via the estimator and reports the content
// unchanged, flagged non-condensable. Modules with a real condensation
// strategy override this.
func (b Base) Condense(_ context.Context, content string, _ int, _ *contextwindow.AssemblyContext) (contextwindow.Contribution, error) {
	return contextwindow.Contribution{
		Content:    content,
		TokensUsed: tokenutil.CountTokens(content),
		Metadata: map[string]any{
			"condensed": false,
			"reason":    "not condensable",
		},
		Condensable: false,
	}, nil
}

// Purge reports that the module owns no purgeable state. Modules with
// per-user cached or persistent state override this.
func (b Base) Purge(_ context.Context, _, _ string) (contextwindow.PurgeResult, error) {
	return contextwindow.PurgeResult{
		Purged:  false,
		Details: "module is not purgeable",
	}, nil
}

// GetStatus reports a minimal ok status. Modules with real health signals
// (cache size, last load error) override this.
func (b Base) GetStatus() map[string]any {
	return map[string]any{
		"status":    "ok",
		"module_id": b.id,
	}
}
