package contextwindow

import (
	"encoding/json"
	"fmt"

	"weavectx/internal/shared/logging"
	tokenutil "weavectx/internal/shared/token"
)

// CallType is one of the four known LLM call-site variable surfaces.
type CallType string

const (
	CallStrategic CallType = "strategic"
	CallTactical  CallType = "tactical"
	CallSynthesis CallType = "synthesis"
	CallUtility   CallType = "utility"
)

// PromptContext is everything a call site needs: ready-to-use template
// variables, per-module content blocks, and a per-call snapshot.
type PromptContext struct {
	CallType      CallType
	TemplateVars  map[string]any
	ContentBlocks map[string]string
	Snapshot      *ContextWindowSnapshot
	TokensUsed    int
	Source        string // "builder" or "fallback"
}

// PhaseContext is the caller-supplied control data merged into a
// PromptContext's template variables (goals, errors, phase info). Only the
// control keys listed for the call type are copied into the variables.
type PhaseContext map[string]any

// Builder adapts an AssembledContext into the variable surface each of the
// four call types expects, applying format adapters where a module's
// canonical output doesn't match a template's native shape.
type Builder struct {
	assembled *AssembledContext
	logger    logging.Logger
}

// NewBuilder constructs a Builder over the result of one Orchestrator.Assemble call.
func NewBuilder(assembled *AssembledContext, logger logging.Logger) *Builder {
	return &Builder{assembled: assembled, logger: logging.OrNop(logger)}
}

// Build produces a PromptContext for callType, merging phaseContext control
// data. Unknown call types are an error.
func (b *Builder) Build(callType CallType, phaseContext PhaseContext) (PromptContext, error) {
	switch callType {
	case CallStrategic:
		return b.buildStrategic(phaseContext), nil
	case CallTactical:
		return b.buildTactical(phaseContext), nil
	case CallSynthesis:
		return b.buildSynthesis(phaseContext), nil
	case CallUtility:
		return b.buildUtility(phaseContext), nil
	default:
		return PromptContext{}, fmt.Errorf("context builder: unknown call type %q", callType)
	}
}

func (b *Builder) moduleContent(moduleID string) string {
	if b.assembled == nil {
		return ""
	}
	return b.assembled.GetContent(moduleID)
}

var strategicControlKeys = []string{
	"workflow_goal", "original_user_input", "execution_depth",
	"replan_instructions", "active_prompt_context_section",
	"explicit_parameters_section", "constraints_section", "kg_schema_directive",
}

func (b *Builder) buildStrategic(pc PhaseContext) PromptContext {
	tv := map[string]any{}
	blocks := map[string]string{}

	if tools := b.moduleContent("tool_definitions"); tools != "" {
		tv["available_tools"] = tools
		blocks["tool_definitions"] = tools
	} else {
		tv["available_tools"] = ""
	}

	// workflow_history produces markdown; the strategic template expects a
	// turn-metadata JSON structure — apply the format adapter.
	history := b.formatStrategicHistory(pc)
	tv["turn_action_history"] = history
	blocks["workflow_history"] = history

	if rag := b.moduleContent("rag_context"); rag != "" {
		tv["rag_few_shot_examples"] = rag
		blocks["rag_context"] = rag
	} else {
		tv["rag_few_shot_examples"] = ""
	}

	if knowledge := b.moduleContent("knowledge_context"); knowledge != "" {
		tv["knowledge_context"] = knowledge
		blocks["knowledge_context"] = knowledge
	} else {
		tv["knowledge_context"] = ""
	}

	if componentTools := b.moduleContent("component_instructions"); componentTools != "" {
		tv["component_tools"] = componentTools
		blocks["component_instructions"] = componentTools
	} else {
		tv["component_tools"] = ""
	}

	mergeControlKeys(tv, pc, strategicControlKeys)

	return b.finish(CallStrategic, tv, blocks)
}

var tacticalControlKeys = []string{
	"workflow_goal", "current_phase_goal", "strategic_arguments_section",
	"last_attempt_info", "loop_context_section", "context_enrichment_section",
}

func (b *Builder) buildTactical(pc PhaseContext) PromptContext {
	tv := map[string]any{}
	blocks := map[string]string{}

	tools := b.moduleContent("tool_definitions")
	tv["permitted_tools_with_details"] = tools
	blocks["tool_definitions"] = tools

	if prompts, ok := pc["permitted_prompts_with_details"]; ok {
		tv["permitted_prompts_with_details"] = prompts
	} else {
		tv["permitted_prompts_with_details"] = "None"
	}

	history := b.moduleContent("workflow_history")
	tv["turn_action_history"] = history
	blocks["workflow_history"] = history

	mergeControlKeys(tv, pc, tacticalControlKeys)

	return b.finish(CallTactical, tv, blocks)
}

var synthesisControlKeys = []string{
	"workflow_goal", "collected_results", "final_answer_format", "errors_encountered",
}

func (b *Builder) buildSynthesis(pc PhaseContext) PromptContext {
	tv := map[string]any{}
	blocks := map[string]string{}

	if history := b.moduleContent("workflow_history"); history != "" {
		tv["turn_action_history"] = history
		blocks["workflow_history"] = history
	}
	if conv := b.moduleContent("conversation_history"); conv != "" {
		tv["conversation_history"] = conv
		blocks["conversation_history"] = conv
	}

	mergeControlKeys(tv, pc, synthesisControlKeys)

	return b.finish(CallSynthesis, tv, blocks)
}

var utilityControlKeys = []string{"utility_goal", "utility_input"}

func (b *Builder) buildUtility(pc PhaseContext) PromptContext {
	tv := map[string]any{}
	blocks := map[string]string{}

	if sys := b.moduleContent("system_prompt"); sys != "" {
		tv["system_prompt"] = sys
		blocks["system_prompt"] = sys
	}

	mergeControlKeys(tv, pc, utilityControlKeys)

	return b.finish(CallUtility, tv, blocks)
}

func mergeControlKeys(tv map[string]any, pc PhaseContext, keys []string) {
	for _, k := range keys {
		if v, ok := pc[k]; ok {
			tv[k] = v
		}
	}
}

// workflowTurn is one entry in the strategic JSON history adapter.
type workflowTurn struct {
	TurnNumber int    `json:"turn_number"`
	Summary    string `json:"summary"`
}

// formatStrategicHistory re-reads raw session data (via phaseContext, since
// the workflow_history module's canonical output is markdown) and adapts it
// into the JSON shape the strategic template expects, truncating the
// oldest turns until it fits the module's allocated budget.
func (b *Builder) formatStrategicHistory(pc PhaseContext) string {
	raw, ok := pc["raw_workflow_history"].([]map[string]any)
	if !ok || len(raw) == 0 {
		out, _ := json.Marshal(map[string]any{"workflow_history": []workflowTurn{}})
		return string(out)
	}

	turns := make([]workflowTurn, 0, len(raw))
	for i, entry := range raw {
		summary, _ := entry["summary"].(string)
		turns = append(turns, workflowTurn{TurnNumber: i + 1, Summary: summary})
	}

	budget := b.moduleBudget("workflow_history")
	for len(turns) > 0 {
		out, _ := json.Marshal(map[string]any{"workflow_history": turns})
		if budget <= 0 || tokenutil.CountTokens(string(out)) <= budget {
			return string(out)
		}
		turns = turns[1:] // drop the oldest turn and retry
	}

	out, _ := json.Marshal(map[string]any{"workflow_history": []workflowTurn{}})
	return string(out)
}

func (b *Builder) moduleBudget(moduleID string) int {
	if b.assembled == nil || b.assembled.Snapshot == nil {
		return 0
	}
	for _, c := range b.assembled.Snapshot.Contributions {
		if c.ModuleID == moduleID {
			return c.TokensAllocated
		}
	}
	return 0
}

func (b *Builder) finish(callType CallType, tv map[string]any, blocks map[string]string) PromptContext {
	tokens := 0
	for _, v := range tv {
		if s, ok := v.(string); ok {
			tokens += tokenutil.CountTokens(s)
		}
	}

	source := "fallback"
	if b.assembled != nil {
		source = "builder"
	}

	return PromptContext{
		CallType:      callType,
		TemplateVars:  tv,
		ContentBlocks: blocks,
		Snapshot:      b.callSnapshot(callType, tokens),
		TokensUsed:    tokens,
		Source:        source,
	}
}

// callSnapshot derives a per-call snapshot from the base assembly snapshot,
// rescaling utilization to this call's actual token usage.
func (b *Builder) callSnapshot(callType CallType, tokens int) *ContextWindowSnapshot {
	if b.assembled == nil || b.assembled.Snapshot == nil {
		return nil
	}
	base := *b.assembled.Snapshot
	base.TotalUsed = tokens
	if base.AvailableBudget > 0 {
		base.UtilizationPct = float64(tokens) / float64(base.AvailableBudget) * 100
	}
	return &base
}
