// Package contextwindow implements the four-pass token-budget assembler
// that composes a language-model prompt from pluggable context modules.
package contextwindow

import "context"

// ProfileType is the class of agent profile an assembly runs for.
type ProfileType string

const (
	ProfileToolEnabled ProfileType = "tool_enabled"
	ProfileLLMOnly     ProfileType = "llm_only"
	ProfileRAGFocused  ProfileType = "rag_focused"
	ProfileGenie       ProfileType = "genie"
)

// AssemblyContext is the shared, read-only state passed to every context
// module during one assembly. Modules may read but must never mutate it.
type AssemblyContext struct {
	ProfileType ProfileType
	ProfileID   string
	SessionID   string
	UserUUID    string

	SessionData map[string]any
	TurnNumber  int
	IsFirstTurn bool

	ModelContextLimit  int
	OutputTokenReserve int

	// Dependencies is an opaque capability map: tools, prompts, config
	// snapshots, and other runtime handles a module may need.
	Dependencies map[string]any

	// PreviousContributions holds contributions already produced by
	// higher-priority modules earlier in the same Pass 2 walk.
	PreviousContributions map[string]Contribution

	ProfileConfig map[string]any
}

// AvailableBudget is the tokens left for context after the output reserve.
func (c *AssemblyContext) AvailableBudget() int {
	return c.ModelContextLimit - c.OutputTokenReserve
}

// Contribution is the atomic unit of context a module produces.
type Contribution struct {
	Content     string
	TokensUsed  int
	Metadata    map[string]any
	Condensable bool
}

// Module is the capability set every context module implements.
type Module interface {
	ModuleID() string
	AppliesTo(profileType ProfileType) bool
	Contribute(ctx context.Context, budget int, actx *AssemblyContext) (Contribution, error)
}

// Condenser is implemented by modules that can reduce already-produced
// content to fit a smaller budget. Modules that don't implement it are
// treated as non-condensable by the orchestrator.
type Condenser interface {
	Condense(ctx context.Context, content string, targetTokens int, actx *AssemblyContext) (Contribution, error)
}

// Purger is implemented by modules holding state a user can clear.
type Purger interface {
	Purge(ctx context.Context, sessionID, userUUID string) (PurgeResult, error)
}

// StatusReporter is implemented by modules with admin-visible health info.
type StatusReporter interface {
	GetStatus() map[string]any
}

// PurgeResult is the outcome of a module purge call.
type PurgeResult struct {
	Purged  bool
	Details string
}

// Capabilities declares what a module supports, independent of whether it
// implements the optional interfaces (used for manifest-level reporting).
type Capabilities struct {
	Condensable bool
	Purgeable   bool
	HasCache    bool
}

// ModuleDefaults are the priority/budget defaults a module declares when no
// ContextWindowType override is present.
type ModuleDefaults struct {
	Priority  int
	TargetPct float64
	MinPct    float64
	MaxPct    float64
}

// ModuleSource identifies where a module definition was loaded from.
type ModuleSource string

const (
	SourceBuiltin ModuleSource = "builtin"
	SourceUser    ModuleSource = "user"
	SourcePack    ModuleSource = "pack"
)

// ModuleDefinition is one registry entry: manifest metadata plus the loaded
// handler instance.
type ModuleDefinition struct {
	ModuleID    string
	DisplayName string
	Version     string
	Description string
	Category    string

	Capabilities Capabilities

	ApplicableProfileTypes []ProfileType
	Required               bool

	Defaults ModuleDefaults

	Handler Module

	Source     ModuleSource
	SourcePath string

	// ManifestHash is a content hash of the manifest, used so reload() can
	// detect whether anything actually changed.
	ManifestHash string
}

// ModuleOverride is a per-ContextWindowType override of one module's
// participation and budget shape.
type ModuleOverride struct {
	Active    *bool
	Priority  *int
	TargetPct *float64
	MinPct    *float64
	MaxPct    *float64
}

// DynamicAdjustment is one data-driven Pass-3 rule.
type DynamicAdjustment struct {
	Condition string
	Action    AdjustmentAction
}

// AdjustmentActionKind is the closed set of Pass-3 action kinds.
type AdjustmentActionKind string

const (
	ActionReduce     AdjustmentActionKind = "reduce"
	ActionTransfer   AdjustmentActionKind = "transfer"
	ActionForceFull  AdjustmentActionKind = "force_full"
)

// AdjustmentAction is a data-driven Pass-3 action. Exactly one of the
// target/from fields is meaningful depending on Kind.
type AdjustmentAction struct {
	Kind AdjustmentActionKind

	// reduce / force_full
	Target string
	ByPct  float64

	// transfer
	From string
	To   string
}

// ContextWindowType is the external configuration record driving one
// assembly: which modules participate, their budget shape, the
// condensation order, and the dynamic adjustment rules.
type ContextWindowType struct {
	ID               string
	Name             string
	OutputReservePct float64
	Modules          map[string]ModuleOverride
	// CondensationOrder lists module ids lowest-priority first.
	CondensationOrder []string
	DynamicAdjustments []DynamicAdjustment
}

// ActiveModule is a module resolved for one assembly, carrying its
// effective budget-shape configuration and (once Pass 2 runs) its
// allocation and resulting contribution.
type ActiveModule struct {
	ModuleID    string
	Handler     Module
	Label       string
	Category    string
	Priority    int
	TargetPct   float64
	MinPct      float64
	MaxPct      float64
	Condensable bool

	AllocatedTokens int
	Contribution    *Contribution
}

// AssembledContext is the orchestrator's output.
type AssembledContext struct {
	// Contributions is keyed by module id and has no order of its own;
	// ModuleOrder lists the ids by descending effective priority (ties by
	// module id ascending).
	Contributions map[string]Contribution
	ModuleOrder   []string
	Snapshot      *ContextWindowSnapshot
	TotalTokens   int
}

// GetContent returns one module's contribution content, or "" if absent.
func (a *AssembledContext) GetContent(moduleID string) string {
	if c, ok := a.Contributions[moduleID]; ok {
		return c.Content
	}
	return ""
}
