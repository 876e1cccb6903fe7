package contextwindow

import (
	"context"
	"sort"
	"time"

	"weavectx/internal/shared/logging"
)

// contributeTimeout is the soft per-module timeout for contribute/condense.
const contributeTimeout = 30 * time.Second

// Orchestrator runs the four-pass assembly algorithm against a Registry.
type Orchestrator struct {
	registry *Registry
	logger   logging.Logger
}

// NewOrchestrator constructs an Orchestrator bound to registry.
func NewOrchestrator(registry *Registry, logger logging.Logger) *Orchestrator {
	return &Orchestrator{registry: registry, logger: logging.OrNop(logger)}
}

// Assemble runs Pass 1 through Pass 4 and returns the AssembledContext.
func (o *Orchestrator) Assemble(ctx context.Context, cwt ContextWindowType, actx *AssemblyContext) *AssembledContext {
	outputReserve := int(float64(actx.ModelContextLimit) * cwt.OutputReservePct / 100)
	availableBudget := actx.ModelContextLimit - outputReserve
	actx.OutputTokenReserve = outputReserve

	o.logger.Info("context window assembly: type=%s budget=%d (limit=%d, reserve=%d)",
		cwt.Name, availableBudget, actx.ModelContextLimit, outputReserve)

	active, skipped := o.resolveActiveModules(cwt, actx)

	if len(active) == 0 {
		snapshot := o.buildSnapshot(cwt, actx, availableBudget, outputReserve, nil, nil, nil, skipped, false, false)
		o.logger.Warn("no active modules resolved — returning empty context")
		return &AssembledContext{Snapshot: snapshot}
	}

	redistributeBudget(active)

	contributions, order := o.allocateAndContribute(ctx, active, availableBudget, actx)
	if ctx.Err() != nil {
		snapshot := o.buildSnapshot(cwt, actx, availableBudget, outputReserve, nil, nil, nil, skipped, false, true)
		return &AssembledContext{Contributions: contributions, ModuleOrder: order, Snapshot: snapshot}
	}

	adjustmentsFired := o.applyDynamicAdjustments(cwt, active, contributions, actx)

	totalUsed := sumTokens(contributions)
	var condensations []CondensationEvent
	exhausted := false
	if totalUsed > availableBudget {
		contributions, condensations, totalUsed = o.condense(ctx, active, contributions, cwt.CondensationOrder, totalUsed, availableBudget, actx)
		exhausted = totalUsed > availableBudget
	}

	metrics := buildContributionMetrics(active, contributions, condensations)
	snapshot := o.buildSnapshot(cwt, actx, availableBudget, outputReserve, metrics, condensations, adjustmentsFired, skipped, exhausted, false)

	o.logger.Info("%s", snapshot.ToSummaryText())

	return &AssembledContext{
		Contributions: contributions,
		ModuleOrder:   order,
		Snapshot:      snapshot,
		TotalTokens:   totalUsed,
	}
}

// resolveActiveModules implements Pass 1.
func (o *Orchestrator) resolveActiveModules(cwt ContextWindowType, actx *AssemblyContext) ([]*ActiveModule, []string) {
	var active []*ActiveModule
	var skipped []string

	for moduleID, override := range cwt.Modules {
		if override.Active != nil && !*override.Active {
			skipped = append(skipped, moduleID)
			continue
		}

		defn, ok := o.registry.GetModule(moduleID)
		if !ok || defn.Handler == nil {
			skipped = append(skipped, moduleID)
			continue
		}

		if !defn.Handler.AppliesTo(actx.ProfileType) {
			skipped = append(skipped, moduleID)
			continue
		}

		am := &ActiveModule{
			ModuleID:    moduleID,
			Handler:     defn.Handler,
			Label:       defn.DisplayName,
			Category:    defn.Category,
			Priority:    defn.Defaults.Priority,
			TargetPct:   defn.Defaults.TargetPct,
			MinPct:      defn.Defaults.MinPct,
			MaxPct:      defn.Defaults.MaxPct,
			Condensable: defn.Capabilities.Condensable,
		}
		if override.Priority != nil {
			am.Priority = *override.Priority
		}
		if override.TargetPct != nil {
			am.TargetPct = *override.TargetPct
		}
		if override.MinPct != nil {
			am.MinPct = *override.MinPct
		}
		if override.MaxPct != nil {
			am.MaxPct = *override.MaxPct
		}

		// Duplicate module ids in the type config: last wins, so a later
		// iteration below would overwrite — map iteration order is random in
		// Go, but cwt.Modules is itself a map keyed by module id, so there
		// are no duplicates by construction here.
		active = append(active, am)
	}

	sort.Slice(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority > active[j].Priority
		}
		return active[i].ModuleID < active[j].ModuleID
	})
	sort.Strings(skipped)

	return active, skipped
}

// redistributeBudget renormalizes target_pct across active modules so the
// surviving set consumes the full available budget.
func redistributeBudget(active []*ActiveModule) {
	var total float64
	for _, m := range active {
		total += m.TargetPct
	}
	if total <= 0 {
		return
	}
	for _, m := range active {
		m.TargetPct = m.TargetPct / total * 100
	}
}

// allocateAndContribute implements Pass 2.
func (o *Orchestrator) allocateAndContribute(ctx context.Context, active []*ActiveModule, availableBudget int, actx *AssemblyContext) (map[string]Contribution, []string) {
	contributions := make(map[string]Contribution, len(active))
	order := make([]string, 0, len(active))

	for _, am := range active {
		if ctx.Err() != nil {
			break
		}

		allocation := int(float64(availableBudget) * am.TargetPct / 100)
		minTokens := int(float64(availableBudget) * am.MinPct / 100)
		maxTokens := int(float64(availableBudget) * am.MaxPct / 100)
		allocation = clamp(allocation, minTokens, maxTokens)
		am.AllocatedTokens = allocation

		actx.PreviousContributions = copyContributions(contributions)

		callCtx, cancel := context.WithTimeout(ctx, contributeTimeout)
		contribution, err := am.Handler.Contribute(callCtx, allocation, actx)
		cancel()

		if err != nil {
			o.logger.Error("module %q failed to contribute: %v", am.ModuleID, err)
			contribution = Contribution{Metadata: map[string]any{"error": err.Error()}}
		}
		if contribution.TokensUsed < 0 {
			contribution.TokensUsed = 0
		}

		contributions[am.ModuleID] = contribution
		order = append(order, am.ModuleID)
		cc := contribution
		am.Contribution = &cc
	}

	return contributions, order
}

func copyContributions(m map[string]Contribution) map[string]Contribution {
	out := make(map[string]Contribution, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		v = lo
	}
	if hi >= lo && v > hi {
		v = hi
	}
	return v
}

func sumTokens(contributions map[string]Contribution) int {
	total := 0
	for _, c := range contributions {
		total += c.TokensUsed
	}
	return total
}

// applyDynamicAdjustments implements Pass 3.
func (o *Orchestrator) applyDynamicAdjustments(cwt ContextWindowType, active []*ActiveModule, contributions map[string]Contribution, actx *AssemblyContext) []string {
	var fired []string
	byID := make(map[string]*ActiveModule, len(active))
	for _, m := range active {
		byID[m.ModuleID] = m
	}

	for _, rule := range cwt.DynamicAdjustments {
		if !evaluateCondition(rule.Condition, actx, contributions) {
			continue
		}
		applyAction(rule.Action, byID)
		fired = append(fired, rule.Condition)
		o.logger.Debug("dynamic adjustment fired: %s", rule.Condition)
	}
	return fired
}

func evaluateCondition(condition string, actx *AssemblyContext, contributions map[string]Contribution) bool {
	switch condition {
	case "first_turn":
		return actx.IsFirstTurn
	case "no_documents_attached":
		attachments, _ := actx.SessionData["attachments"].([]any)
		return len(attachments) == 0
	case "long_conversation":
		return actx.TurnNumber > 10
	case "high_confidence_rag":
		contrib, ok := contributions["rag_context"]
		if !ok {
			return false
		}
		confidence, ok := contrib.Metadata["confidence"].(float64)
		return ok && confidence > 0.85
	default:
		return false
	}
}

func applyAction(action AdjustmentAction, byID map[string]*ActiveModule) {
	switch action.Kind {
	case ActionReduce:
		if m, ok := byID[action.Target]; ok {
			m.TargetPct *= 1 - action.ByPct/100
		}
	case ActionTransfer:
		from, fromOK := byID[action.From]
		to, toOK := byID[action.To]
		if fromOK && toOK {
			to.TargetPct += from.TargetPct
			from.TargetPct = 0
		}
	case ActionForceFull:
		if m, ok := byID[action.Target]; ok {
			m.TargetPct = m.MaxPct
		}
	}
}

// condense implements Pass 4.
func (o *Orchestrator) condense(ctx context.Context, active []*ActiveModule, contributions map[string]Contribution, condensationOrder []string, totalUsed, availableBudget int, actx *AssemblyContext) (map[string]Contribution, []CondensationEvent, int) {
	var events []CondensationEvent
	byID := make(map[string]*ActiveModule, len(active))
	for _, m := range active {
		byID[m.ModuleID] = m
	}

	for _, moduleID := range condensationOrder {
		if totalUsed <= availableBudget {
			break
		}

		am, ok := byID[moduleID]
		if !ok || !am.Condensable {
			continue
		}
		contrib, ok := contributions[moduleID]
		if !ok || contrib.TokensUsed == 0 {
			continue
		}

		condenser, ok := am.Handler.(Condenser)
		if !ok {
			continue
		}

		overage := totalUsed - availableBudget
		target := contrib.TokensUsed - overage
		if target < 0 {
			target = 0
		}

		callCtx, cancel := context.WithTimeout(ctx, contributeTimeout)
		condensed, err := condenser.Condense(callCtx, contrib.Content, target, actx)
		cancel()
		if err != nil {
			o.logger.Error("condensation failed for %q: %v", moduleID, err)
			continue
		}

		if condensed.TokensUsed < contrib.TokensUsed {
			tokensBefore := contrib.TokensUsed
			tokensAfter := condensed.TokensUsed
			contributions[moduleID] = condensed
			totalUsed -= tokensBefore - tokensAfter

			reductionPct := 0.0
			if tokensBefore > 0 {
				reductionPct = float64(tokensBefore-tokensAfter) / float64(tokensBefore) * 100
			}
			strategy, _ := condensed.Metadata["strategy"].(string)
			if strategy == "" {
				strategy = "unknown"
			}
			events = append(events, CondensationEvent{
				ModuleID:     moduleID,
				TokensBefore: tokensBefore,
				TokensAfter:  tokensAfter,
				ReductionPct: reductionPct,
				Strategy:     strategy,
			})
		}
	}

	return contributions, events, totalUsed
}

func buildContributionMetrics(active []*ActiveModule, contributions map[string]Contribution, condensations []CondensationEvent) []ContributionMetric {
	condensed := make(map[string]bool, len(condensations))
	for _, e := range condensations {
		condensed[e.ModuleID] = true
	}

	metrics := make([]ContributionMetric, 0, len(active))
	for _, am := range active {
		contrib, ok := contributions[am.ModuleID]
		if !ok {
			continue
		}
		utilization := 0.0
		if am.AllocatedTokens > 0 {
			utilization = float64(contrib.TokensUsed) / float64(am.AllocatedTokens) * 100
		}
		metrics = append(metrics, ContributionMetric{
			ModuleID:        am.ModuleID,
			Label:           am.Label,
			Category:        am.Category,
			TokensAllocated: am.AllocatedTokens,
			TokensUsed:      contrib.TokensUsed,
			UtilizationPct:  utilization,
			WasCondensed:    condensed[am.ModuleID],
			IsActive:        true,
			Metadata:        contrib.Metadata,
		})
	}
	return metrics
}

func (o *Orchestrator) buildSnapshot(cwt ContextWindowType, actx *AssemblyContext, availableBudget, outputReserve int, metrics []ContributionMetric, condensations []CondensationEvent, adjustmentsFired, skipped []string, exhausted, cancelled bool) *ContextWindowSnapshot {
	totalUsed := 0
	for _, c := range metrics {
		totalUsed += c.TokensUsed
	}
	utilization := 0.0
	if availableBudget > 0 {
		utilization = float64(totalUsed) / float64(availableBudget) * 100
	}

	return &ContextWindowSnapshot{
		ContextWindowTypeID:     cwt.ID,
		ContextWindowTypeName:   cwt.Name,
		ModelContextLimit:       actx.ModelContextLimit,
		OutputReserve:           outputReserve,
		AvailableBudget:         availableBudget,
		TotalUsed:               totalUsed,
		UtilizationPct:          utilization,
		Contributions:           metrics,
		Condensations:           condensations,
		DynamicAdjustmentsFired: adjustmentsFired,
		ProfileType:             actx.ProfileType,
		SkippedModules:          skipped,
		ActiveModuleCount:       len(metrics),
		SessionID:               actx.SessionID,
		TurnNumber:              actx.TurnNumber,
		Cancelled:               cancelled,
		ExhaustedCondensation:   exhausted,
	}
}
