package contextwindow

import "fmt"

// ContributionMetric is one module's per-assembly metrics.
type ContributionMetric struct {
	ModuleID        string
	Label           string
	Category        string
	TokensAllocated int
	TokensUsed      int
	UtilizationPct  float64
	WasCondensed    bool
	IsActive        bool
	Metadata        map[string]any
}

// CondensationEvent records one Pass-4 condensation operation.
type CondensationEvent struct {
	ModuleID     string
	TokensBefore int
	TokensAfter  int
	ReductionPct float64
	Strategy     string
}

// ContextWindowSnapshot is the complete, single-source-of-truth record of
// one assembly operation, used for both wire emission and log summaries.
type ContextWindowSnapshot struct {
	ContextWindowTypeID   string
	ContextWindowTypeName string

	ModelContextLimit int
	OutputReserve     int
	AvailableBudget   int
	TotalUsed         int
	UtilizationPct    float64

	Contributions []ContributionMetric
	Condensations []CondensationEvent

	DynamicAdjustmentsFired []string

	ProfileType        ProfileType
	SkippedModules      []string
	ActiveModuleCount   int

	SessionID  string
	TurnNumber int

	// Cancelled is set when the assembly was cancelled before completion.
	Cancelled bool
	// ExhaustedCondensation is set when Pass 4 ran out of condensable
	// modules while still over budget.
	ExhaustedCondensation bool
}

// SSEEvent is the structured wire-emission payload for a snapshot.
type SSEEvent struct {
	Type              string         `json:"type"`
	ContextWindowType map[string]any `json:"context_window_type"`
	Budget            map[string]any `json:"budget"`
	Contributions     []map[string]any `json:"contributions"`
	Condensations     []map[string]any `json:"condensations"`
	DynamicAdjustments []string      `json:"dynamic_adjustments"`
	Resolution        map[string]any `json:"resolution"`
	SessionID         string         `json:"session_id"`
	TurnNumber        int            `json:"turn_number"`
}

// ToSSEEvent formats the snapshot as the context_window_snapshot wire event.
func (s *ContextWindowSnapshot) ToSSEEvent() SSEEvent {
	contributions := make([]map[string]any, 0, len(s.Contributions))
	for _, c := range s.Contributions {
		contributions = append(contributions, map[string]any{
			"module_id":       c.ModuleID,
			"label":           c.Label,
			"category":        c.Category,
			"allocated":       c.TokensAllocated,
			"used":            c.TokensUsed,
			"utilization_pct": round1(c.UtilizationPct),
			"condensed":       c.WasCondensed,
			"active":          c.IsActive,
			"metadata":        c.Metadata,
		})
	}

	condensations := make([]map[string]any, 0, len(s.Condensations))
	for _, e := range s.Condensations {
		condensations = append(condensations, map[string]any{
			"module_id":     e.ModuleID,
			"before":        e.TokensBefore,
			"after":         e.TokensAfter,
			"reduction_pct": round1(e.ReductionPct),
			"strategy":      e.Strategy,
		})
	}

	return SSEEvent{
		Type: "context_window_snapshot",
		ContextWindowType: map[string]any{
			"id":   s.ContextWindowTypeID,
			"name": s.ContextWindowTypeName,
		},
		Budget: map[string]any{
			"model_limit":     s.ModelContextLimit,
			"output_reserve":  s.OutputReserve,
			"available":       s.AvailableBudget,
			"used":            s.TotalUsed,
			"utilization_pct": round1(s.UtilizationPct),
		},
		Contributions:      contributions,
		Condensations:      condensations,
		DynamicAdjustments: s.DynamicAdjustmentsFired,
		Resolution: map[string]any{
			"profile_type":    string(s.ProfileType),
			"active_modules":  s.ActiveModuleCount,
			"skipped_modules": s.SkippedModules,
			"cancelled":       s.Cancelled,
		},
		SessionID:  s.SessionID,
		TurnNumber: s.TurnNumber,
	}
}

// ToSummaryText formats the snapshot as a compact single-line log summary,
// e.g. "Context: 10.4K/184K (5.7%) | Syst:1.0K Tool:3.2K Conv:4.1K".
func (s *ContextWindowSnapshot) ToSummaryText() string {
	parts := ""
	for _, c := range s.Contributions {
		if !c.IsActive || c.TokensUsed <= 0 {
			continue
		}
		label := c.Label
		if len(label) > 4 {
			label = label[:4]
		}
		if parts != "" {
			parts += " "
		}
		parts += fmt.Sprintf("%s:%.1fK", label, float64(c.TokensUsed)/1000)
	}

	return fmt.Sprintf("Context: %.1fK/%.0fK (%.1f%%) | %s",
		float64(s.TotalUsed)/1000, float64(s.AvailableBudget)/1000, s.UtilizationPct, parts)
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
