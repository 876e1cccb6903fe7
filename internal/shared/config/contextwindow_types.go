package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"weavectx/internal/contextwindow"
)

// contextWindowTypeFile is the on-disk YAML shape one context-window-type
// definition is authored in: a file per type under the types directory.
type contextWindowTypeFile struct {
	ID                 string                        `yaml:"id"`
	Name               string                        `yaml:"name"`
	OutputReservePct   float64                       `yaml:"output_reserve_pct"`
	Modules            map[string]moduleOverrideFile `yaml:"modules"`
	CondensationOrder  []string                      `yaml:"condensation_order"`
	DynamicAdjustments []dynamicAdjustmentFile        `yaml:"dynamic_adjustments"`
}

type moduleOverrideFile struct {
	Active    *bool    `yaml:"active"`
	Priority  *int     `yaml:"priority"`
	TargetPct *float64 `yaml:"target_pct"`
	MinPct    *float64 `yaml:"min_pct"`
	MaxPct    *float64 `yaml:"max_pct"`
}

type dynamicAdjustmentFile struct {
	Condition string             `yaml:"condition"`
	Action    adjustmentActionFile `yaml:"action"`
}

type adjustmentActionFile struct {
	Kind   string  `yaml:"kind"`
	Target string  `yaml:"target"`
	ByPct  float64 `yaml:"by_pct"`
	From   string  `yaml:"from"`
	To     string  `yaml:"to"`
}

// LoadContextWindowTypes reads every *.yaml/*.yml file in dir and decodes
// it into a ContextWindowType, keyed by its id. A directory that does not
// exist yields an empty map rather than an error, so a deployment with no
// custom types needs no placeholder file. A file with a dynamic adjustment
// whose condition name or action kind is not one the orchestrator knows is
// rejected.
func LoadContextWindowTypes(dir string) (map[string]*contextwindow.ContextWindowType, error) {
	out := make(map[string]*contextwindow.ContextWindowType)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("read context window type directory %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		lower := strings.ToLower(e.Name())
		if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read context window type file %q: %w", path, err)
		}

		var file contextWindowTypeFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("decode context window type file %q: %w", path, err)
		}
		if file.ID == "" {
			return nil, fmt.Errorf("context window type file %q: missing required id", path)
		}
		if _, exists := out[file.ID]; exists {
			return nil, fmt.Errorf("context window type file %q: duplicate id %q", path, file.ID)
		}
		for _, a := range file.DynamicAdjustments {
			switch a.Condition {
			case "first_turn", "no_documents_attached", "long_conversation", "high_confidence_rag":
			default:
				return nil, fmt.Errorf("context window type file %q: unknown dynamic adjustment condition %q", path, a.Condition)
			}
			switch contextwindow.AdjustmentActionKind(a.Action.Kind) {
			case contextwindow.ActionReduce, contextwindow.ActionTransfer, contextwindow.ActionForceFull:
			default:
				return nil, fmt.Errorf("context window type file %q: unknown dynamic adjustment action kind %q", path, a.Action.Kind)
			}
		}

		out[file.ID] = toContextWindowType(file)
	}

	return out, nil
}

func toContextWindowType(file contextWindowTypeFile) *contextwindow.ContextWindowType {
	modules := make(map[string]contextwindow.ModuleOverride, len(file.Modules))
	for id, m := range file.Modules {
		modules[id] = contextwindow.ModuleOverride{
			Active:    m.Active,
			Priority:  m.Priority,
			TargetPct: m.TargetPct,
			MinPct:    m.MinPct,
			MaxPct:    m.MaxPct,
		}
	}

	adjustments := make([]contextwindow.DynamicAdjustment, 0, len(file.DynamicAdjustments))
	for _, a := range file.DynamicAdjustments {
		adjustments = append(adjustments, contextwindow.DynamicAdjustment{
			Condition: a.Condition,
			Action: contextwindow.AdjustmentAction{
				Kind:   contextwindow.AdjustmentActionKind(a.Action.Kind),
				Target: a.Action.Target,
				ByPct:  a.Action.ByPct,
				From:   a.Action.From,
				To:     a.Action.To,
			},
		})
	}

	return &contextwindow.ContextWindowType{
		ID:                 file.ID,
		Name:               file.Name,
		OutputReservePct:   file.OutputReservePct,
		Modules:            modules,
		CondensationOrder:  file.CondensationOrder,
		DynamicAdjustments: adjustments,
	}
}
