package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleContextWindowTypeYAML = `
id: genie_default
name: Genie Default
output_reserve_pct: 0.1
modules:
  rag_context:
    active: true
    priority: 65
    target_pct: 0.2
condensation_order:
  - document_context
  - rag_context
dynamic_adjustments:
  - condition: high_confidence_rag
    action:
      kind: transfer
      from: tool_definitions
      to: rag_context
      by_pct: 0.1
`

func TestLoadContextWindowTypes_MissingDirYieldsEmptyMap(t *testing.T) {
	types, err := LoadContextWindowTypes(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("expected no error for a missing directory, got %v", err)
	}
	if len(types) != 0 {
		t.Fatalf("expected an empty map, got %d entries", len(types))
	}
}

func TestLoadContextWindowTypes_DecodesFields(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "genie.yaml"), []byte(sampleContextWindowTypeYAML), 0o644); err != nil {
		t.Fatalf("write sample type file: %v", err)
	}

	types, err := LoadContextWindowTypes(dir)
	if err != nil {
		t.Fatalf("load context window types: %v", err)
	}

	ct, ok := types["genie_default"]
	if !ok {
		t.Fatalf("expected a loaded type keyed by id %q", "genie_default")
	}
	if ct.Name != "Genie Default" {
		t.Fatalf("expected name to decode, got %q", ct.Name)
	}
	if ct.OutputReservePct != 0.1 {
		t.Fatalf("expected output reserve pct 0.1, got %v", ct.OutputReservePct)
	}

	override, ok := ct.Modules["rag_context"]
	if !ok {
		t.Fatalf("expected a module override for rag_context")
	}
	if override.Priority == nil || *override.Priority != 65 {
		t.Fatalf("expected priority override 65, got %v", override.Priority)
	}

	if len(ct.CondensationOrder) != 2 || ct.CondensationOrder[0] != "document_context" {
		t.Fatalf("expected condensation order to decode in file order, got %v", ct.CondensationOrder)
	}

	if len(ct.DynamicAdjustments) != 1 {
		t.Fatalf("expected one dynamic adjustment, got %d", len(ct.DynamicAdjustments))
	}
	adj := ct.DynamicAdjustments[0]
	if adj.Condition != "high_confidence_rag" {
		t.Fatalf("expected condition high_confidence_rag, got %q", adj.Condition)
	}
	if adj.Action.Kind != "transfer" || adj.Action.From != "tool_definitions" || adj.Action.To != "rag_context" {
		t.Fatalf("expected transfer action from tool_definitions to rag_context, got %+v", adj.Action)
	}
}

func TestLoadContextWindowTypes_RejectsDuplicateID(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(sampleContextWindowTypeYAML), 0o644); err != nil {
		t.Fatalf("write first file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(sampleContextWindowTypeYAML), 0o644); err != nil {
		t.Fatalf("write second file: %v", err)
	}

	if _, err := LoadContextWindowTypes(dir); err == nil {
		t.Fatalf("expected a duplicate id across files to be rejected")
	}
}

func TestLoadContextWindowTypes_RejectsMissingID(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: no id here\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := LoadContextWindowTypes(dir); err == nil {
		t.Fatalf("expected a file with no id to be rejected")
	}
}
