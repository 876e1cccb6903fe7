package contextwindow

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct{ id string }

func (h *stubHandler) ModuleID() string                         { return h.id }
func (h *stubHandler) AppliesTo(ProfileType) bool                { return true }
func (h *stubHandler) Contribute(context.Context, int, *AssemblyContext) (Contribution, error) {
	return Contribution{}, nil
}

func writeManifest(t *testing.T, dir, id string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	m := map[string]any{
		"module_id":    id,
		"display_name": id,
		"version":      "1.0.0",
		"capabilities": map[string]any{},
		"applicability": map[string]any{
			"profile_types": []string{"llm_only"},
		},
		"defaults": map[string]any{"priority": 50, "target_pct": 10.0},
	}
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), raw, 0o644))
}

func TestRegistry_DiscoverModulesLoadsFromUserDir(t *testing.T) {
	userDir := t.TempDir()
	writeManifest(t, filepath.Join(userDir, "custom"), "custom_module")

	r := NewRegistry(userDir, nil)
	r.RegisterFactory("custom_module", func(dir string, m manifest) (Module, error) {
		return &stubHandler{id: m.ModuleID}, nil
	})

	defs := r.DiscoverModules()
	require.Contains(t, defs, "custom_module")
	assert.Equal(t, SourceUser, defs["custom_module"].Source)
}

func TestRegistry_ReloadIsIdempotentByManifestHash(t *testing.T) {
	userDir := t.TempDir()
	writeManifest(t, filepath.Join(userDir, "custom"), "custom_module")

	r := NewRegistry(userDir, nil)
	r.RegisterFactory("custom_module", func(dir string, m manifest) (Module, error) {
		return &stubHandler{id: m.ModuleID}, nil
	})

	first := r.Reload()
	second := r.Reload()
	assert.Equal(t, first["custom_module"].ManifestHash, second["custom_module"].ManifestHash)
}

func TestRegistry_RequiredModuleCannotBeUninstalled(t *testing.T) {
	r := NewRegistry(t.TempDir(), nil)
	r.RegisterBuiltin(ModuleDefinition{ModuleID: "system_prompt", Required: true, Handler: &stubHandler{id: "system_prompt"}})

	err := r.UninstallModule("system_prompt")
	assert.Error(t, err)
}

func TestRegistry_BuiltinCannotBeUninstalled(t *testing.T) {
	r := NewRegistry(t.TempDir(), nil)
	r.RegisterBuiltin(ModuleDefinition{ModuleID: "tool_definitions", Handler: &stubHandler{id: "tool_definitions"}})

	err := r.UninstallModule("tool_definitions")
	assert.Error(t, err)
}

func TestRegistry_InstallModuleRejectsDuplicateID(t *testing.T) {
	srcDir := t.TempDir()
	writeManifest(t, srcDir, "dup_module")

	r := NewRegistry(t.TempDir(), nil)
	r.RegisterFactory("dup_module", func(dir string, m manifest) (Module, error) {
		return &stubHandler{id: m.ModuleID}, nil
	})

	_, err := r.InstallModule(srcDir)
	require.NoError(t, err)

	_, err = r.InstallModule(srcDir)
	assert.Error(t, err)
}

func TestRegistry_PurgeModuleFailsWhenNotPurgeable(t *testing.T) {
	r := NewRegistry(t.TempDir(), nil)
	r.RegisterBuiltin(ModuleDefinition{ModuleID: "a", Handler: &stubHandler{id: "a"}, Capabilities: Capabilities{Purgeable: false}})

	_, err := r.PurgeModule(context.Background(), "a", "sess", "user")
	assert.Error(t, err)
}
