package contextwindow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"weavectx/internal/shared/errors"
	"weavectx/internal/shared/logging"
)

// manifest is the on-disk contract every module directory (user or pack
// sourced) must provide alongside its handler.
type manifest struct {
	ModuleID     string   `json:"module_id"`
	DisplayName  string   `json:"display_name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Capabilities struct {
		Condensable bool `json:"condensable"`
		Purgeable   bool `json:"purgeable"`
		HasCache    bool `json:"has_cache"`
	} `json:"capabilities"`
	Applicability struct {
		ProfileTypes []string `json:"profile_types"`
		Required     bool     `json:"required"`
	} `json:"applicability"`
	Defaults struct {
		Priority  int     `json:"priority"`
		TargetPct float64 `json:"target_pct"`
		MinPct    float64 `json:"min_pct"`
		MaxPct    float64 `json:"max_pct"`
	} `json:"defaults"`
}

// Factory builds a handler instance for a module directory loaded from disk.
// A module found on disk is loaded only if a factory is registered under its
// manifest id; otherwise it is skipped with a RegistryError.
type Factory func(moduleDir string, m manifest) (Module, error)

// Registry discovers, loads, and manages context modules. Built-ins are
// registered in code; discovery scans only the user module directory (no
// agent-pack directory is scanned). Lookups take the read lock on the shared
// map; registration, discovery, and install/uninstall take the write lock
// and update that map in place.
type Registry struct {
	mu       sync.RWMutex
	modules  map[string]*ModuleDefinition
	userPath string
	logger   logging.Logger

	factories map[string]Factory
}

// NewRegistry constructs an empty Registry rooted at userPath for installed
// (non-builtin) modules.
func NewRegistry(userPath string, logger logging.Logger) *Registry {
	return &Registry{
		modules:   make(map[string]*ModuleDefinition),
		userPath:  userPath,
		logger:    logging.OrNop(logger),
		factories: make(map[string]Factory),
	}
}

// RegisterBuiltin registers a compiled-in module definition. Built-in
// modules are never subject to discovery from disk.
func (r *Registry) RegisterBuiltin(defn ModuleDefinition) {
	defn.Source = SourceBuiltin
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[defn.ModuleID] = &defn
}

// RegisterFactory associates a module id with a handler factory used when
// loading that module from a user/pack directory's manifest.
func (r *Registry) RegisterFactory(moduleID string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[moduleID] = f
}

// DiscoverModules (re)scans the user module directory, loading any
// manifest+handler pairs found there. Built-ins already registered via
// RegisterBuiltin are left untouched. Idempotent.
func (r *Registry) DiscoverModules() map[string]*ModuleDefinition {
	loaded := r.discoverFromDirectory(r.userPath, SourceUser)

	r.mu.Lock()
	for id, defn := range loaded {
		r.modules[id] = defn
	}
	r.mu.Unlock()

	r.logger.Info("context module registry: loaded %d modules from %s", len(loaded), r.userPath)
	return r.Snapshot()
}

func (r *Registry) discoverFromDirectory(basePath string, source ModuleSource) map[string]*ModuleDefinition {
	out := make(map[string]*ModuleDefinition)
	entries, err := os.ReadDir(basePath)
	if err != nil {
		return out
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		dir := filepath.Join(basePath, name)
		defn, err := r.loadModule(dir, source)
		if err != nil {
			r.logger.Error("failed to load context module from %s: %v", dir, err)
			continue
		}
		if defn != nil {
			out[defn.ModuleID] = defn
		}
	}
	return out
}

func (r *Registry) loadModule(dir string, source ModuleSource) (*ModuleDefinition, error) {
	manifestPath := filepath.Join(dir, "manifest.json")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		r.logger.Warn("skipping %s: no manifest.json", dir)
		return nil, nil
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.NewRegistryError(fmt.Sprintf("malformed manifest at %s", manifestPath), err)
	}
	if m.ModuleID == "" {
		return nil, errors.NewRegistryError(fmt.Sprintf("manifest at %s missing module_id", manifestPath), nil)
	}

	r.mu.RLock()
	factory, ok := r.factories[m.ModuleID]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewRegistryError(fmt.Sprintf("no handler factory registered for module %q", m.ModuleID), nil)
	}

	handler, err := factory(dir, m)
	if err != nil {
		return nil, errors.NewRegistryError(fmt.Sprintf("handler construction failed for %q", m.ModuleID), err)
	}

	profileTypes := make([]ProfileType, 0, len(m.Applicability.ProfileTypes))
	for _, p := range m.Applicability.ProfileTypes {
		profileTypes = append(profileTypes, ProfileType(p))
	}

	return &ModuleDefinition{
		ModuleID:               m.ModuleID,
		DisplayName:            firstNonEmpty(m.DisplayName, m.ModuleID),
		Version:                firstNonEmpty(m.Version, "0.0.0"),
		Description:            m.Description,
		Category:               firstNonEmpty(m.Category, "general"),
		Capabilities:           Capabilities{Condensable: m.Capabilities.Condensable, Purgeable: m.Capabilities.Purgeable, HasCache: m.Capabilities.HasCache},
		ApplicableProfileTypes: profileTypes,
		Required:               m.Applicability.Required,
		Defaults: ModuleDefaults{
			Priority:  orDefault(m.Defaults.Priority, 50),
			TargetPct: orDefaultF(m.Defaults.TargetPct, 5.0),
			MinPct:    m.Defaults.MinPct,
			MaxPct:    orDefaultF(m.Defaults.MaxPct, 15.0),
		},
		Handler:      handler,
		Source:       source,
		SourcePath:   dir,
		ManifestHash: hashManifest(raw),
	}, nil
}

func hashManifest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func firstNonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func orDefault(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func orDefaultF(v, fallback float64) float64 {
	if v != 0 {
		return v
	}
	return fallback
}

// GetModule looks up a definition by id.
func (r *Registry) GetModule(id string) (*ModuleDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.modules[id]
	return d, ok
}

// GetHandler looks up a module's handler instance by id.
func (r *Registry) GetHandler(id string) Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.modules[id]
	if !ok {
		return nil
	}
	return d.Handler
}

// Snapshot returns a copy of the id->definition map for safe external use.
func (r *Registry) Snapshot() map[string]*ModuleDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*ModuleDefinition, len(r.modules))
	for k, v := range r.modules {
		out[k] = v
	}
	return out
}

// InstalledModuleInfo is the UI/API-facing projection of a ModuleDefinition
// (no handler instance).
type InstalledModuleInfo struct {
	ModuleID     string
	DisplayName  string
	Version      string
	Description  string
	Category     string
	Source       ModuleSource
	Capabilities Capabilities
	ProfileTypes []ProfileType
	Required     bool
	Defaults     ModuleDefaults
}

// GetInstalledModules returns metadata snapshots for every loaded module.
func (r *Registry) GetInstalledModules() []InstalledModuleInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]InstalledModuleInfo, 0, len(r.modules))
	for _, d := range r.modules {
		out = append(out, InstalledModuleInfo{
			ModuleID:     d.ModuleID,
			DisplayName:  d.DisplayName,
			Version:      d.Version,
			Description:  d.Description,
			Category:     d.Category,
			Source:       d.Source,
			Capabilities: d.Capabilities,
			ProfileTypes: d.ApplicableProfileTypes,
			Required:     d.Required,
			Defaults:     d.Defaults,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleID < out[j].ModuleID })
	return out
}

// InstallModule copies a module directory into the user module location,
// loads it, and registers it. Fails if the module id is already installed.
func (r *Registry) InstallModule(sourceDir string) (*ModuleDefinition, error) {
	manifestPath := filepath.Join(sourceDir, "manifest.json")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, errors.NewRegistryError("no manifest.json at "+sourceDir, err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.NewRegistryError("malformed manifest at "+manifestPath, err)
	}
	if m.ModuleID == "" {
		return nil, errors.NewRegistryError("manifest missing module_id", nil)
	}

	if _, exists := r.GetModule(m.ModuleID); exists {
		return nil, errors.NewRegistryError(fmt.Sprintf("module %q already installed", m.ModuleID), nil)
	}

	if err := os.MkdirAll(r.userPath, 0o755); err != nil {
		return nil, err
	}
	targetDir := filepath.Join(r.userPath, m.ModuleID)
	if err := copyDir(sourceDir, targetDir); err != nil {
		return nil, fmt.Errorf("copy module directory: %w", err)
	}

	defn, err := r.loadModule(targetDir, SourceUser)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.modules[defn.ModuleID] = defn
	r.mu.Unlock()

	r.logger.Info("installed context module %q from %s", m.ModuleID, sourceDir)
	return defn, nil
}

// UninstallModule removes a non-built-in, non-required module from disk and
// the registry.
func (r *Registry) UninstallModule(id string) error {
	defn, ok := r.GetModule(id)
	if !ok {
		return errors.NewRegistryError(fmt.Sprintf("module %q not found", id), nil)
	}
	if defn.Source == SourceBuiltin {
		return errors.NewRegistryError(fmt.Sprintf("module %q is built-in and cannot be uninstalled", id), nil)
	}
	if defn.Required {
		return errors.NewRegistryError(fmt.Sprintf("module %q is required and cannot be uninstalled", id), nil)
	}

	if defn.SourcePath != "" {
		if err := os.RemoveAll(defn.SourcePath); err != nil {
			return err
		}
	}

	r.mu.Lock()
	delete(r.modules, id)
	r.mu.Unlock()

	r.logger.Info("uninstalled context module %q", id)
	return nil
}

// PurgeModule delegates to the handler's Purge, failing if the module does
// not declare itself purgeable.
func (r *Registry) PurgeModule(ctx context.Context, id, sessionID, userUUID string) (PurgeResult, error) {
	defn, ok := r.GetModule(id)
	if !ok {
		return PurgeResult{}, errors.NewRegistryError(fmt.Sprintf("module %q not found", id), nil)
	}
	if !defn.Capabilities.Purgeable {
		return PurgeResult{}, errors.NewModuleError(fmt.Sprintf("module %q is not purgeable", id), nil)
	}
	purger, ok := defn.Handler.(Purger)
	if !ok {
		return PurgeResult{Purged: false, Details: "module does not implement purge"}, nil
	}
	return purger.Purge(ctx, sessionID, userUUID)
}

// Reload re-runs discovery of user modules; built-ins are untouched
// since they are process-compiled, not file-loaded.
func (r *Registry) Reload() map[string]*ModuleDefinition {
	r.logger.Info("hot-reloading context module registry")
	return r.DiscoverModules()
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}
