package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// providerDirPatterns match candidate provider directory names without a
// full regexp compile per candidate (spec.md §4.5; SPEC_FULL §3 domain
// stack). A directory is a candidate if its base name looks like
// "*-tool", "*-tool-*", "*-mcp", "*-mcp-*", "tool-*" or "mcp-*".
var providerDirPatterns = []glob.Glob{
	glob.MustCompile("*-tool"),
	glob.MustCompile("*-tool-*"),
	glob.MustCompile("*-mcp"),
	glob.MustCompile("*-mcp-*"),
	glob.MustCompile("tool-*"),
	glob.MustCompile("mcp-*"),
}

func looksLikeProviderDir(name string) bool {
	for _, p := range providerDirPatterns {
		if p.Match(name) {
			return true
		}
	}
	return false
}

// manifestEntryPoints is the fixed set of entry-point filenames that, alone,
// qualify a directory as a tool provider per spec.md §4.5 condition (iv).
var manifestEntryPoints = []string{"provider.json", "mcp.json", "tool.json"}

// manifestKeywordMarkers is the marker-keyword list for condition (i).
var manifestKeywordMarkers = []string{"tool-provider", "mcp-server", "mcp-tool"}

// manifestFrameworkDeps is the known-dependency list for condition (iii):
// a package.json/Cargo.toml/go.mod dependency on any of these is itself
// sufficient evidence of a tool provider.
var manifestFrameworkDeps = []string{"@modelcontextprotocol/sdk", "mcp-sdk", "fastmcp"}

// packageManifest is the minimal shape read out of package.json-like
// manifests for discovery purposes; only the fields discovery needs.
type packageManifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description"`
	Keywords     []string          `json:"keywords"`
	Dependencies map[string]string `json:"dependencies"`
	Provider     *providerSection  `json:"provider"`
}

// providerSection is condition (ii): a top-level provider-descriptor block
// embedded directly in the manifest.
type providerSection struct {
	Invocation   string             `json:"invocation"`
	Capabilities []capabilityConfig `json:"capabilities"`
	Supports     *supportsConfig    `json:"supports"`
}

type capabilityConfig struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Kind        string         `json:"kind"`
	Input       map[string]any `json:"input"`
	Output      map[string]any `json:"output"`
}

type supportsConfig struct {
	Languages    []string `json:"languages"`
	Frameworks   []string `json:"frameworks"`
	ProjectTypes []string `json:"project_types"`
}

// localConfigFile is the shape parsed by ScanLocalConfig (spec.md §6 "Local
// configuration file format").
type localConfigFile struct {
	Providers map[string]localProviderEntry `json:"providers"`
}

type localProviderEntry struct {
	Name        string             `json:"name"`
	Command     string             `json:"command"`
	Description string             `json:"description"`
	Supports    *supportsConfig    `json:"supports"`
	Capabilities []capabilityConfig `json:"capabilities"`
}

// Discoverer implements C6: it scans package roots and local configuration
// files and returns a deduped []ProviderDescriptor.
type Discoverer struct {
	logger *slog.Logger
}

// NewDiscoverer constructs a Discoverer.
func NewDiscoverer(logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{logger: logger}
}

// Discover scans roots (package-manifest source class) and configPaths
// (local-configuration-file source class) and returns the deduped provider
// list, keyed by id alone: the candidate's path is not part of the key, and
// within one source class a later entry with an id already seen replaces the
// earlier one. Across source classes, a local configuration entry always wins a
// collision on id over an inferred package-manifest entry for that same id
// (spec.md §4 "config-file provider precedence" — manual override wins).
func (d *Discoverer) Discover(roots []string, configPaths []string) []ProviderDescriptor {
	seen := make(map[string]ProviderDescriptor) // id -> descriptor
	order := make([]string, 0)
	fromConfig := make(map[string]bool)

	add := func(desc ProviderDescriptor, isConfig bool) {
		if _, ok := seen[desc.ID]; !ok {
			order = append(order, desc.ID)
		} else if fromConfig[desc.ID] && !isConfig {
			return // config entry already present; inferred manifest never overrides it
		}
		seen[desc.ID] = desc
		if isConfig {
			fromConfig[desc.ID] = true
		}
	}

	for _, root := range roots {
		for _, desc := range d.scanRoot(root) {
			add(desc, false)
		}
	}

	for _, path := range configPaths {
		for _, desc := range d.scanLocalConfig(path) {
			add(desc, true)
		}
	}

	out := make([]ProviderDescriptor, 0, len(order))
	for _, id := range order {
		out = append(out, seen[id])
	}
	return out
}

// scanRoot lists root's immediate subdirectories and validates each
// candidate whose name matches a provider-directory pattern.
func (d *Discoverer) scanRoot(root string) []ProviderDescriptor {
	entries, err := os.ReadDir(root)
	if err != nil {
		d.logger.Warn("discovery: cannot read root", "root", root, "error", err)
		return nil
	}

	var out []ProviderDescriptor
	for _, e := range entries {
		if !e.IsDir() || !looksLikeProviderDir(e.Name()) {
			continue
		}
		dir := filepath.Join(root, e.Name())
		desc, ok := d.readManifestDir(dir)
		if !ok {
			continue
		}
		out = append(out, desc)
	}
	return out
}

// readManifestDir reads a candidate directory's manifest and, if it
// qualifies as a tool provider under any of spec.md §4.5's four conditions,
// builds a ProviderDescriptor.
func (d *Discoverer) readManifestDir(dir string) (ProviderDescriptor, bool) {
	manifestPath := filepath.Join(dir, "package.json")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		for _, ep := range manifestEntryPoints {
			if _, err := os.Stat(filepath.Join(dir, ep)); err == nil {
				return d.descriptorFromEntryPoint(dir, ep)
			}
		}
		return ProviderDescriptor{}, false
	}

	var m packageManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		d.logger.Warn("discovery: unparseable manifest", "path", manifestPath, "error", err)
		return ProviderDescriptor{}, false
	}

	qualifies := hasKeywordMarker(m.Keywords) || m.Provider != nil || hasFrameworkDep(m.Dependencies)
	if !qualifies {
		for _, ep := range manifestEntryPoints {
			if _, err := os.Stat(filepath.Join(dir, ep)); err == nil {
				qualifies = true
				break
			}
		}
	}
	if !qualifies {
		return ProviderDescriptor{}, false
	}

	desc := ProviderDescriptor{
		ID:          "pkg:" + m.Name,
		Name:        m.Name,
		Version:     m.Version,
		Description: m.Description,
		Status:      StatusDiscovered,
		LastSeen:    time.Now(),
	}
	if m.Provider != nil {
		desc.Invocation = m.Provider.Invocation
		desc.Capabilities = capabilitiesFromConfig(m.Provider.Capabilities)
		desc.Supports = supportsFromConfig(m.Provider.Supports)
	} else {
		desc.Invocation = fmt.Sprintf("node %s", filepath.Join(dir, "index.js"))
	}
	return desc, true
}

func (d *Discoverer) descriptorFromEntryPoint(dir, entryPoint string) (ProviderDescriptor, bool) {
	raw, err := os.ReadFile(filepath.Join(dir, entryPoint))
	if err != nil {
		return ProviderDescriptor{}, false
	}
	var section providerSection
	if err := json.Unmarshal(raw, &section); err != nil {
		d.logger.Warn("discovery: unparseable entry point", "path", entryPoint, "dir", dir, "error", err)
		return ProviderDescriptor{}, false
	}
	name := filepath.Base(dir)
	return ProviderDescriptor{
		ID:           "local:" + name,
		Name:         name,
		Invocation:   section.Invocation,
		Capabilities: capabilitiesFromConfig(section.Capabilities),
		Supports:     supportsFromConfig(section.Supports),
		Status:       StatusDiscovered,
		LastSeen:     time.Now(),
	}, true
}

// scanLocalConfig parses one local configuration file (spec.md §6).
func (d *Discoverer) scanLocalConfig(path string) []ProviderDescriptor {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cfg localConfigFile
	if err := json.Unmarshal(raw, &cfg); err != nil {
		d.logger.Warn("discovery: unparseable local config", "path", path, "error", err)
		return nil
	}

	out := make([]ProviderDescriptor, 0, len(cfg.Providers))
	for id, entry := range cfg.Providers {
		out = append(out, ProviderDescriptor{
			ID:           normalizeLocalID(id),
			Name:         entry.Name,
			Description:  entry.Description,
			Invocation:   entry.Command,
			Capabilities: capabilitiesFromConfig(entry.Capabilities),
			Supports:     supportsFromConfig(entry.Supports),
			Status:       StatusDiscovered,
			LastSeen:     time.Now(),
		})
	}
	return out
}

// normalizeLocalID leaves an already-prefixed id (e.g. matching a
// package-manifest-derived "pkg:<name>") untouched so a local configuration
// entry can target and override that exact provider; otherwise it applies
// the "local:" convention for a freestanding config-only entry.
func normalizeLocalID(id string) string {
	if strings.HasPrefix(id, "pkg:") || strings.HasPrefix(id, "local:") {
		return id
	}
	return "local:" + id
}

func hasKeywordMarker(keywords []string) bool {
	for _, k := range keywords {
		for _, marker := range manifestKeywordMarkers {
			if strings.EqualFold(k, marker) {
				return true
			}
		}
	}
	return false
}

func hasFrameworkDep(deps map[string]string) bool {
	for dep := range deps {
		for _, known := range manifestFrameworkDeps {
			if dep == known {
				return true
			}
		}
	}
	return false
}

func capabilitiesFromConfig(cfgs []capabilityConfig) []Capability {
	out := make([]Capability, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, Capability{
			Name:        c.Name,
			Description: c.Description,
			Kind:        CapabilityKind(c.Kind),
			Input:       c.Input,
			Output:      c.Output,
		})
	}
	return out
}

func supportsFromConfig(cfg *supportsConfig) Supports {
	if cfg == nil {
		return Supports{}
	}
	return Supports{
		Languages:    cfg.Languages,
		Frameworks:   cfg.Frameworks,
		ProjectTypes: cfg.ProjectTypes,
	}
}
