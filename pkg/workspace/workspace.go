// Package workspace discovers monorepo packages and owns their lifetime.
//
// A Workspace is loaded from a repository root: the discoverer resolves
// workspace patterns to package directories, every manifest is parsed, and
// the resulting packages live in a single owning slice. All other components
// (graph, planner) refer to packages by name or index, never by interior
// pointer.
package workspace

import (
	"path/filepath"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"

	"github.com/sublimetools/sublime/pkg/errors"
	"github.com/sublimetools/sublime/pkg/manifest"
	"github.com/sublimetools/sublime/pkg/pm"
)

// Dep is one declared dependency of a package.
type Dep struct {
	Name        string
	Section     manifest.Section
	Requirement Requirement
}

// Package is one workspace package. Identified by its declared name; the
// struct carries no back-references (dependent lists are computed by the
// graph, not stored here).
type Package struct {
	Name         string
	Dir          string // Absolute directory
	ManifestPath string // Root-relative path to package.json
	Version      *semver.Version
	Private      bool
	Scripts      map[string]string
	Deps         []Dep
}

// Workspace is the repository root plus the packages found under its
// workspace patterns. Packages are stored in one owning slice; lookup
// structures hold indices into it.
type Workspace struct {
	Root     string
	Manager  pm.Manager
	Packages []*Package

	store  *manifest.Store
	byName map[string]int

	mu        sync.RWMutex // Guards plan-apply and graph rebuilds (single writer)
	pathLocks sync.Map     // manifest path -> *sync.Mutex
}

// New builds a workspace from already-constructed packages. Duplicate
// names keep the first occurrence, matching Load.
func New(root string, manager pm.Manager, packages []*Package) *Workspace {
	ws := &Workspace{
		Root:    root,
		Manager: manager,
		store:   manifest.NewStore(),
		byName:  make(map[string]int),
	}
	for _, p := range packages {
		if _, dup := ws.byName[p.Name]; dup {
			continue
		}
		ws.byName[p.Name] = len(ws.Packages)
		ws.Packages = append(ws.Packages, p)
	}
	return ws
}

// LoadOptions configures workspace loading.
type LoadOptions struct {
	Discover DiscoverOptions
	// Logger receives partial-workspace warnings. Nil uses log.Default().
	Logger *log.Logger
}

// Load discovers and parses the workspace at root.
//
// Manifests that fail to parse produce warnings and are skipped (partial
// workspace), matching the recovery rule for MANIFEST_PARSE/MANIFEST_SHAPE.
// A missing root manifest fails with NOT_A_PROJECT.
func Load(root string, opts LoadOptions) (*Workspace, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	root = abs

	store := manifest.NewStore()
	discoverer := NewDiscoverer(store, opts.Discover)

	dirs, err := discoverer.Discover(root)
	if err != nil {
		return nil, err
	}

	ws := &Workspace{
		Root:   root,
		store:  store,
		byName: make(map[string]int),
	}

	var rootManifest *manifest.Manifest
	if m, err := store.Load(filepath.Join(root, "package.json")); err == nil {
		rootManifest = m
	}
	ws.Manager = pm.Detect(root, rootManifest)

	for _, dir := range dirs {
		path := filepath.Join(dir, "package.json")
		m, err := store.Load(path)
		if err != nil {
			logger.Warn("skipping package with invalid manifest", "path", path, "err", errors.UserMessage(err))
			continue
		}
		p, err := packageFromManifest(root, m)
		if err != nil {
			logger.Warn("skipping package", "path", path, "err", errors.UserMessage(err))
			continue
		}
		if prev, dup := ws.byName[p.Name]; dup {
			logger.Warn("duplicate package name; keeping first",
				"name", p.Name, "kept", ws.Packages[prev].Dir, "skipped", p.Dir)
			continue
		}
		ws.byName[p.Name] = len(ws.Packages)
		ws.Packages = append(ws.Packages, p)
	}

	return ws, nil
}

func packageFromManifest(root string, m *manifest.Manifest) (*Package, error) {
	var version *semver.Version
	if m.Version != "" {
		v, err := m.SemVersion()
		if err != nil {
			return nil, err
		}
		version = v
	}

	rel, err := filepath.Rel(root, m.Path())
	if err != nil {
		return nil, err
	}

	p := &Package{
		Name:         m.Name,
		Dir:          m.Dir(),
		ManifestPath: filepath.ToSlash(rel),
		Version:      version,
		Private:      m.Private,
		Scripts:      m.Scripts,
	}
	for _, section := range manifest.Sections {
		for name, raw := range m.DepSection(section) {
			p.Deps = append(p.Deps, Dep{
				Name:        name,
				Section:     section,
				Requirement: ParseRequirement(raw),
			})
		}
	}
	return p, nil
}

// Store returns the workspace's manifest store.
func (w *Workspace) Store() *manifest.Store { return w.store }

// Get returns the package with the given name.
func (w *Workspace) Get(name string) (*Package, bool) {
	i, ok := w.byName[name]
	if !ok {
		return nil, false
	}
	return w.Packages[i], true
}

// Index returns the owning-slice index for a package name.
func (w *Workspace) Index(name string) (int, bool) {
	i, ok := w.byName[name]
	return i, ok
}

// Has reports whether a package with the given name exists in the workspace.
func (w *Workspace) Has(name string) bool {
	_, ok := w.byName[name]
	return ok
}

// Names returns all package names in owning-slice order.
func (w *Workspace) Names() []string {
	names := make([]string, len(w.Packages))
	for i, p := range w.Packages {
		names[i] = p.Name
	}
	return names
}

// ManifestPathOf returns the absolute manifest path for a package name.
func (w *Workspace) ManifestPathOf(name string) (string, bool) {
	p, ok := w.Get(name)
	if !ok {
		return "", false
	}
	return filepath.Join(p.Dir, "package.json"), true
}

// PathLock returns the per-path mutex serializing manifest writes.
// The manifest store itself is stateless; callers hold this lock around
// Save/Patch calls targeting the same file.
func (w *Workspace) PathLock(path string) *sync.Mutex {
	mu, _ := w.pathLocks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Lock acquires the workspace write lock. Held for the duration of any
// plan-apply or graph rebuild (single writer, many readers).
func (w *Workspace) Lock() { w.mu.Lock() }

// Unlock releases the workspace write lock.
func (w *Workspace) Unlock() { w.mu.Unlock() }

// RLock acquires the workspace read lock.
func (w *Workspace) RLock() { w.mu.RLock() }

// RUnlock releases the workspace read lock.
func (w *Workspace) RUnlock() { w.mu.RUnlock() }
