package workspace

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sublimetools/sublime/pkg/errors"
	"github.com/sublimetools/sublime/pkg/manifest"
)

// DefaultExcludes are directory names never descended into during discovery.
var DefaultExcludes = []string{
	"node_modules", ".git", "dist", "build", "coverage", ".next", ".nuxt", "out",
}

// DefaultMaxDepth bounds discovery recursion below the repository root.
const DefaultMaxDepth = 5

// DiscoverOptions tunes workspace discovery.
type DiscoverOptions struct {
	// FallbackPatterns are used when neither the root manifest nor
	// pnpm-workspace.yaml declares workspace patterns.
	FallbackPatterns []string
	// ExtraExcludes extends DefaultExcludes.
	ExtraExcludes []string
	// MaxDepth bounds recursion; 0 means DefaultMaxDepth.
	MaxDepth int
	// FollowSymlinks opts in to traversing symlinked directories.
	FollowSymlinks bool
}

// Discoverer resolves workspace patterns to package directories.
type Discoverer struct {
	store *manifest.Store
	opts  DiscoverOptions
}

// NewDiscoverer creates a discoverer backed by the given manifest store.
func NewDiscoverer(store *manifest.Store, opts DiscoverOptions) *Discoverer {
	if store == nil {
		store = manifest.NewStore()
	}
	return &Discoverer{store: store, opts: opts}
}

// Discover returns the package directories under root, sorted by path.
//
// Patterns are merged in order with duplicates removed:
//  1. Root manifest "workspaces" (array or {packages, nohoist} object)
//  2. pnpm-workspace.yaml "packages" (when present)
//  3. Configured fallback patterns
//
// A directory matches iff a pattern matches its root-relative path and it
// contains a package.json. An empty result is legal (single-package repo).
// A missing root manifest fails with NOT_A_PROJECT.
func (d *Discoverer) Discover(root string) ([]string, error) {
	rootManifestPath := filepath.Join(root, "package.json")
	if _, err := os.Stat(rootManifestPath); err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotAProject, err, "no package.json at %s", root)
	}

	patterns, err := d.patterns(root, rootManifestPath)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	maxDepth := d.opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	excluded := make(map[string]bool, len(DefaultExcludes)+len(d.opts.ExtraExcludes))
	for _, e := range DefaultExcludes {
		excluded[e] = true
	}
	for _, e := range d.opts.ExtraExcludes {
		excluded[e] = true
	}

	var dirs []string
	err = filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			if !d.opts.FollowSymlinks || entry.Type()&fs.ModeSymlink == 0 {
				return nil
			}
			info, statErr := os.Stat(p)
			if statErr != nil || !info.IsDir() {
				return nil
			}
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if excluded[entry.Name()] {
			return filepath.SkipDir
		}
		if strings.Count(rel, "/")+1 > maxDepth {
			return filepath.SkipDir
		}

		if matchesAny(patterns, rel) && fileExists(filepath.Join(p, "package.json")) {
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(dirs)
	return dirs, nil
}

// patterns merges the three pattern sources in order, deduplicated.
func (d *Discoverer) patterns(root, rootManifestPath string) ([]string, error) {
	var merged []string
	seen := make(map[string]bool)
	add := func(ps []string) {
		for _, p := range ps {
			p = strings.TrimSuffix(path.Clean(p), "/")
			if p != "" && !seen[p] {
				seen[p] = true
				merged = append(merged, p)
			}
		}
	}

	m, err := d.store.Load(rootManifestPath)
	if err == nil && m.Workspaces != nil {
		add(m.Workspaces.Packages)
	}

	pnpmPatterns, err := readPnpmWorkspace(filepath.Join(root, "pnpm-workspace.yaml"))
	if err != nil {
		return nil, err
	}
	add(pnpmPatterns)

	add(d.opts.FallbackPatterns)
	return merged, nil
}

// readPnpmWorkspace parses the packages list from pnpm-workspace.yaml.
// A missing file yields no patterns.
func readPnpmWorkspace(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc struct {
		Packages []string `yaml:"packages"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, err, "parsing %s", path)
	}
	return doc.Packages, nil
}

func matchesAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if matchGlob(p, rel) {
			return true
		}
	}
	return false
}

// matchGlob matches a workspace glob against a slash-separated relative
// path. "*" matches one path segment; "**" matches any number of segments
// (including none).
func matchGlob(pattern, rel string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(rel, "/"))
}

func matchSegments(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pattern[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], segs[1:])
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
