// Package graph builds the inter-package dependency graph of a workspace.
//
// The graph has one node per discovered package. An edge A -> B exists iff
// A declares B (an internal package) in any dependency section; the edge
// carries the section and the parsed requirement. External dependencies are
// recorded separately for the version-conflict report.
//
// A Graph is built once from a loaded workspace and immutable thereafter.
// Derived structures (strongly connected components, topological order,
// dependents) are computed lazily and cached; all accessors are safe for
// concurrent use.
package graph

import (
	"sort"
	"sync"

	"github.com/sublimetools/sublime/pkg/manifest"
	"github.com/sublimetools/sublime/pkg/workspace"
)

// Edge is a directed dependency between two internal packages.
type Edge struct {
	From        string // Depending package
	To          string // Dependency package
	Section     manifest.Section
	Requirement workspace.Requirement
}

// ExternalRequirement records one package's requirement on an external
// (non-workspace) dependency.
type ExternalRequirement struct {
	Requester   string
	Section     manifest.Section
	Requirement workspace.Requirement
}

// Graph is the immutable package dependency graph.
type Graph struct {
	nodes     []string // Lexicographically sorted package names
	edges     []Edge
	outgoing  map[string][]string // package -> internal dependencies
	incoming  map[string][]string // package -> direct dependents
	externals map[string][]ExternalRequirement
	selfDeps  []string

	versions map[string]string // package -> declared version (for reports)

	sccOnce sync.Once
	sccs    [][]string
	groupOf map[string]int
	topo    []string
	cycles  []CycleGroup

	depMu      sync.Mutex
	dependents map[string][]string
}

// Build constructs the dependency graph from a loaded workspace.
//
// Self-dependencies are recorded (see SelfDependencies) but do not produce
// edges; they would otherwise surface as size-1 cycle groups everywhere.
func Build(ws *workspace.Workspace) *Graph {
	g := &Graph{
		outgoing:   make(map[string][]string),
		incoming:   make(map[string][]string),
		externals:  make(map[string][]ExternalRequirement),
		versions:   make(map[string]string),
		dependents: make(map[string][]string),
	}

	for _, p := range ws.Packages {
		g.nodes = append(g.nodes, p.Name)
		if p.Version != nil {
			g.versions[p.Name] = p.Version.String()
		}
	}
	sort.Strings(g.nodes)

	for _, p := range ws.Packages {
		seen := make(map[string]bool)
		for _, dep := range p.Deps {
			if dep.Name == p.Name {
				if !seen[dep.Name] {
					g.selfDeps = append(g.selfDeps, p.Name)
					seen[dep.Name] = true
				}
				continue
			}
			if !ws.Has(dep.Name) {
				g.externals[dep.Name] = append(g.externals[dep.Name], ExternalRequirement{
					Requester:   p.Name,
					Section:     dep.Section,
					Requirement: dep.Requirement,
				})
				continue
			}
			g.edges = append(g.edges, Edge{
				From:        p.Name,
				To:          dep.Name,
				Section:     dep.Section,
				Requirement: dep.Requirement,
			})
			if !seen[dep.Name] {
				g.outgoing[p.Name] = append(g.outgoing[p.Name], dep.Name)
				g.incoming[dep.Name] = append(g.incoming[dep.Name], p.Name)
				seen[dep.Name] = true
			}
		}
	}

	for _, adj := range []map[string][]string{g.outgoing, g.incoming} {
		for _, targets := range adj {
			sort.Strings(targets)
		}
	}
	sort.Strings(g.selfDeps)

	return g
}

// Nodes returns all package names in lexicographic order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns a copy of all internal edges.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// NodeCount returns the number of packages in the graph.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of internal dependency edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// DependenciesOf returns the direct internal dependencies of a package,
// sorted lexicographically. The returned slice is a read-only view.
func (g *Graph) DependenciesOf(name string) []string { return g.outgoing[name] }

// DirectDependentsOf returns the packages that directly depend on name,
// sorted lexicographically. The returned slice is a read-only view.
func (g *Graph) DirectDependentsOf(name string) []string { return g.incoming[name] }

// DependentsOf returns every direct and transitive dependent of name,
// sorted lexicographically. Results are cached per queried node.
func (g *Graph) DependentsOf(name string) []string {
	g.depMu.Lock()
	defer g.depMu.Unlock()

	if cached, ok := g.dependents[name]; ok {
		return cached
	}

	visited := make(map[string]bool)
	queue := append([]string(nil), g.incoming[name]...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n] {
			continue
		}
		visited[n] = true
		queue = append(queue, g.incoming[n]...)
	}

	result := make([]string, 0, len(visited))
	for n := range visited {
		result = append(result, n)
	}
	sort.Strings(result)
	g.dependents[name] = result
	return result
}

// SelfDependencies returns the packages that declare themselves as a
// dependency, sorted lexicographically. Callers surface these as warnings.
func (g *Graph) SelfDependencies() []string {
	out := make([]string, len(g.selfDeps))
	copy(out, g.selfDeps)
	return out
}

// Externals returns the external dependency name -> requesters index.
// The returned map is a read-only view.
func (g *Graph) Externals() map[string][]ExternalRequirement { return g.externals }

// VersionOf returns the declared version string for a package, if any.
func (g *Graph) VersionOf(name string) (string, bool) {
	v, ok := g.versions[name]
	return v, ok
}
