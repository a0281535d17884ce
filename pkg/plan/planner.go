package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/sublimetools/sublime/pkg/changeset"
	"github.com/sublimetools/sublime/pkg/errors"
	"github.com/sublimetools/sublime/pkg/graph"
	"github.com/sublimetools/sublime/pkg/workspace"
)

// Options tunes plan computation.
type Options struct {
	Strategy Strategy // Empty means independent
	// NoHarmonizeCycles disables raising cycle members to the group
	// maximum. Harmonization is on by default.
	NoHarmonizeCycles bool
	// Force computes a plan even when the graph reports version conflicts.
	Force bool
}

// Planner computes version plans. It never writes to disk; see Apply.
type Planner struct {
	ws *workspace.Workspace
	g  *graph.Graph
}

// NewPlanner creates a planner over a loaded workspace and its graph.
func NewPlanner(ws *workspace.Workspace, g *graph.Graph) *Planner {
	return &Planner{ws: ws, g: g}
}

// intent is one package's pending bump while the plan is being computed.
type intent struct {
	bump       changeset.Bump
	origin     Origin
	cycleGroup string
}

// Plan computes the version plan for the given changesets.
//
// Version conflicts in the graph are fatal unless Force is set; a conflict
// means the workspace's requirements disagree and coordinated bumps would
// bake the disagreement into released versions.
func (p *Planner) Plan(sets []*changeset.Changeset, opts Options) (*Plan, error) {
	if !opts.Force {
		if conflicts := p.g.VersionConflicts(); len(conflicts) > 0 {
			names := make([]string, len(conflicts))
			for i, c := range conflicts {
				names[i] = c.Name
			}
			return nil, errors.New(errors.ErrCodeVersionConflict,
				"workspace has version conflicts on: %s", strings.Join(names, ", "))
		}
	}

	intents := p.seed(sets)
	p.propagate(intents)
	if !opts.NoHarmonizeCycles {
		p.harmonize(intents)
	}
	if opts.Strategy == StrategyUnified {
		p.unify(intents)
	}

	return p.assemble(intents, opts), nil
}

// seed records a direct intent for every package named in a changeset,
// keeping the highest severity across all changesets that mention it.
// Packages unknown to the workspace are ignored; validation reports them.
func (p *Planner) seed(sets []*changeset.Changeset) map[string]*intent {
	intents := make(map[string]*intent)
	for _, cs := range sets {
		if cs.Bump == changeset.BumpNone {
			continue
		}
		for _, name := range cs.Packages {
			if !p.ws.Has(name) {
				continue
			}
			it, ok := intents[name]
			if !ok {
				intents[name] = &intent{bump: cs.Bump, origin: OriginDirect}
				continue
			}
			it.bump = it.bump.Max(cs.Bump)
		}
	}
	return intents
}

// propagate walks dependents in topological order: a package whose
// dependency is being bumped receives a patch-level dependency bump, or
// minor when the propagating bump is major behind a non-caret requirement
// that stops matching. Existing intents at or above the proposal win.
func (p *Planner) propagate(intents map[string]*intent) {
	for _, name := range p.g.TopoOrder() {
		pkg, ok := p.ws.Get(name)
		if !ok {
			continue
		}
		for _, dep := range pkg.Deps {
			depIntent, bumping := intents[dep.Name]
			if !bumping || depIntent.bump == changeset.BumpNone {
				continue
			}
			proposed := changeset.BumpPatch
			if depIntent.bump == changeset.BumpMajor && breaksRequirement(p.ws, dep, depIntent.bump) {
				proposed = changeset.BumpMinor
			}

			it, ok := intents[name]
			if !ok {
				intents[name] = &intent{bump: proposed, origin: OriginDependency}
				continue
			}
			if !it.bump.AtLeast(proposed) {
				it.bump = proposed
			}
		}
	}
}

// breaksRequirement reports whether dep's requirement is a non-caret range
// that no longer admits the dependency's bumped version.
func breaksRequirement(ws *workspace.Workspace, dep workspace.Dep, bump changeset.Bump) bool {
	if strings.HasPrefix(dep.Requirement.Inner, "^") {
		return false
	}
	target, ok := ws.Get(dep.Name)
	if !ok || target.Version == nil {
		return false
	}
	return !dep.Requirement.Admits(NextVersion(target.Version, bump))
}

// harmonize raises every member of a bumped cycle group to the group
// maximum and tags the raised members.
func (p *Planner) harmonize(intents map[string]*intent) {
	for _, group := range p.g.CycleGroups() {
		maxBump := changeset.BumpNone
		for _, m := range group.Members {
			if it, ok := intents[m]; ok {
				maxBump = maxBump.Max(it.bump)
			}
		}
		if maxBump == changeset.BumpNone {
			continue
		}
		for _, m := range group.Members {
			it, ok := intents[m]
			if !ok {
				intents[m] = &intent{bump: maxBump, origin: OriginCycleHarmonized, cycleGroup: group.ID}
				continue
			}
			if maxBump != it.bump {
				it.bump = maxBump
				it.origin = OriginCycleHarmonized
			}
			it.cycleGroup = group.ID
		}
	}
}

// unify replaces every intent with the workspace-wide maximum, applied to
// every package. Packages pulled in only by unification keep no special
// origin; they are direct members of the unified release.
func (p *Planner) unify(intents map[string]*intent) {
	maxBump := changeset.BumpNone
	for _, it := range intents {
		maxBump = maxBump.Max(it.bump)
	}
	if maxBump == changeset.BumpNone {
		return
	}
	for _, name := range p.g.Nodes() {
		it, ok := intents[name]
		if !ok {
			intents[name] = &intent{bump: maxBump, origin: OriginDirect}
			continue
		}
		it.bump = maxBump
	}
}

// assemble materializes intents into a topologically ordered plan with the
// requirement rewrites each version change forces on its dependents.
func (p *Planner) assemble(intents map[string]*intent, opts Options) *Plan {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyIndependent
	}
	out := &Plan{ID: uuid.NewString(), Strategy: strategy}

	newVersions := make(map[string]*semver.Version)
	for name, it := range intents {
		if it.bump == changeset.BumpNone {
			continue
		}
		pkg, ok := p.ws.Get(name)
		if !ok || pkg.Version == nil {
			continue
		}
		newVersions[name] = NextVersion(pkg.Version, it.bump)
	}

	updates := make(map[string][]RequirementUpdate)
	for _, e := range p.g.Edges() {
		toVersion, ok := newVersions[e.To]
		if !ok || e.Requirement.Admits(toVersion) {
			continue
		}
		rewritten := e.Requirement.Rewritten(toVersion)
		if rewritten == e.Requirement.Raw {
			continue
		}
		updates[e.From] = append(updates[e.From], RequirementUpdate{
			Dependency: e.To,
			Section:    e.Section,
			From:       e.Requirement.Raw,
			To:         rewritten,
		})
	}
	for _, ups := range updates {
		sort.Slice(ups, func(i, j int) bool { return ups[i].Dependency < ups[j].Dependency })
	}

	for _, name := range p.g.TopoOrder() {
		toVersion := newVersions[name]
		ups := updates[name]
		if toVersion == nil && ups == nil {
			continue
		}

		change := Change{Name: name, Updates: ups, Bump: changeset.BumpNone}
		if it, ok := intents[name]; ok && toVersion != nil {
			pkg, _ := p.ws.Get(name)
			change.From = pkg.Version
			change.To = toVersion
			change.Bump = it.bump
			change.Origin = it.origin
			change.CycleGroup = it.cycleGroup
		} else if ups != nil {
			change.Origin = OriginDependency
		}
		out.Changes = append(out.Changes, change)
	}
	return out
}

// Preview renders a plan as a human-readable report grouped by origin.
func Preview(p *Plan) string {
	if p.Empty() {
		return "no version changes planned\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "plan %s (%s strategy)\n", p.ID, p.Strategy)
	for _, origin := range []Origin{OriginDirect, OriginDependency, OriginCycleHarmonized} {
		var lines []string
		for _, c := range p.Changes {
			if c.Origin != origin || c.To == nil {
				continue
			}
			line := fmt.Sprintf("  %s %s -> %s (%s)", c.Name, c.From, c.To, c.Bump)
			if c.CycleGroup != "" {
				line += fmt.Sprintf(" [cycle %s]", c.CycleGroup)
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n%s\n", origin, strings.Join(lines, "\n"))
	}

	var reqLines []string
	for _, c := range p.Changes {
		for _, u := range c.Updates {
			reqLines = append(reqLines, fmt.Sprintf("  %s: %s %q -> %q", c.Name, u.Dependency, u.From, u.To))
		}
	}
	if len(reqLines) > 0 {
		fmt.Fprintf(&b, "requirement updates:\n%s\n", strings.Join(reqLines, "\n"))
	}
	return b.String()
}
