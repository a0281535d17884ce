// Package plan computes and applies coordinated version bumps.
//
// The planner turns active changesets plus the dependency graph into a
// VersionPlan: direct bumps seeded from changesets, patch-level bumps
// propagated to dependents, harmonized bumps inside cycle groups, and the
// requirement rewrites needed so every internal edge still admits its
// dependency's new version. Planning never touches disk; Apply mutates
// manifests atomically and rolls back on any failure.
package plan

import (
	"github.com/Masterminds/semver/v3"

	"github.com/sublimetools/sublime/pkg/changeset"
	"github.com/sublimetools/sublime/pkg/manifest"
)

// Strategy selects how bumps spread across the workspace.
type Strategy string

const (
	// StrategyIndependent bumps only packages with direct, propagated, or
	// harmonized intents.
	StrategyIndependent Strategy = "independent"
	// StrategyUnified applies the maximum computed intent to every package.
	StrategyUnified Strategy = "unified"
)

// Origin records why a package is in the plan.
type Origin string

const (
	OriginDirect          Origin = "direct"
	OriginDependency      Origin = "dependency"
	OriginCycleHarmonized Origin = "cycle_harmonized"
)

// RequirementUpdate is one dependency-requirement rewrite inside a
// package's manifest.
type RequirementUpdate struct {
	Dependency string
	Section    manifest.Section
	From       string
	To         string
}

// Change is one package's entry in a version plan. From and To are nil for
// version-less packages that only receive requirement updates.
type Change struct {
	Name       string
	From       *semver.Version
	To         *semver.Version
	Bump       changeset.Bump
	Origin     Origin
	CycleGroup string // Shared id when the change was harmonized with a cycle group
	Updates    []RequirementUpdate
}

// Plan is an atomic, topologically ordered set of version changes.
// Dependencies come before their dependents.
type Plan struct {
	ID       string
	Strategy Strategy
	Changes  []Change
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool { return len(p.Changes) == 0 }

// Version returns the planned version for a package, if it is in the plan.
func (p *Plan) Version(name string) (*semver.Version, bool) {
	for _, c := range p.Changes {
		if c.Name == name && c.To != nil {
			return c.To, true
		}
	}
	return nil, false
}

// NextVersion computes the version that bump produces from current.
// Prerelease tags and build metadata are stripped before bumping. Below
// 1.0.0 the pre-1.0 convention applies: major and minor both advance the
// minor number, patch advances the patch number.
func NextVersion(current *semver.Version, bump changeset.Bump) *semver.Version {
	base := current
	if current.Prerelease() != "" || current.Metadata() != "" {
		base = semver.New(current.Major(), current.Minor(), current.Patch(), "", "")
	}

	var next semver.Version
	switch {
	case bump == changeset.BumpNone:
		next = *base
	case base.Major() == 0 && bump != changeset.BumpPatch:
		next = base.IncMinor()
	case bump == changeset.BumpMajor:
		next = base.IncMajor()
	case bump == changeset.BumpMinor:
		next = base.IncMinor()
	default:
		next = base.IncPatch()
	}
	return &next
}
