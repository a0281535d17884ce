package graph

import (
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/sublimetools/sublime/pkg/workspace"
)

// RequesterRequirement pairs a requesting package with its requirement
// string on a conflicted dependency.
type RequesterRequirement struct {
	Requester   string
	Requirement string
}

// Conflict reports one external dependency whose requirements admit no
// common version.
type Conflict struct {
	Name         string
	Requirements []RequesterRequirement
}

// VersionConflicts groups external semver requirements by dependency name
// and reports every group with an empty intersection.
//
// Local-protocol requirements (file:, link:, portal:) pin paths, not
// versions, and never participate. Conflicts are sorted by dependency name;
// requirements within a conflict by requester.
func (g *Graph) VersionConflicts() []Conflict {
	var conflicts []Conflict

	for name, reqs := range g.externals {
		var semverReqs []ExternalRequirement
		for _, r := range reqs {
			if r.Requirement.Class == workspace.ReqSemver {
				semverReqs = append(semverReqs, r)
			}
		}
		if len(semverReqs) < 2 {
			continue
		}
		if satisfiable(semverReqs) {
			continue
		}

		c := Conflict{Name: name}
		for _, r := range semverReqs {
			c.Requirements = append(c.Requirements, RequesterRequirement{
				Requester:   r.Requester,
				Requirement: r.Requirement.Raw,
			})
		}
		sort.Slice(c.Requirements, func(i, j int) bool {
			return c.Requirements[i].Requester < c.Requirements[j].Requester
		})
		conflicts = append(conflicts, c)
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Name < conflicts[j].Name })
	return conflicts
}

// satisfiable reports whether any version satisfies every requirement.
//
// Without registry data the candidate set is the bare versions embedded in
// the requirements themselves: a shared version exists iff some declared
// floor satisfies all ranges. Requirements that yield neither a constraint
// nor a candidate are treated as unbounded rather than conflicting.
func satisfiable(reqs []ExternalRequirement) bool {
	var (
		constraints []*semver.Constraints
		candidates  []*semver.Version
	)
	for _, r := range reqs {
		c, err := r.Requirement.Constraint()
		if err != nil || c == nil {
			return true
		}
		constraints = append(constraints, c)
		if v := r.Requirement.FloorVersion(); v != nil {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return true
	}

	for _, v := range candidates {
		ok := true
		for _, c := range constraints {
			if !c.Check(v) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
