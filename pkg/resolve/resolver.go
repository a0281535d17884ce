// Package resolve selects the highest version satisfying a set of
// dependency requirements.
//
// Resolution tries three sources in order and takes the first that yields a
// candidate admitted by every requirement:
//
//  1. Registry-reported versions for the dependency.
//  2. Versions already declared in the workspace for that name: other
//     packages' requirement floors, plus the internal package's own version
//     when the name is internal.
//  3. The requirement floors themselves, interpreted as bare versions.
//
// Prerelease versions are considered only when at least one requirement
// carries a prerelease tag.
package resolve

import (
	"context"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/sublimetools/sublime/pkg/errors"
	"github.com/sublimetools/sublime/pkg/registry"
	"github.com/sublimetools/sublime/pkg/workspace"
)

// Source identifies where the winning version came from.
type Source string

const (
	SourceRegistry  Source = "registry"
	SourceWorkspace Source = "workspace"
	SourceBare      Source = "bare"
)

// Resolution is a successful resolver outcome.
type Resolution struct {
	Name    string
	Version *semver.Version
	Source  Source
}

// Resolver picks versions that satisfy every requirement on a dependency.
type Resolver struct {
	ws       *workspace.Workspace
	registry *registry.Client
}

// New creates a resolver. The registry client may be nil; registry lookups
// are then skipped and resolution starts at the workspace tier.
func New(ws *workspace.Workspace, reg *registry.Client) *Resolver {
	return &Resolver{ws: ws, registry: reg}
}

// Resolve returns the highest version of name admitted by every requirement.
// Fails with UNRESOLVABLE when no source yields a common version.
func (r *Resolver) Resolve(ctx context.Context, name string, reqStrings []string) (Resolution, error) {
	reqs := make([]workspace.Requirement, 0, len(reqStrings))
	for _, s := range reqStrings {
		reqs = append(reqs, workspace.ParseRequirement(s))
	}

	constraints, err := collectConstraints(name, reqs)
	if err != nil {
		return Resolution{}, err
	}
	allowPrerelease := anyPrerelease(reqs)

	if r.registry != nil {
		versions, err := r.registry.Versions(ctx, name, false)
		// Unknown packages and names the registry cannot hold (internal
		// names that are not valid npm names) fall through to the next tier.
		if err != nil && !errors.Is(err, errors.ErrCodeNotFound) && !errors.Is(err, errors.ErrCodeManifestShape) {
			return Resolution{}, err
		}
		if v := highestSatisfying(versions, constraints, allowPrerelease); v != nil {
			return Resolution{Name: name, Version: v, Source: SourceRegistry}, nil
		}
	}

	if v := highestSatisfying(r.workspaceVersions(name), constraints, allowPrerelease); v != nil {
		return Resolution{Name: name, Version: v, Source: SourceWorkspace}, nil
	}

	var floors []*semver.Version
	for _, req := range reqs {
		if v := req.FloorVersion(); v != nil {
			floors = append(floors, v)
		}
	}
	if v := highestSatisfying(floors, constraints, allowPrerelease); v != nil {
		return Resolution{Name: name, Version: v, Source: SourceBare}, nil
	}

	return Resolution{}, errors.New(errors.ErrCodeUnresolvable,
		"no version of %s satisfies all requirements: %s", name, strings.Join(reqStrings, ", "))
}

// workspaceVersions gathers every version of name already declared in the
// workspace: requirement floors from all packages plus the internal
// package's own version.
func (r *Resolver) workspaceVersions(name string) []*semver.Version {
	var versions []*semver.Version
	if r.ws == nil {
		return nil
	}
	if p, ok := r.ws.Get(name); ok && p.Version != nil {
		versions = append(versions, p.Version)
	}
	for _, p := range r.ws.Packages {
		for _, dep := range p.Deps {
			if dep.Name != name {
				continue
			}
			if v := dep.Requirement.FloorVersion(); v != nil {
				versions = append(versions, v)
			}
		}
	}
	return versions
}

// collectConstraints parses the range of every range-bearing requirement.
// An unparsable range is an immediate UNRESOLVABLE: it can never be checked,
// so no version can be shown to satisfy it.
func collectConstraints(name string, reqs []workspace.Requirement) ([]*semver.Constraints, error) {
	var constraints []*semver.Constraints
	for _, req := range reqs {
		c, err := req.Constraint()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeUnresolvable, err, "invalid requirement %q on %s", req.Raw, name)
		}
		if c != nil {
			constraints = append(constraints, c)
		}
	}
	return constraints, nil
}

// anyPrerelease reports whether any requirement names a prerelease tag.
func anyPrerelease(reqs []workspace.Requirement) bool {
	for _, req := range reqs {
		if req.Class == workspace.ReqLocal {
			continue
		}
		if hasPrereleaseOperand(req.Inner) {
			return true
		}
	}
	return false
}

// hasPrereleaseOperand scans the operands of a range expression for a
// prerelease tag. The standalone hyphen of a range like "1.2.3 - 2.0.0"
// is an operator, not a tag, and must not opt prereleases in.
func hasPrereleaseOperand(inner string) bool {
	inner = strings.ReplaceAll(inner, "||", " ")
	for _, tok := range strings.Fields(inner) {
		tok = strings.Trim(tok, ",")
		tok = strings.TrimLeft(tok, "^~<>=v")
		if tok == "" || tok == "-" {
			continue
		}
		if strings.IndexByte(tok, '-') > 0 {
			return true
		}
	}
	return false
}

// highestSatisfying returns the maximum candidate admitted by every
// constraint, or nil. Prerelease candidates are skipped unless allowed.
func highestSatisfying(candidates []*semver.Version, constraints []*semver.Constraints, allowPrerelease bool) *semver.Version {
	sorted := make([]*semver.Version, len(candidates))
	copy(sorted, candidates)
	sort.Sort(sort.Reverse(semver.Collection(sorted)))

	for _, v := range sorted {
		if v.Prerelease() != "" && !allowPrerelease {
			continue
		}
		ok := true
		for _, c := range constraints {
			if !c.Check(v) {
				ok = false
				break
			}
		}
		if ok {
			return v
		}
	}
	return nil
}
