package workspace

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ReqClass partitions dependency requirement strings into their three
// disjoint protocol classes.
type ReqClass int

const (
	// ReqSemver is a plain semver range ("^1.2.3", "~1.0", "1.x", ">=1 <2").
	ReqSemver ReqClass = iota
	// ReqWorkspace is the workspace protocol ("workspace:*", "workspace:^",
	// "workspace:~", "workspace:<range>"); it always resolves to the
	// internal package.
	ReqWorkspace
	// ReqLocal is a local path protocol ("file:", "link:", "portal:").
	ReqLocal
)

// String returns the class name for logs and reports.
func (c ReqClass) String() string {
	switch c {
	case ReqWorkspace:
		return "workspace"
	case ReqLocal:
		return "local"
	default:
		return "semver"
	}
}

// Requirement is one parsed dependency requirement string.
type Requirement struct {
	Raw   string   // The literal string from the manifest
	Class ReqClass // Protocol class
	// Inner is the payload after the protocol prefix: the range for
	// workspace:<range>, the path for local protocols, Raw itself for
	// semver requirements.
	Inner string
}

// ParseRequirement classifies a requirement string.
func ParseRequirement(raw string) Requirement {
	switch {
	case strings.HasPrefix(raw, "workspace:"):
		return Requirement{Raw: raw, Class: ReqWorkspace, Inner: strings.TrimPrefix(raw, "workspace:")}
	case strings.HasPrefix(raw, "file:"),
		strings.HasPrefix(raw, "link:"),
		strings.HasPrefix(raw, "portal:"):
		_, path, _ := strings.Cut(raw, ":")
		return Requirement{Raw: raw, Class: ReqLocal, Inner: path}
	default:
		return Requirement{Raw: raw, Class: ReqSemver, Inner: raw}
	}
}

// Admits reports whether the requirement accepts the given version.
//
// Workspace requirements always admit internal versions: "workspace:*",
// bare "workspace:^"/"workspace:~" aliases, and any workspace:<range> that
// the version satisfies. Local requirements admit everything (they pin a
// path, not a version). Unparsable semver ranges admit nothing.
func (r Requirement) Admits(v *semver.Version) bool {
	switch r.Class {
	case ReqLocal:
		return true
	case ReqWorkspace:
		switch r.Inner {
		case "*", "^", "~", "":
			return true
		}
		c, err := semver.NewConstraint(r.Inner)
		if err != nil {
			return false
		}
		return c.Check(v)
	default:
		c, err := semver.NewConstraint(r.Inner)
		if err != nil {
			return false
		}
		return c.Check(v)
	}
}

// Constraint returns the semver constraint for range-bearing requirements,
// or nil for local protocols and version-less workspace aliases.
func (r Requirement) Constraint() (*semver.Constraints, error) {
	switch r.Class {
	case ReqLocal:
		return nil, nil
	case ReqWorkspace:
		switch r.Inner {
		case "*", "^", "~", "":
			return nil, nil
		}
		return semver.NewConstraint(r.Inner)
	default:
		return semver.NewConstraint(r.Inner)
	}
}

// Rewritten returns the requirement string that should replace Raw so that
// newVersion is admitted, preserving the original prefix style:
// "^x" stays caret, "~x" stays tilde, exact stays exact, and workspace
// aliases are kept as-is (they always track the internal package).
func (r Requirement) Rewritten(newVersion *semver.Version) string {
	switch r.Class {
	case ReqLocal:
		return r.Raw
	case ReqWorkspace:
		switch r.Inner {
		case "*", "^", "~", "":
			return r.Raw
		}
		return "workspace:" + rewriteRange(r.Inner, newVersion)
	default:
		return rewriteRange(r.Inner, newVersion)
	}
}

// FloorVersion extracts the version literal at the head of the requirement's
// range by stripping range operators ("^1.2.3" -> 1.2.3). Returns nil for
// local protocols, version-less workspace aliases, and heads that do not
// parse as versions ("1.x", "*").
func (r Requirement) FloorVersion() *semver.Version {
	if r.Class == ReqLocal {
		return nil
	}
	head := r.Inner
	if i := strings.IndexAny(head, " |,"); i >= 0 {
		head = head[:i]
	}
	head = strings.TrimLeft(head, "^~=<> ")
	if head == "" {
		return nil
	}
	v, err := semver.NewVersion(head)
	if err != nil {
		return nil
	}
	return v
}

func rewriteRange(rng string, v *semver.Version) string {
	switch {
	case strings.HasPrefix(rng, "^"):
		return "^" + v.String()
	case strings.HasPrefix(rng, "~"):
		return "~" + v.String()
	case strings.HasPrefix(rng, ">="):
		return ">=" + v.String()
	case strings.HasPrefix(rng, "="):
		return "=" + v.String()
	default:
		return v.String()
	}
}
