// Package changeset stores per-branch release intents.
//
// Active changesets live as one YAML file per branch under the configured
// changeset directory; archived changesets move to a history subdirectory
// with release metadata appended. All mutations are serialized through an
// advisory file lock so concurrent CLI invocations and the daemon cannot
// interleave writes.
package changeset

import (
	"time"
)

// Bump is a semver bump severity.
type Bump string

const (
	BumpMajor Bump = "major"
	BumpMinor Bump = "minor"
	BumpPatch Bump = "patch"
	BumpNone  Bump = "none"
)

// severity orders bumps: major > minor > patch > none.
func (b Bump) severity() int {
	switch b {
	case BumpMajor:
		return 3
	case BumpMinor:
		return 2
	case BumpPatch:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether b is at least as severe as other.
func (b Bump) AtLeast(other Bump) bool { return b.severity() >= other.severity() }

// Max returns the more severe of two bumps.
func (b Bump) Max(other Bump) Bump {
	if other.severity() > b.severity() {
		return other
	}
	return b
}

// Valid reports whether b is one of the four bump severities.
func (b Bump) Valid() bool {
	switch b {
	case BumpMajor, BumpMinor, BumpPatch, BumpNone:
		return true
	}
	return false
}

// Changeset is one branch's pending release intent.
type Changeset struct {
	Branch       string    `yaml:"branch"`
	Bump         Bump      `yaml:"bump"`
	Environments []string  `yaml:"environments"`
	Packages     []string  `yaml:"packages"`
	Commits      []string  `yaml:"commits"`
	CreatedAt    time.Time `yaml:"created_at"`
	UpdatedAt    time.Time `yaml:"updated_at"`
}

// ReleaseInfo records how an archived changeset was released.
type ReleaseInfo struct {
	AppliedAt time.Time         `yaml:"applied_at"`
	AppliedBy string            `yaml:"applied_by"`
	GitCommit string            `yaml:"git_commit"`
	Versions  map[string]string `yaml:"versions"`
}

// ArchivedChangeset is a released changeset in the history directory.
type ArchivedChangeset struct {
	Changeset   `yaml:",inline"`
	ReleaseInfo ReleaseInfo `yaml:"release_info"`
}
