package gitx

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sublimetools/sublime/pkg/changeset"
	"github.com/sublimetools/sublime/pkg/workspace"
)

// ChangeSummary is the tracker's view of what changed between two revisions.
type ChangeSummary struct {
	Baseline         string
	Head             string
	ChangedFiles     []string
	AffectedPackages []string
	// SuggestedBumps maps each affected package to the bump implied by its
	// conventional commits in the range.
	SuggestedBumps map[string]changeset.Bump
	Commits        []Commit
}

// Tracker derives affected packages and suggested bumps from Git history.
// It is a pure reader of Git state.
type Tracker struct {
	git *Git
	ws  *workspace.Workspace
}

// NewTracker creates a change tracker for the given repository and workspace.
func NewTracker(git *Git, ws *workspace.Workspace) *Tracker {
	return &Tracker{git: git, ws: ws}
}

// Changes computes the change summary between baseline and head.
// An empty head means HEAD.
func (t *Tracker) Changes(ctx context.Context, baseline, head string) (*ChangeSummary, error) {
	if head == "" {
		head = "HEAD"
	}

	diffs, err := t.git.DiffNameStatus(ctx, baseline, head)
	if err != nil {
		return nil, err
	}

	summary := &ChangeSummary{
		Baseline:       baseline,
		Head:           head,
		SuggestedBumps: make(map[string]changeset.Bump),
	}
	for _, d := range diffs {
		summary.ChangedFiles = append(summary.ChangedFiles, d.Path)
	}

	affected := make(map[string]bool)
	for _, p := range t.ws.Packages {
		rel, err := filepath.Rel(t.ws.Root, p.Dir)
		if err != nil {
			continue
		}
		// A package rooted at the workspace itself owns every path.
		if rel == "." {
			if len(summary.ChangedFiles) > 0 {
				affected[p.Name] = true
			}
			continue
		}
		prefix := filepath.ToSlash(rel) + "/"
		for _, f := range summary.ChangedFiles {
			if strings.HasPrefix(f, prefix) {
				affected[p.Name] = true
				break
			}
		}
	}
	for name := range affected {
		summary.AffectedPackages = append(summary.AffectedPackages, name)
	}
	sort.Strings(summary.AffectedPackages)

	summary.Commits, err = t.git.Log(ctx, baseline+".."+head, "")
	if err != nil {
		return nil, err
	}

	for _, name := range summary.AffectedPackages {
		p, _ := t.ws.Get(name)
		rel, err := filepath.Rel(t.ws.Root, p.Dir)
		if err != nil {
			continue
		}
		commits, err := t.git.Log(ctx, baseline+".."+head, filepath.ToSlash(rel))
		if err != nil {
			return nil, err
		}
		summary.SuggestedBumps[name] = SuggestBump(commits)
	}

	return summary, nil
}

// SuggestBump classifies commits with the conventional-commit heuristic and
// returns the most severe implied bump: breaking changes are major, feat is
// minor, fix and perf are patch, anything else none.
func SuggestBump(commits []Commit) changeset.Bump {
	bump := changeset.BumpNone
	for _, c := range commits {
		bump = bump.Max(classifyCommit(c.Subject))
	}
	return bump
}

func classifyCommit(subject string) changeset.Bump {
	if strings.Contains(subject, "BREAKING CHANGE") {
		return changeset.BumpMajor
	}

	kind, _, ok := strings.Cut(subject, ":")
	if !ok {
		return changeset.BumpNone
	}
	// Strip an optional scope: "feat(api)!" -> "feat!".
	if i := strings.Index(kind, "("); i >= 0 {
		if j := strings.Index(kind, ")"); j > i {
			kind = kind[:i] + kind[j+1:]
		}
	}
	if strings.HasSuffix(kind, "!") {
		return changeset.BumpMajor
	}
	switch kind {
	case "feat":
		return changeset.BumpMinor
	case "fix", "perf":
		return changeset.BumpPatch
	default:
		return changeset.BumpNone
	}
}
