// Package gitx wraps the Git plumbing the engine needs: branch and SHA
// queries, tag lookup, diffs, and commit logs. Everything shells out to the
// git CLI; no repository state is written by this package.
package gitx

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/sublimetools/sublime/pkg/errors"
)

// Commit is one log entry.
type Commit struct {
	SHA     string
	Subject string
}

// FileChange is one entry of a name-status diff.
type FileChange struct {
	Status string // A, M, D, R<score>, ...
	Path   string // Post-change path for renames
}

// Git runs git commands against one repository.
type Git struct {
	dir string
}

// New creates a Git bound to the repository at dir.
func New(dir string) *Git { return &Git{dir: dir} }

// Dir returns the repository directory.
func (g *Git) Dir() string { return g.dir }

// IsRepo reports whether dir is inside a Git work tree.
func (g *Git) IsRepo(ctx context.Context) bool {
	_, err := g.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// CurrentBranch returns the checked-out branch name ("HEAD" when detached).
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// CurrentSHA returns the full SHA of HEAD.
func (g *Git) CurrentSHA(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "HEAD")
}

// RevParse resolves an arbitrary revision to a SHA.
func (g *Git) RevParse(ctx context.Context, rev string) (string, error) {
	return g.run(ctx, "rev-parse", rev)
}

// MergeBase returns the best common ancestor of two revisions.
func (g *Git) MergeBase(ctx context.Context, a, b string) (string, error) {
	return g.run(ctx, "merge-base", a, b)
}

// LastTag returns the most recent tag reachable from HEAD, or "" when the
// repository has no tags.
func (g *Git) LastTag(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "describe", "--tags", "--abbrev=0")
	if err != nil {
		if strings.Contains(err.Error(), "cannot describe") ||
			strings.Contains(err.Error(), "No names found") {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// InitialCommit returns the root commit of the current history.
func (g *Git) InitialCommit(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-list", "--max-parents=0", "HEAD")
	if err != nil {
		return "", err
	}
	// Octopus histories can have several roots; take the first.
	sha, _, _ := strings.Cut(out, "\n")
	return sha, nil
}

// DiffNameStatus returns the files changed between two revisions.
func (g *Git) DiffNameStatus(ctx context.Context, from, to string) ([]FileChange, error) {
	out, err := g.run(ctx, "diff", "--name-status", from+".."+to)
	if err != nil {
		return nil, err
	}
	var changes []FileChange
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		// Renames and copies carry old and new paths; keep the new one.
		changes = append(changes, FileChange{Status: fields[0], Path: fields[len(fields)-1]})
	}
	return changes, nil
}

// Log returns commits in the given range, optionally restricted to a path.
func (g *Git) Log(ctx context.Context, rangeSpec, path string) ([]Commit, error) {
	args := []string{"log", "--format=%H%x1f%s", rangeSpec}
	if path != "" {
		args = append(args, "--", path)
	}
	out, err := g.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		sha, subject, ok := strings.Cut(line, "\x1f")
		if !ok {
			continue
		}
		commits = append(commits, Commit{SHA: sha, Subject: subject})
	}
	return commits, nil
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", g.dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err,
			"git %s: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
