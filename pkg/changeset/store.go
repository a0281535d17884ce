package changeset

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/sublimetools/sublime/pkg/errors"
	"github.com/sublimetools/sublime/pkg/workspace"
)

const maxSanitizedLen = 120

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	dashRuns    = regexp.MustCompile(`-+`)
	hexCommitRe = regexp.MustCompile(`^[0-9a-f]{7,40}$`)
)

// SanitizeBranch maps a Git branch name to a safe file stem: characters
// outside [A-Za-z0-9._-] become "-", runs of "-" collapse, and the result
// is trimmed to 120 characters.
func SanitizeBranch(branch string) string {
	s := unsafeChars.ReplaceAllString(branch, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	if len(s) > maxSanitizedLen {
		s = s[:maxSanitizedLen]
	}
	return s
}

// Store manages active and archived changeset files.
type Store struct {
	dir        string
	historyDir string
	lock       *flock.Flock
}

// NewStore creates a store rooted at dir. historyDir defaults to
// dir/history when empty. Directories are created on first mutation.
func NewStore(dir, historyDir string) *Store {
	if historyDir == "" {
		historyDir = filepath.Join(dir, "history")
	}
	return &Store{
		dir:        dir,
		historyDir: historyDir,
		lock:       flock.New(filepath.Join(dir, ".lock")),
	}
}

// Dir returns the active changeset directory.
func (s *Store) Dir() string { return s.dir }

// withLock runs fn holding the advisory file lock that serializes all
// mutators, in-process and across processes.
func (s *Store) withLock(fn func() error) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	if err := s.lock.Lock(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "acquiring changeset lock")
	}
	defer s.lock.Unlock()
	return fn()
}

// CreateOrUpdate writes the changeset for branch, merging with an existing
// one: packages are unioned, commits are appended in first-appearance
// order, the bump keeps the higher severity, and environments are
// replaced by the given set.
func (s *Store) CreateOrUpdate(branch string, bump Bump, envs, packages, commits []string) (*Changeset, error) {
	if err := errors.ValidateBranchName(branch); err != nil {
		return nil, err
	}
	var result *Changeset
	err := s.withLock(func() error {
		path, err := s.activePath(branch)
		if err != nil {
			return err
		}

		now := time.Now().UTC().Truncate(time.Second)
		cs, err := s.read(path)
		switch {
		case errors.Is(err, errors.ErrCodeChangesetNotFound):
			cs = &Changeset{Branch: branch, Bump: bump, CreatedAt: now}
		case err != nil:
			return err
		default:
			cs.Bump = cs.Bump.Max(bump)
			packages = union(cs.Packages, packages)
			commits = dedupe(cs.Commits, commits)
		}
		cs.Environments = append([]string(nil), envs...)
		cs.Packages = union(nil, packages)
		cs.Commits = dedupe(nil, commits)
		cs.UpdatedAt = now

		if err := s.write(path, cs); err != nil {
			return err
		}
		result = cs
		return nil
	})
	return result, err
}

// ListActive returns all active changesets, sorted by branch.
// Files that fail to parse are skipped; listing never fails on content.
func (s *Store) ListActive() ([]*Changeset, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sets []*Changeset
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		cs, err := s.read(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		sets = append(sets, cs)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Branch < sets[j].Branch })
	return sets, nil
}

// Get returns the active changeset for branch.
func (s *Store) Get(branch string) (*Changeset, error) {
	path, err := s.activePath(branch)
	if err != nil {
		return nil, err
	}
	return s.read(path)
}

// Archive atomically moves the active changeset for branch into the
// history directory with release metadata appended. The active file is
// renamed, never copied then deleted.
func (s *Store) Archive(branch string, info ReleaseInfo) (*ArchivedChangeset, error) {
	var archived *ArchivedChangeset
	err := s.withLock(func() error {
		path, err := s.activePath(branch)
		if err != nil {
			return err
		}
		cs, err := s.read(path)
		if err != nil {
			return err
		}

		archived = &ArchivedChangeset{Changeset: *cs, ReleaseInfo: info}
		if err := os.MkdirAll(s.historyDir, 0755); err != nil {
			return err
		}

		stamp := info.AppliedAt
		if stamp.IsZero() {
			stamp = time.Now().UTC()
		}
		name := fmt.Sprintf("%s-%s.yaml", SanitizeBranch(branch), stamp.UTC().Format("2006-01-02T150405Z"))
		target := filepath.Join(s.historyDir, name)

		// Rewrite the active file in place with release_info appended,
		// then rename it into history. The rename is the atomic step.
		if err := s.write(path, archived); err != nil {
			return err
		}
		return os.Rename(path, target)
	})
	return archived, err
}

// ListArchived returns archived changesets, newest first by filename.
func (s *Store) ListArchived() ([]*ArchivedChangeset, error) {
	entries, err := os.ReadDir(s.historyDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sets []*ArchivedChangeset
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.historyDir, e.Name()))
		if err != nil {
			continue
		}
		var a ArchivedChangeset
		if yaml.Unmarshal(data, &a) != nil {
			continue
		}
		sets = append(sets, &a)
	}
	return sets, nil
}

// Validate checks a changeset against the environment catalog and the
// workspace. All failures are accumulated into one CHANGESET_INVALID error.
func Validate(cs *Changeset, catalog []string, ws *workspace.Workspace) error {
	var problems []string

	if strings.TrimSpace(cs.Branch) == "" {
		problems = append(problems, "branch is empty")
	}
	if len(cs.Packages) == 0 {
		problems = append(problems, "no packages listed")
	}
	if !cs.Bump.Valid() {
		problems = append(problems, fmt.Sprintf("invalid bump %q", cs.Bump))
	}

	known := make(map[string]bool, len(catalog))
	for _, env := range catalog {
		known[env] = true
	}
	for _, env := range cs.Environments {
		if !known[env] {
			problems = append(problems, fmt.Sprintf("unknown environment %q", env))
		}
	}

	if ws != nil {
		for _, pkg := range cs.Packages {
			if !ws.Has(pkg) {
				problems = append(problems, fmt.Sprintf("unknown package %q", pkg))
			}
		}
	}
	for _, commit := range cs.Commits {
		if !hexCommitRe.MatchString(commit) {
			problems = append(problems, fmt.Sprintf("malformed commit %q", commit))
		}
	}

	if len(problems) > 0 {
		return errors.New(errors.ErrCodeChangesetInvalid,
			"changeset for branch %q: %s", cs.Branch, strings.Join(problems, "; "))
	}
	return nil
}

// activePath returns the active file path for branch, guarding against two
// branches colliding on the same sanitized stem. An existing file owned by
// a different branch is a CHANGESET_COLLISION.
func (s *Store) activePath(branch string) (string, error) {
	path := filepath.Join(s.dir, SanitizeBranch(branch)+".yaml")
	existing, err := s.read(path)
	if err == nil && existing.Branch != branch {
		return "", errors.New(errors.ErrCodeChangesetCollision,
			"branches %q and %q sanitize to the same changeset file", existing.Branch, branch)
	}
	return path, nil
}

func (s *Store) read(path string) (*Changeset, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodeChangesetNotFound, "no changeset at %s", path)
	}
	if err != nil {
		return nil, err
	}
	var cs Changeset
	if err := yaml.Unmarshal(data, &cs); err != nil {
		return nil, errors.Wrap(errors.ErrCodeChangesetInvalid, err, "parsing %s", path)
	}
	return &cs, nil
}

// write marshals v to path via a temp file and rename in the same
// directory, so readers never observe partial content.
func (s *Store) write(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// union merges string slices, deduplicated and sorted.
func union(a, b []string) []string {
	out := dedupe(a, b)
	sort.Strings(out)
	return out
}

// dedupe merges string slices, dropping duplicates and empties while
// keeping first-appearance order. Commit lists are ordered, so they merge
// through dedupe rather than union.
func dedupe(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
