package release

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sublimetools/sublime/pkg/gitx"
	"github.com/sublimetools/sublime/pkg/plan"
	"github.com/sublimetools/sublime/pkg/workspace"
)

const changelogFile = "CHANGELOG.md"

// generateChangelogs writes a changelog section for every package the plan
// versions, grouping conventional commits by type. With more than one
// changed package a root changelog summarizing the release is written too.
// Returns the paths written.
func generateChangelogs(ctx context.Context, git *gitx.Git, ws *workspace.Workspace, p *plan.Plan, baseline, head string) ([]string, error) {
	date := time.Now().Format("2006-01-02")
	rangeSpec := baseline + ".." + head

	var written []string
	for _, c := range p.Changes {
		if c.To == nil {
			continue
		}
		pkg, ok := ws.Get(c.Name)
		if !ok {
			continue
		}
		commits, err := git.Log(ctx, rangeSpec, pkg.Dir)
		if err != nil {
			return written, err
		}
		section := renderSection(c.To.String(), date, commits)
		path := filepath.Join(pkg.Dir, changelogFile)
		if err := prependSection(path, section); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if len(p.Changes) > 1 {
		var b strings.Builder
		b.WriteString("## " + date + "\n\n")
		for _, c := range p.Changes {
			if c.To == nil {
				continue
			}
			b.WriteString("- " + c.Name + " " + c.From.String() + " -> " + c.To.String() + "\n")
		}
		b.WriteString("\n")
		path := filepath.Join(ws.Root, changelogFile)
		if err := prependSection(path, b.String()); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// changelog section order and headings per conventional-commit type.
var sectionOrder = []struct {
	key     string
	heading string
}{
	{"breaking", "Breaking Changes"},
	{"feat", "Features"},
	{"fix", "Bug Fixes"},
	{"perf", "Performance"},
	{"other", "Other"},
}

func renderSection(version, date string, commits []gitx.Commit) string {
	groups := make(map[string][]gitx.Commit)
	for _, c := range commits {
		groups[commitType(c.Subject)] = append(groups[commitType(c.Subject)], c)
	}

	var b strings.Builder
	b.WriteString("## " + version + " (" + date + ")\n\n")
	for _, s := range sectionOrder {
		entries := groups[s.key]
		if len(entries) == 0 {
			continue
		}
		b.WriteString("### " + s.heading + "\n\n")
		for _, c := range entries {
			b.WriteString("- " + c.Subject + " (" + shortSHA(c.SHA) + ")\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// commitType maps a conventional-commit subject to a changelog group.
func commitType(subject string) string {
	head, rest, found := strings.Cut(subject, ":")
	if !found {
		return "other"
	}
	if strings.Contains(rest, "BREAKING CHANGE") || strings.HasSuffix(head, "!") {
		return "breaking"
	}
	if i := strings.IndexByte(head, '('); i >= 0 {
		head = head[:i]
	}
	switch head {
	case "feat", "fix", "perf":
		return head
	}
	return "other"
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// prependSection inserts the new section after the changelog title,
// creating the file if needed. Writes go through a temp file and rename.
func prependSection(path, section string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	var b strings.Builder
	body := string(existing)
	if title, rest, found := strings.Cut(body, "\n\n"); found && strings.HasPrefix(title, "# ") {
		b.WriteString(title + "\n\n")
		b.WriteString(section)
		b.WriteString(rest)
	} else {
		b.WriteString("# Changelog\n\n")
		b.WriteString(section)
		b.WriteString(body)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
