package plan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/sublimetools/sublime/pkg/changeset"
	"github.com/sublimetools/sublime/pkg/graph"
	"github.com/sublimetools/sublime/pkg/manifest"
	"github.com/sublimetools/sublime/pkg/workspace"
)

const (
	manifestA = `{
  "name": "a",
  "version": "1.0.0",
  "description": "unchanged prose mentioning version: 9.9.9"
}
`
	manifestB = `{
  "name": "b",
  "version": "1.0.0",
  "dependencies": {
    "a": "~1.0.0"
  }
}
`
)

func diskFixture(t *testing.T) (*workspace.Workspace, string) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"package.json":            `{"name": "root", "private": true, "workspaces": ["packages/*"]}`,
		"packages/a/package.json": manifestA,
		"packages/b/package.json": manifestB,
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	ws, err := workspace.Load(root, workspace.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return ws, root
}

func TestApply_WritesPlannedChanges(t *testing.T) {
	ws, root := diskFixture(t)
	planner := NewPlanner(ws, graph.Build(ws))

	sets := []*changeset.Changeset{{Branch: "x", Bump: changeset.BumpMajor, Packages: []string{"a"}}}
	p, err := planner.Plan(sets, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if err := Apply(context.Background(), ws, p); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	a, err := os.ReadFile(filepath.Join(root, "packages", "a", "package.json"))
	if err != nil {
		t.Fatal(err)
	}
	wantA := `{
  "name": "a",
  "version": "2.0.0",
  "description": "unchanged prose mentioning version: 9.9.9"
}
`
	if string(a) != wantA {
		t.Errorf("a manifest after apply:\n%s\nwant:\n%s", a, wantA)
	}

	b, err := os.ReadFile(filepath.Join(root, "packages", "b", "package.json"))
	if err != nil {
		t.Fatal(err)
	}
	// b is raised to minor (non-caret requirement behind a major bump) and
	// its tilde range follows a's new version.
	wantB := `{
  "name": "b",
  "version": "1.1.0",
  "dependencies": {
    "a": "~2.0.0"
  }
}
`
	if string(b) != wantB {
		t.Errorf("b manifest after apply:\n%s\nwant:\n%s", b, wantB)
	}

	// The in-memory workspace reflects the new versions.
	if pkg, _ := ws.Get("a"); pkg.Version.String() != "2.0.0" {
		t.Errorf("workspace version of a = %s, want 2.0.0", pkg.Version)
	}
}

func TestApply_RollsBackOnFailure(t *testing.T) {
	ws, root := diskFixture(t)

	v2 := semver.MustParse("2.0.0")
	v1 := semver.MustParse("1.0.0")
	p := &Plan{
		ID:       "test",
		Strategy: StrategyIndependent,
		Changes: []Change{
			{Name: "a", From: v1, To: v2, Bump: changeset.BumpMajor, Origin: OriginDirect},
			{Name: "b", From: v1, To: semver.MustParse("1.0.1"), Bump: changeset.BumpPatch, Origin: OriginDependency,
				Updates: []RequirementUpdate{{
					Dependency: "ghost",
					Section:    manifest.SectionRuntime,
					From:       "^1.0.0",
					To:         "^2.0.0",
				}}},
		},
	}

	err := Apply(context.Background(), ws, p)
	if err == nil {
		t.Fatal("Apply() succeeded, want failure on missing dependency key")
	}

	// Both manifests are byte-identical to their pre-apply state.
	a, _ := os.ReadFile(filepath.Join(root, "packages", "a", "package.json"))
	if string(a) != manifestA {
		t.Errorf("a manifest not restored:\n%s", a)
	}
	b, _ := os.ReadFile(filepath.Join(root, "packages", "b", "package.json"))
	if string(b) != manifestB {
		t.Errorf("b manifest not restored:\n%s", b)
	}
}

func TestApply_EmptyPlanIsNoop(t *testing.T) {
	ws, _ := diskFixture(t)
	if err := Apply(context.Background(), ws, &Plan{ID: "empty"}); err != nil {
		t.Errorf("Apply(empty) error = %v", err)
	}
}
