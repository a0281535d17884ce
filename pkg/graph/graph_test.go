package graph

import (
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/sublimetools/sublime/pkg/manifest"
	"github.com/sublimetools/sublime/pkg/pm"
	"github.com/sublimetools/sublime/pkg/workspace"
)

// pkgSpec is a compact fixture: name@version plus "dep requirement" pairs.
type pkgSpec struct {
	name    string
	version string
	deps    map[string]string
}

func buildWorkspace(t *testing.T, specs ...pkgSpec) *workspace.Workspace {
	t.Helper()
	var packages []*workspace.Package
	for _, s := range specs {
		v, err := semver.NewVersion(s.version)
		if err != nil {
			t.Fatal(err)
		}
		p := &workspace.Package{
			Name:    s.name,
			Dir:     "/repo/packages/" + s.name,
			Version: v,
		}
		for name, req := range s.deps {
			p.Deps = append(p.Deps, workspace.Dep{
				Name:        name,
				Section:     manifest.SectionRuntime,
				Requirement: workspace.ParseRequirement(req),
			})
		}
		packages = append(packages, p)
	}
	return workspace.New("/repo", pm.PNPM, packages)
}

func indexOf(t *testing.T, order []string, name string) int {
	t.Helper()
	for i, n := range order {
		if n == name {
			return i
		}
	}
	t.Fatalf("package %q missing from order %v", name, order)
	return -1
}

func TestBuild_ClassifiesEdges(t *testing.T) {
	ws := buildWorkspace(t,
		pkgSpec{name: "app", version: "1.0.0", deps: map[string]string{
			"lib":    "workspace:*",
			"lodash": "^4.17.0",
		}},
		pkgSpec{name: "lib", version: "1.0.0"},
	)
	g := Build(ws)

	if g.EdgeCount() != 1 {
		t.Fatalf("EdgeCount() = %d, want 1", g.EdgeCount())
	}
	e := g.Edges()[0]
	if e.From != "app" || e.To != "lib" {
		t.Errorf("edge = %s -> %s, want app -> lib", e.From, e.To)
	}
	ext := g.Externals()
	if len(ext["lodash"]) != 1 || ext["lodash"][0].Requester != "app" {
		t.Errorf("Externals()[lodash] = %v, want one requirement from app", ext["lodash"])
	}
}

func TestBuild_SelfDependency(t *testing.T) {
	ws := buildWorkspace(t,
		pkgSpec{name: "a", version: "1.0.0", deps: map[string]string{"a": "^1.0.0"}},
	)
	g := Build(ws)

	if got := g.SelfDependencies(); len(got) != 1 || got[0] != "a" {
		t.Errorf("SelfDependencies() = %v, want [a]", got)
	}
	if g.EdgeCount() != 0 {
		t.Errorf("EdgeCount() = %d, want 0 (self-loops carry no edge)", g.EdgeCount())
	}
	if len(g.CycleGroups()) != 0 {
		t.Errorf("CycleGroups() = %v, want none", g.CycleGroups())
	}
}

func TestTopoOrder_DependenciesFirst(t *testing.T) {
	ws := buildWorkspace(t,
		pkgSpec{name: "app", version: "1.0.0", deps: map[string]string{"ui": "^1.0.0", "core": "^1.0.0"}},
		pkgSpec{name: "ui", version: "1.0.0", deps: map[string]string{"core": "^1.0.0"}},
		pkgSpec{name: "core", version: "1.0.0"},
	)
	g := Build(ws)

	order := g.TopoOrder()
	if len(order) != 3 {
		t.Fatalf("TopoOrder() = %v, want 3 entries", order)
	}
	for _, e := range g.Edges() {
		if indexOf(t, order, e.To) > indexOf(t, order, e.From) {
			t.Errorf("order %v violates edge %s -> %s", order, e.From, e.To)
		}
	}
}

func TestTopoOrder_LexTieBreak(t *testing.T) {
	ws := buildWorkspace(t,
		pkgSpec{name: "zeta", version: "1.0.0"},
		pkgSpec{name: "alpha", version: "1.0.0"},
		pkgSpec{name: "mid", version: "1.0.0"},
	)
	g := Build(ws)

	got := strings.Join(g.TopoOrder(), ",")
	if got != "alpha,mid,zeta" {
		t.Errorf("TopoOrder() = %s, want alpha,mid,zeta", got)
	}
}

func TestTopoOrder_CycleMembersContiguous(t *testing.T) {
	ws := buildWorkspace(t,
		pkgSpec{name: "a", version: "1.0.0", deps: map[string]string{"b": "^1.0.0"}},
		pkgSpec{name: "b", version: "1.0.0", deps: map[string]string{"a": "^1.0.0"}},
		pkgSpec{name: "leaf", version: "1.0.0"},
		pkgSpec{name: "top", version: "1.0.0", deps: map[string]string{"a": "^1.0.0", "leaf": "^1.0.0"}},
	)
	g := Build(ws)

	order := g.TopoOrder()
	ia, ib := indexOf(t, order, "a"), indexOf(t, order, "b")
	if ib != ia+1 {
		t.Errorf("cycle members not contiguous and lex-ordered in %v", order)
	}
	if indexOf(t, order, "top") < ia {
		t.Errorf("dependent top precedes its cycle dependency in %v", order)
	}
}

func TestCycleGroups_Deterministic(t *testing.T) {
	ws := buildWorkspace(t,
		pkgSpec{name: "b", version: "1.0.0", deps: map[string]string{"c": "^1.0.0"}},
		pkgSpec{name: "c", version: "1.0.0", deps: map[string]string{"b": "^1.0.0"}},
		pkgSpec{name: "solo", version: "1.0.0"},
	)
	g := Build(ws)

	first := g.CycleGroups()
	second := g.CycleGroups()
	if len(first) != 1 {
		t.Fatalf("CycleGroups() = %v, want one group", first)
	}
	if first[0].String() != "b -> c -> b" {
		t.Errorf("canonical rotation = %q, want %q", first[0].String(), "b -> c -> b")
	}
	if first[0].ID != second[0].ID || first[0].String() != second[0].String() {
		t.Error("repeated CycleGroups() calls disagree")
	}
	if !g.InSameCycleGroup("b", "c") {
		t.Error("InSameCycleGroup(b, c) = false, want true")
	}
	if g.InSameCycleGroup("b", "solo") {
		t.Error("InSameCycleGroup(b, solo) = true, want false")
	}
}

func TestDependentsOf_Transitive(t *testing.T) {
	ws := buildWorkspace(t,
		pkgSpec{name: "app", version: "1.0.0", deps: map[string]string{"ui": "^1.0.0"}},
		pkgSpec{name: "ui", version: "1.0.0", deps: map[string]string{"core": "^1.0.0"}},
		pkgSpec{name: "core", version: "1.0.0"},
	)
	g := Build(ws)

	got := g.DependentsOf("core")
	want := []string{"app", "ui"}
	if len(got) != len(want) {
		t.Fatalf("DependentsOf(core) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DependentsOf(core)[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if got := g.DependentsOf("app"); len(got) != 0 {
		t.Errorf("DependentsOf(app) = %v, want empty", got)
	}
}

func TestVersionConflicts(t *testing.T) {
	ws := buildWorkspace(t,
		pkgSpec{name: "a", version: "1.0.0", deps: map[string]string{"lodash": "^3.0.0"}},
		pkgSpec{name: "b", version: "1.0.0", deps: map[string]string{"lodash": "^4.0.0"}},
		pkgSpec{name: "c", version: "1.0.0", deps: map[string]string{"react": "^18.0.0"}},
		pkgSpec{name: "d", version: "1.0.0", deps: map[string]string{"react": "^18.2.0"}},
	)
	g := Build(ws)

	conflicts := g.VersionConflicts()
	if len(conflicts) != 1 {
		t.Fatalf("VersionConflicts() = %v, want exactly lodash", conflicts)
	}
	c := conflicts[0]
	if c.Name != "lodash" {
		t.Errorf("conflict name = %q, want lodash", c.Name)
	}
	want := []RequesterRequirement{
		{Requester: "a", Requirement: "^3.0.0"},
		{Requester: "b", Requirement: "^4.0.0"},
	}
	if len(c.Requirements) != len(want) {
		t.Fatalf("conflict requirements = %v, want %v", c.Requirements, want)
	}
	for i := range want {
		if c.Requirements[i] != want[i] {
			t.Errorf("requirement[%d] = %v, want %v", i, c.Requirements[i], want[i])
		}
	}
}

func TestVersionConflicts_LocalProtocolIgnored(t *testing.T) {
	ws := buildWorkspace(t,
		pkgSpec{name: "a", version: "1.0.0", deps: map[string]string{"tool": "file:../tool-v1"}},
		pkgSpec{name: "b", version: "1.0.0", deps: map[string]string{"tool": "file:../tool-v2"}},
	)
	g := Build(ws)

	if got := g.VersionConflicts(); len(got) != 0 {
		t.Errorf("VersionConflicts() = %v, want none for local protocols", got)
	}
}

func TestToDOT(t *testing.T) {
	ws := buildWorkspace(t,
		pkgSpec{name: "app", version: "1.2.0", deps: map[string]string{"lib": "workspace:*"}},
		pkgSpec{name: "lib", version: "1.0.0"},
	)
	g := Build(ws)

	dot := g.ToDOT(DOTOptions{Versions: true})
	for _, want := range []string{
		"digraph packages {",
		`"app" [label="app\n1.2.0"];`,
		`"app" -> "lib" [style=dashed];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("ToDOT() missing %q:\n%s", want, dot)
		}
	}
	if strings.Contains(dot, "subgraph") {
		t.Errorf("ToDOT() emitted a cluster for an acyclic graph:\n%s", dot)
	}
}

func TestToDOT_CycleClusters(t *testing.T) {
	ws := buildWorkspace(t,
		pkgSpec{name: "a", version: "1.0.0", deps: map[string]string{"b": "^1.0.0"}},
		pkgSpec{name: "b", version: "1.0.0", deps: map[string]string{"a": "^1.0.0"}},
		pkgSpec{name: "solo", version: "1.0.0"},
	)
	g := Build(ws)

	dot := g.ToDOT(DOTOptions{})
	cluster := "subgraph cluster_0 {"
	for _, want := range []string{
		cluster,
		`label="cycle: a, b";`,
		`"a" [label="a"];`,
		`"b" [label="b"];`,
		`"solo" [label="solo"];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("ToDOT() missing %q:\n%s", want, dot)
		}
	}
	// Both cycle members sit inside the cluster, solo outside it.
	body := dot[strings.Index(dot, cluster):]
	body = body[:strings.Index(body, "}")]
	if !strings.Contains(body, `"a"`) || !strings.Contains(body, `"b"`) || strings.Contains(body, `"solo"`) {
		t.Errorf("cluster membership wrong:\n%s", body)
	}
}
