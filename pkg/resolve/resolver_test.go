package resolve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/sublimetools/sublime/pkg/errors"
	"github.com/sublimetools/sublime/pkg/manifest"
	"github.com/sublimetools/sublime/pkg/pm"
	"github.com/sublimetools/sublime/pkg/registry"
	"github.com/sublimetools/sublime/pkg/workspace"
)

func testWorkspace(t *testing.T, deps map[string]map[string]string) *workspace.Workspace {
	t.Helper()
	var packages []*workspace.Package
	for name, reqs := range deps {
		v, err := semver.NewVersion("1.0.0")
		if err != nil {
			t.Fatal(err)
		}
		p := &workspace.Package{Name: name, Dir: "/repo/" + name, Version: v}
		for dep, req := range reqs {
			p.Deps = append(p.Deps, workspace.Dep{
				Name:        dep,
				Section:     manifest.SectionRuntime,
				Requirement: workspace.ParseRequirement(req),
			})
		}
		packages = append(packages, p)
	}
	return workspace.New("/repo", pm.NPM, packages)
}

func registryWith(t *testing.T, versions ...string) *registry.Client {
	t.Helper()
	body := `{"name": "x", "versions": {`
	for i, v := range versions {
		if i > 0 {
			body += ","
		}
		body += `"` + v + `": {}`
	}
	body += `}}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return registry.NewClient(registry.Options{URL: srv.URL})
}

func TestResolve_RegistryTier(t *testing.T) {
	reg := registryWith(t, "4.17.19", "4.17.21", "5.0.0")
	r := New(testWorkspace(t, nil), reg)

	res, err := r.Resolve(context.Background(), "lodash", []string{"^4.0.0", "^4.17.0"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Version.String() != "4.17.21" {
		t.Errorf("Resolve() = %s, want 4.17.21 (highest satisfying)", res.Version)
	}
	if res.Source != SourceRegistry {
		t.Errorf("Resolve() source = %s, want registry", res.Source)
	}
}

func TestResolve_WorkspaceTier(t *testing.T) {
	ws := testWorkspace(t, map[string]map[string]string{
		"a": {"lodash": "^4.17.21"},
		"b": {"lodash": "^4.0.0"},
	})
	r := New(ws, nil)

	res, err := r.Resolve(context.Background(), "lodash", []string{"^4.0.0"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Version.String() != "4.17.21" {
		t.Errorf("Resolve() = %s, want 4.17.21", res.Version)
	}
	if res.Source != SourceWorkspace {
		t.Errorf("Resolve() source = %s, want workspace", res.Source)
	}
}

func TestResolve_BareTier(t *testing.T) {
	r := New(testWorkspace(t, nil), nil)

	res, err := r.Resolve(context.Background(), "leftpad", []string{"^1.2.0", "^1.5.0"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Version.String() != "1.5.0" {
		t.Errorf("Resolve() = %s, want 1.5.0", res.Version)
	}
	if res.Source != SourceBare {
		t.Errorf("Resolve() source = %s, want bare", res.Source)
	}
}

func TestResolve_Unresolvable(t *testing.T) {
	r := New(testWorkspace(t, nil), nil)

	_, err := r.Resolve(context.Background(), "lodash", []string{"^3.0.0", "^4.0.0"})
	if !errors.Is(err, errors.ErrCodeUnresolvable) {
		t.Errorf("Resolve() error = %v, want UNRESOLVABLE", err)
	}
}

func TestResolve_SatisfiedVersionWins(t *testing.T) {
	// The registry carries versions outside the ranges; the highest one
	// inside every range must win over the global maximum.
	reg := registryWith(t, "3.9.0", "4.1.0", "4.9.0", "5.0.0")
	r := New(testWorkspace(t, nil), reg)

	res, err := r.Resolve(context.Background(), "x", []string{"^4.0.0", ">=4.1.0"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Version.String() != "4.9.0" {
		t.Errorf("Resolve() = %s, want 4.9.0", res.Version)
	}
}

func TestResolve_PrereleaseOnlyWhenRequested(t *testing.T) {
	reg := registryWith(t, "1.0.0", "2.0.0-beta.1")
	r := New(testWorkspace(t, nil), reg)

	res, err := r.Resolve(context.Background(), "x", []string{">=1.0.0"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Version.String() != "1.0.0" {
		t.Errorf("Resolve() = %s, want 1.0.0 (prerelease excluded)", res.Version)
	}

	res, err = r.Resolve(context.Background(), "x", []string{">=2.0.0-beta"})
	if err != nil {
		t.Fatalf("Resolve() with prerelease requirement error = %v", err)
	}
	if res.Version.String() != "2.0.0-beta.1" {
		t.Errorf("Resolve() = %s, want 2.0.0-beta.1", res.Version)
	}
}

func TestAnyPrerelease(t *testing.T) {
	tests := []struct {
		req  string
		want bool
	}{
		{"^4.17.0", false},
		{">=1.0.0 <2.0.0", false},
		{">=2.0.0-beta", true},
		{"^1.2.3-rc.1", true},
		// The hyphen of a version range is an operator, not a tag.
		{"1.2.3 - 2.0.0", false},
		{"1.2.3 - 2.0.0-rc.1", true},
		{"1.0.0 - 1.5.0 || >=2.0.0-alpha.1", true},
	}
	for _, tt := range tests {
		reqs := []workspace.Requirement{workspace.ParseRequirement(tt.req)}
		if got := anyPrerelease(reqs); got != tt.want {
			t.Errorf("anyPrerelease(%q) = %v, want %v", tt.req, got, tt.want)
		}
	}
}
