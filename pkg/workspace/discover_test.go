package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sublimetools/sublime/pkg/errors"
)

// writeTree lays out a fixture monorepo from a map of path -> content.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestDiscover_RootWorkspacesArray(t *testing.T) {
	root := writeTree(t, map[string]string{
		"package.json":              `{"name": "root", "private": true, "workspaces": ["packages/*"]}`,
		"packages/a/package.json":   `{"name": "a", "version": "1.0.0"}`,
		"packages/b/package.json":   `{"name": "b", "version": "1.0.0"}`,
		"packages/no-manifest/x.ts": "export {}",
		"unrelated/package.json":    `{"name": "unrelated", "version": "1.0.0"}`,
	})

	dirs, err := NewDiscoverer(nil, DiscoverOptions{}).Discover(root)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	want := []string{
		filepath.Join(root, "packages", "a"),
		filepath.Join(root, "packages", "b"),
	}
	if len(dirs) != len(want) {
		t.Fatalf("Discover() = %v, want %v", dirs, want)
	}
	for i := range want {
		if dirs[i] != want[i] {
			t.Errorf("dirs[%d] = %q, want %q", i, dirs[i], want[i])
		}
	}
}

func TestDiscover_PnpmWorkspaceMerged(t *testing.T) {
	root := writeTree(t, map[string]string{
		"package.json":            `{"name": "root", "private": true, "workspaces": ["packages/*"]}`,
		"pnpm-workspace.yaml":     "packages:\n  - apps/*\n",
		"packages/a/package.json": `{"name": "a", "version": "1.0.0"}`,
		"apps/web/package.json":   `{"name": "web", "version": "1.0.0"}`,
	})

	dirs, err := NewDiscoverer(nil, DiscoverOptions{}).Discover(root)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(dirs) != 2 {
		t.Errorf("Discover() found %d dirs, want 2: %v", len(dirs), dirs)
	}
}

func TestDiscover_ExcludesNodeModules(t *testing.T) {
	root := writeTree(t, map[string]string{
		"package.json":                            `{"name": "root", "private": true, "workspaces": ["**"]}`,
		"packages/a/package.json":                 `{"name": "a", "version": "1.0.0"}`,
		"node_modules/leftpad/package.json":       `{"name": "leftpad", "version": "9.9.9"}`,
		"packages/a/node_modules/x/package.json":  `{"name": "x", "version": "0.0.1"}`,
		"packages/a/dist/package.json":            `{"name": "dist-copy", "version": "1.0.0"}`,
	})

	dirs, err := NewDiscoverer(nil, DiscoverOptions{}).Discover(root)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(dirs) != 1 {
		t.Fatalf("Discover() = %v, want only packages/a", dirs)
	}
}

func TestDiscover_MaxDepth(t *testing.T) {
	root := writeTree(t, map[string]string{
		"package.json":                  `{"name": "root", "private": true, "workspaces": ["**"]}`,
		"a/b/package.json":              `{"name": "shallow", "version": "1.0.0"}`,
		"a/b/c/d/e/f/g/package.json":    `{"name": "deep", "version": "1.0.0"}`,
	})

	dirs, err := NewDiscoverer(nil, DiscoverOptions{MaxDepth: 3}).Discover(root)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(dirs) != 1 {
		t.Errorf("Discover() = %v, want only the shallow package", dirs)
	}
}

func TestDiscover_NotAProject(t *testing.T) {
	_, err := NewDiscoverer(nil, DiscoverOptions{}).Discover(t.TempDir())
	if !errors.Is(err, errors.ErrCodeNotAProject) {
		t.Errorf("Discover() error = %v, want NOT_A_PROJECT", err)
	}
}

func TestDiscover_EmptyResultIsLegal(t *testing.T) {
	root := writeTree(t, map[string]string{
		"package.json": `{"name": "single", "version": "1.0.0"}`,
	})

	dirs, err := NewDiscoverer(nil, DiscoverOptions{}).Discover(root)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(dirs) != 0 {
		t.Errorf("Discover() = %v, want empty", dirs)
	}
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern, rel string
		want         bool
	}{
		{"packages/*", "packages/a", true},
		{"packages/*", "packages/a/b", false},
		{"packages/**", "packages/a/b", true},
		{"packages/**", "packages", true},
		{"**", "anything/at/all", true},
		{"apps/*-web", "apps/admin-web", true},
		{"apps/*-web", "apps/admin", false},
	}

	for _, tt := range tests {
		if got := matchGlob(tt.pattern, tt.rel); got != tt.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.pattern, tt.rel, got, tt.want)
		}
	}
}
