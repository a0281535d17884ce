package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/sublimetools/sublime/pkg/pm"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if got := repoPathFromContext(ctx); got != "." {
		t.Errorf("repoPathFromContext(empty) = %q, want .", got)
	}
	ctx = withRepoPath(ctx, "/repo")
	if got := repoPathFromContext(ctx); got != "/repo" {
		t.Errorf("repoPathFromContext = %q, want /repo", got)
	}

	if loggerFromContext(context.Background()) == nil {
		t.Error("loggerFromContext(empty) = nil, want default logger")
	}
	l := newLogger(os.Stderr, log.DebugLevel)
	if got := loggerFromContext(withLogger(ctx, l)); got != l {
		t.Error("loggerFromContext lost the attached logger")
	}
}

func TestLoadApp_ConfigAndWorkspace(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"package.json":            `{"name": "root", "private": true, "workspaces": ["packages/*"]}`,
		"packages/a/package.json": `{"name": "a", "version": "1.0.0"}`,
		"repo.config.toml":        "package_manager = \"pnpm\"\n",
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

	a, err := loadApp(withRepoPath(context.Background(), root))
	if err != nil {
		t.Fatalf("loadApp() error = %v", err)
	}
	if a.Config.PackageManager != "pnpm" {
		t.Errorf("config package_manager = %q, want pnpm", a.Config.PackageManager)
	}

	ws, err := a.workspace()
	if err != nil {
		t.Fatalf("workspace() error = %v", err)
	}
	if len(ws.Packages) != 1 || ws.Packages[0].Name != "a" {
		t.Errorf("workspace packages = %v, want [a]", ws.Names())
	}
	// The configured manager overrides lockfile detection.
	if ws.Manager != pm.PNPM {
		t.Errorf("manager = %s, want pnpm", ws.Manager)
	}
}

func TestAnchor(t *testing.T) {
	a := &app{Root: "/repo"}
	if got := a.anchor(".changesets"); got != filepath.Join("/repo", ".changesets") {
		t.Errorf("anchor(relative) = %q", got)
	}
	if got := a.anchor("/abs/path"); got != "/abs/path" {
		t.Errorf("anchor(absolute) = %q", got)
	}
}
