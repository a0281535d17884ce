package pm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sublimetools/sublime/pkg/manifest"
)

func touch(t *testing.T, root, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func loadRoot(t *testing.T, root, content string) *manifest.Manifest {
	t.Helper()
	path := filepath.Join(root, "package.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := manifest.NewStore().Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestDetect_PackageManagerField(t *testing.T) {
	root := t.TempDir()
	m := loadRoot(t, root, `{"name": "r", "private": true, "packageManager": "pnpm@8.15.0"}`)
	// A conflicting lockfile must not override the explicit field.
	touch(t, root, "yarn.lock")

	if got := Detect(root, m); got != PNPM {
		t.Errorf("Detect() = %v, want %v", got, PNPM)
	}
}

func TestDetect_SingleLockfile(t *testing.T) {
	tests := []struct {
		lockfile string
		want     Manager
	}{
		{"package-lock.json", NPM},
		{"yarn.lock", Yarn},
		{"pnpm-lock.yaml", PNPM},
		{"bun.lockb", Bun},
	}

	for _, tt := range tests {
		t.Run(tt.lockfile, func(t *testing.T) {
			root := t.TempDir()
			touch(t, root, tt.lockfile)
			if got := Detect(root, nil); got != tt.want {
				t.Errorf("Detect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetect_MultipleLockfiles(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "yarn.lock")
	touch(t, root, "package-lock.json")

	if got := Detect(root, nil); got != Unknown {
		t.Errorf("Detect() = %v, want %v", got, Unknown)
	}
}

func TestDetect_PnpmWorkspaceFile(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "pnpm-workspace.yaml")

	if got := Detect(root, nil); got != PNPM {
		t.Errorf("Detect() = %v, want %v", got, PNPM)
	}
}

func TestDetect_Empty(t *testing.T) {
	if got := Detect(t.TempDir(), nil); got != Unknown {
		t.Errorf("Detect() = %v, want %v", got, Unknown)
	}
}
