// Package pm detects which package manager owns a workspace.
package pm

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sublimetools/sublime/pkg/manifest"
)

// Manager identifies a JavaScript package manager.
type Manager string

const (
	NPM     Manager = "npm"
	Yarn    Manager = "yarn"
	PNPM    Manager = "pnpm"
	Bun     Manager = "bun"
	Unknown Manager = "unknown"
)

// lockfiles maps lockfile names to their managers, in detection order.
var lockfiles = []struct {
	file    string
	manager Manager
}{
	{"package-lock.json", NPM},
	{"yarn.lock", Yarn},
	{"pnpm-lock.yaml", PNPM},
	{"bun.lockb", Bun},
}

// Detect identifies the package manager for the repository at root.
//
// The decision rule is applied in order:
//  1. The root manifest's packageManager field (e.g., "pnpm@8.0.0")
//  2. Exactly one recognized lockfile present
//  3. Presence of pnpm-workspace.yaml
//  4. Unknown (callers treat unknown as npm-compatible)
//
// The root manifest is optional here; detection still runs against lockfiles
// when it is absent or unreadable.
func Detect(root string, rootManifest *manifest.Manifest) Manager {
	if rootManifest != nil {
		if m := fromPackageManagerField(rootManifest.PackageManager); m != Unknown {
			return m
		}
	}

	var found []Manager
	for _, lf := range lockfiles {
		if fileExists(filepath.Join(root, lf.file)) {
			found = append(found, lf.manager)
		}
	}
	if len(found) == 1 {
		return found[0]
	}

	if fileExists(filepath.Join(root, "pnpm-workspace.yaml")) {
		return PNPM
	}
	return Unknown
}

// fromPackageManagerField parses corepack-style "name@version" declarations.
func fromPackageManagerField(field string) Manager {
	name, _, _ := strings.Cut(strings.TrimSpace(field), "@")
	switch name {
	case "npm":
		return NPM
	case "yarn":
		return Yarn
	case "pnpm":
		return PNPM
	case "bun":
		return Bun
	}
	return Unknown
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
