// Package manifest reads and writes package.json files.
//
// The store provides a typed view of a manifest while guaranteeing that the
// original bytes round-trip unchanged: unknown fields, field order,
// indentation and trailing newlines are all preserved. Mutations go through
// PatchVersion and PatchDepRequirement, which splice the single targeted
// leaf value and leave every surrounding byte identical.
//
// # Usage
//
//	store := manifest.NewStore()
//	m, err := store.Load("packages/app/package.json")
//	...
//	err = store.PatchVersion("packages/app/package.json", "1.3.0")
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/sublimetools/sublime/pkg/errors"
)

// Section identifies one of the four dependency sections of a manifest.
type Section string

const (
	SectionRuntime  Section = "dependencies"
	SectionDev      Section = "devDependencies"
	SectionPeer     Section = "peerDependencies"
	SectionOptional Section = "optionalDependencies"
)

// Sections lists all dependency sections in declaration order.
var Sections = []Section{SectionRuntime, SectionDev, SectionPeer, SectionOptional}

// Workspaces holds the root manifest's workspace patterns. npm accepts either
// a bare array of globs or an object with "packages" (and yarn's "nohoist").
type Workspaces struct {
	Packages []string
	Nohoist  []string
}

// UnmarshalJSON accepts both the array and object forms.
func (w *Workspaces) UnmarshalJSON(data []byte) error {
	var patterns []string
	if err := json.Unmarshal(data, &patterns); err == nil {
		w.Packages = patterns
		return nil
	}
	var obj struct {
		Packages []string `json:"packages"`
		Nohoist  []string `json:"nohoist"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	w.Packages = obj.Packages
	w.Nohoist = obj.Nohoist
	return nil
}

// Manifest is a typed view of one package.json file.
//
// The view is read-only: writing back goes through Store.Save (which emits
// the original bytes) or the patch operations. Raw returns the exact bytes
// the manifest was loaded from.
type Manifest struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Private              bool              `json:"private"`
	PackageManager       string            `json:"packageManager"`
	Workspaces           *Workspaces       `json:"workspaces"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	Scripts              map[string]string `json:"scripts"`

	raw  []byte
	mode os.FileMode
	path string
}

// Raw returns the manifest's original on-disk bytes.
// The returned slice must not be modified.
func (m *Manifest) Raw() []byte { return m.raw }

// Path returns the path the manifest was loaded from.
func (m *Manifest) Path() string { return m.path }

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string { return filepath.Dir(m.path) }

// DepSection returns the requirement map for the given section.
// Returns nil for an unknown section or an absent section.
func (m *Manifest) DepSection(s Section) map[string]string {
	switch s {
	case SectionRuntime:
		return m.Dependencies
	case SectionDev:
		return m.DevDependencies
	case SectionPeer:
		return m.PeerDependencies
	case SectionOptional:
		return m.OptionalDependencies
	}
	return nil
}

// SemVersion parses the manifest's version as semver.
func (m *Manifest) SemVersion() (*semver.Version, error) {
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestShape, err, "invalid version %q in %s", m.Version, m.path)
	}
	return v, nil
}

// Store reads and writes manifests. The store owns no state; callers
// serialize concurrent writes to the same path via the workspace's
// per-path lock.
type Store struct{}

// NewStore creates a manifest store.
func NewStore() *Store { return &Store{} }

// Load parses the manifest at path into a typed view.
//
// Fails with MANIFEST_PARSE if the file is not valid JSON and with
// MANIFEST_SHAPE if "name" is missing or "version" is present but not
// valid semver. A missing version is tolerated only for private manifests
// (npm allows version-less private roots).
func (s *Store) Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotFound, err, "reading manifest %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestParse, err, "parsing manifest %s", path)
	}
	if m.Name == "" {
		return nil, errors.New(errors.ErrCodeManifestShape, "manifest %s has no name", path)
	}
	if err := errors.ValidatePackageName(m.Name); err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestShape, err, "manifest %s", path)
	}
	if m.Version == "" {
		if !m.Private {
			return nil, errors.New(errors.ErrCodeManifestShape, "manifest %s has no version", path)
		}
	} else if _, err := semver.NewVersion(m.Version); err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestShape, err, "manifest %s has invalid version %q", path, m.Version)
	}

	m.raw = data
	m.mode = info.Mode()
	m.path = path
	return &m, nil
}

// Save writes the manifest's bytes back to path atomically: the content is
// written to path.tmp and renamed over the target, preserving file mode.
func (s *Store) Save(path string, m *Manifest) error {
	return writeAtomic(path, m.raw, m.mode)
}

// PatchVersion rewrites the top-level "version" value in place, changing
// only the version literal itself.
func (s *Store) PatchVersion(path, newVersion string) error {
	return s.patch(path, []string{"version"}, newVersion)
}

// PatchDepRequirement rewrites the requirement string for dep inside the
// given dependency section, changing only the requirement literal itself.
func (s *Store) PatchDepRequirement(path string, section Section, dep, newReq string) error {
	return s.patch(path, []string{string(section), dep}, newReq)
}

func (s *Store) patch(path string, keyPath []string, newValue string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNotFound, err, "reading manifest %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	patched, err := spliceStringValue(data, keyPath, newValue)
	if err != nil {
		return errors.Wrap(errors.ErrCodeManifestShape, err, "patching %s in %s", keyPath[len(keyPath)-1], path)
	}
	return writeAtomic(path, patched, info.Mode())
}

func writeAtomic(path string, data []byte, mode os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode.Perm()); err != nil {
		return err
	}
	if err := os.Chmod(tmp, mode.Perm()); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
