package plan

import (
	"context"
	"os"

	"github.com/sublimetools/sublime/pkg/errors"
	"github.com/sublimetools/sublime/pkg/manifest"
	"github.com/sublimetools/sublime/pkg/workspace"
)

// snapshot is one manifest's pre-apply state, kept in memory for rollback.
type snapshot struct {
	path string
	data []byte
	mode os.FileMode
}

// Apply writes a plan's version changes and requirement updates to the
// manifests, in plan order, holding the workspace write lock.
//
// Apply is atomic: before the first write every affected manifest is
// snapshotted in memory, and any failure (including cancellation) restores
// all already-written files before returning.
func Apply(ctx context.Context, ws *workspace.Workspace, p *Plan) error {
	if p.Empty() {
		return nil
	}

	ws.Lock()
	defer ws.Unlock()

	snapshots := make([]snapshot, 0, len(p.Changes))
	for _, c := range p.Changes {
		path, ok := ws.ManifestPathOf(c.Name)
		if !ok {
			return errors.New(errors.ErrCodeInternal, "plan references unknown package %s", c.Name)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(errors.ErrCodeNotFound, err, "snapshotting %s", path)
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		snapshots = append(snapshots, snapshot{path: path, data: data, mode: info.Mode()})
	}

	store := ws.Store()
	for i, c := range p.Changes {
		if err := ctx.Err(); err != nil {
			restore(ws, snapshots[:i+1])
			return errors.Wrap(errors.ErrCodeCancelled, err, "apply cancelled at %s", c.Name)
		}

		path := snapshots[i].path
		lock := ws.PathLock(path)
		lock.Lock()
		err := applyChange(store, path, c)
		lock.Unlock()
		if err != nil {
			restore(ws, snapshots[:i+1])
			return err
		}
	}

	// Reflect new versions in the in-memory workspace.
	for _, c := range p.Changes {
		if c.To == nil {
			continue
		}
		if pkg, ok := ws.Get(c.Name); ok {
			pkg.Version = c.To
		}
	}
	return nil
}

func applyChange(store *manifest.Store, path string, c Change) error {
	if c.To != nil {
		if err := store.PatchVersion(path, c.To.String()); err != nil {
			return err
		}
	}
	for _, u := range c.Updates {
		if err := store.PatchDepRequirement(path, u.Section, u.Dependency, u.To); err != nil {
			return err
		}
	}
	return nil
}

// restore writes snapshots back, newest first. Restore failures are
// swallowed; the original apply error is what the caller needs to see.
func restore(ws *workspace.Workspace, snapshots []snapshot) {
	for i := len(snapshots) - 1; i >= 0; i-- {
		s := snapshots[i]
		lock := ws.PathLock(s.path)
		lock.Lock()
		_ = writeBack(s)
		lock.Unlock()
	}
}

func writeBack(s snapshot) error {
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, s.data, s.mode.Perm()); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
