package cli

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sublimetools/sublime/pkg/cache"
	"github.com/sublimetools/sublime/pkg/changeset"
	"github.com/sublimetools/sublime/pkg/config"
	"github.com/sublimetools/sublime/pkg/httputil"
	"github.com/sublimetools/sublime/pkg/pm"
	"github.com/sublimetools/sublime/pkg/registry"
	"github.com/sublimetools/sublime/pkg/task"
	"github.com/sublimetools/sublime/pkg/workspace"
)

// registryCacheTTL bounds how long packument responses are reused.
const registryCacheTTL = 15 * time.Minute

// app bundles the per-invocation collaborators every command needs.
type app struct {
	Root   string
	Config *config.Config
	Logger *log.Logger
}

// loadApp resolves the repository root and loads the effective config.
func loadApp(ctx context.Context) (*app, error) {
	root, err := filepath.Abs(repoPathFromContext(ctx))
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	return &app{Root: root, Config: cfg, Logger: loggerFromContext(ctx)}, nil
}

// workspace loads the workspace with the configured discovery options.
// A configured package manager overrides detection.
func (a *app) workspace() (*workspace.Workspace, error) {
	ws, err := workspace.Load(a.Root, workspace.LoadOptions{
		Discover: workspace.DiscoverOptions{
			FallbackPatterns: a.Config.Workspace.Patterns,
			ExtraExcludes:    a.Config.Workspace.ExcludePatterns,
			MaxDepth:         a.Config.Workspace.MaxSearchDepth,
		},
		Logger: a.Logger,
	})
	if err != nil {
		return nil, err
	}
	if a.Config.PackageManager != "" {
		ws.Manager = pm.Manager(a.Config.PackageManager)
	}
	return ws, nil
}

// changesetStore opens the configured changeset directories. Relative
// paths are anchored at the repository root.
func (a *app) changesetStore() *changeset.Store {
	return changeset.NewStore(
		a.anchor(a.Config.Changeset.Path),
		a.anchor(a.Config.Changeset.HistoryPath),
	)
}

func (a *app) anchor(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(a.Root, path)
}

// registryClient builds the npm registry client with the configured
// cache backend: redis when cache.redis_url is set, a file cache under
// the user cache directory otherwise.
func (a *app) registryClient(ctx context.Context) (*registry.Client, error) {
	var backend cache.Cache
	if url := a.Config.Cache.RedisURL; url != "" {
		c, err := cache.NewRedisCache(ctx, url)
		if err != nil {
			return nil, err
		}
		backend = c
	} else {
		dir, err := registryCacheDir()
		if err != nil {
			return nil, err
		}
		c, err := cache.NewFileCache(dir)
		if err != nil {
			return nil, err
		}
		backend = c
	}

	return registry.NewClient(registry.Options{
		URL:    a.Config.Upgrade.Registry.DefaultRegistry,
		Scoped: a.Config.Upgrade.Registry.Scoped,
		Cache:  httputil.NewResponseCache(backend, registryCacheTTL),
	}), nil
}

// taskOptions maps task-related config to runner options.
func (a *app) taskOptions() task.Options {
	return task.Options{
		Workers: a.Config.Tasks.MaxConcurrent,
		Timeout: time.Duration(a.Config.Tasks.CommandTimeout) * time.Second,
		Logger:  a.Logger,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// registryCacheDir is where cached registry responses live.
func registryCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "sublime", "registry"), nil
}
