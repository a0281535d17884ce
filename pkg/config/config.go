// Package config loads and merges engine configuration.
//
// Configuration comes from three layers, later layers overriding earlier
// ones: built-in defaults, a repo.config.{toml,yaml,json} file at the
// repository root, and SUBLIME_* environment variables. The merged result
// is an explicit typed record; nothing reads global state after Load.
package config

import (
	stderrors "errors"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/sublimetools/sublime/pkg/errors"
)

// Strategies for version planning.
const (
	StrategyIndependent = "independent"
	StrategyUnified     = "unified"
)

// Config is the merged engine configuration.
type Config struct {
	// ConfigVersion is the config file schema version (file key
	// "config_version"; the "version" table holds the planning strategy).
	ConfigVersion string `mapstructure:"config_version" toml:"config_version"`

	PackageManager string `mapstructure:"package_manager" toml:"package_manager"`

	Workspace WorkspaceConfig `mapstructure:"workspace" toml:"workspace"`
	Changeset ChangesetConfig `mapstructure:"changeset" toml:"changeset"`
	Version   VersionConfig   `mapstructure:"version" toml:"version"`
	Upgrade   UpgradeConfig   `mapstructure:"upgrade" toml:"upgrade"`
	Tasks     TasksConfig     `mapstructure:"tasks" toml:"tasks"`
	Daemon    DaemonConfig    `mapstructure:"daemon" toml:"daemon"`
	Cache     CacheConfig     `mapstructure:"cache" toml:"cache"`
}

type WorkspaceConfig struct {
	Patterns        []string `mapstructure:"patterns" toml:"patterns"`
	ExcludePatterns []string `mapstructure:"exclude_patterns" toml:"exclude_patterns"`
	MaxSearchDepth  int      `mapstructure:"max_search_depth" toml:"max_search_depth"`
}

type ChangesetConfig struct {
	Path                  string   `mapstructure:"path" toml:"path"`
	HistoryPath           string   `mapstructure:"history_path" toml:"history_path"`
	AvailableEnvironments []string `mapstructure:"available_environments" toml:"available_environments"`
	DefaultEnvironments   []string `mapstructure:"default_environments" toml:"default_environments"`
}

type VersionConfig struct {
	Strategy string `mapstructure:"strategy" toml:"strategy"`
}

type UpgradeConfig struct {
	Registry RegistryConfig `mapstructure:"registry" toml:"registry"`
}

type RegistryConfig struct {
	DefaultRegistry string            `mapstructure:"default_registry" toml:"default_registry"`
	Scoped          map[string]string `mapstructure:"scoped" toml:"scoped"`
}

type TasksConfig struct {
	DeploymentTasks map[string][]string `mapstructure:"deployment_tasks" toml:"deployment_tasks"`
	// CommandTimeout is per child process, in seconds.
	CommandTimeout int `mapstructure:"command_timeout" toml:"command_timeout"`
	MaxConcurrent  int `mapstructure:"max_concurrent" toml:"max_concurrent"`
}

type DaemonConfig struct {
	SocketPath string `mapstructure:"socket_path" toml:"socket_path"`
	PIDFile    string `mapstructure:"pid_file" toml:"pid_file"`
}

type CacheConfig struct {
	// RedisURL switches the registry response cache to redis when set.
	RedisURL string `mapstructure:"redis_url" toml:"redis_url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ConfigVersion: "1",
		Workspace: WorkspaceConfig{
			MaxSearchDepth: 5,
		},
		Changeset: ChangesetConfig{
			Path:                  ".changesets",
			HistoryPath:           ".changesets/history",
			AvailableEnvironments: []string{"dev", "staging", "production"},
		},
		Version: VersionConfig{Strategy: StrategyIndependent},
		Upgrade: UpgradeConfig{
			Registry: RegistryConfig{DefaultRegistry: "https://registry.npmjs.org"},
		},
		Tasks: TasksConfig{
			CommandTimeout: 300,
		},
		Daemon: DaemonConfig{
			SocketPath: "/tmp/sublime-daemon.sock",
			PIDFile:    "/tmp/sublime-daemon.pid",
		},
	}
}

// Merge overlays o onto c: every non-zero field of o wins. Slices and
// maps replace, they do not append.
func (c *Config) Merge(o *Config) {
	if o == nil {
		return
	}
	mergeString(&c.ConfigVersion, o.ConfigVersion)
	mergeString(&c.PackageManager, o.PackageManager)

	mergeSlice(&c.Workspace.Patterns, o.Workspace.Patterns)
	mergeSlice(&c.Workspace.ExcludePatterns, o.Workspace.ExcludePatterns)
	mergeInt(&c.Workspace.MaxSearchDepth, o.Workspace.MaxSearchDepth)

	mergeString(&c.Changeset.Path, o.Changeset.Path)
	mergeString(&c.Changeset.HistoryPath, o.Changeset.HistoryPath)
	mergeSlice(&c.Changeset.AvailableEnvironments, o.Changeset.AvailableEnvironments)
	mergeSlice(&c.Changeset.DefaultEnvironments, o.Changeset.DefaultEnvironments)

	mergeString(&c.Version.Strategy, o.Version.Strategy)
	mergeString(&c.Upgrade.Registry.DefaultRegistry, o.Upgrade.Registry.DefaultRegistry)
	if len(o.Upgrade.Registry.Scoped) > 0 {
		c.Upgrade.Registry.Scoped = o.Upgrade.Registry.Scoped
	}

	if len(o.Tasks.DeploymentTasks) > 0 {
		c.Tasks.DeploymentTasks = o.Tasks.DeploymentTasks
	}
	mergeInt(&c.Tasks.CommandTimeout, o.Tasks.CommandTimeout)
	mergeInt(&c.Tasks.MaxConcurrent, o.Tasks.MaxConcurrent)

	mergeString(&c.Daemon.SocketPath, o.Daemon.SocketPath)
	mergeString(&c.Daemon.PIDFile, o.Daemon.PIDFile)
	mergeString(&c.Cache.RedisURL, o.Cache.RedisURL)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeSlice(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = v
	}
}

// Load builds the effective configuration for a repository root:
// defaults, then repo.config.{toml,yaml,json} if present, then SUBLIME_*
// environment variables.
func Load(root string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("repo.config")
	v.AddConfigPath(root)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, errors.Wrap(errors.ErrCodeConfigInvalid, err, "reading config in %s", root)
		}
	} else {
		var file Config
		if err := v.Unmarshal(&file); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigInvalid, err, "parsing %s", v.ConfigFileUsed())
		}
		cfg.Merge(&file)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Environment variable names recognized by applyEnv.
const (
	EnvWorkspacePatterns = "SUBLIME_WORKSPACE_PATTERNS"
	EnvExcludePatterns   = "SUBLIME_EXCLUDE_PATTERNS"
	EnvMaxSearchDepth    = "SUBLIME_MAX_SEARCH_DEPTH"
	EnvCommandTimeout    = "SUBLIME_COMMAND_TIMEOUT"
	EnvMaxConcurrent     = "SUBLIME_MAX_CONCURRENT"
	EnvPackageManager    = "SUBLIME_PACKAGE_MANAGER"
)

// applyEnv overlays SUBLIME_* variables. List values are comma-separated.
func applyEnv(cfg *Config) error {
	lookup := viper.New()
	lookup.AutomaticEnv()

	if s := lookup.GetString(EnvWorkspacePatterns); s != "" {
		cfg.Workspace.Patterns = splitList(s)
	}
	if s := lookup.GetString(EnvExcludePatterns); s != "" {
		cfg.Workspace.ExcludePatterns = splitList(s)
	}
	if s := lookup.GetString(EnvPackageManager); s != "" {
		cfg.PackageManager = s
	}
	for _, iv := range []struct {
		name string
		dst  *int
	}{
		{EnvMaxSearchDepth, &cfg.Workspace.MaxSearchDepth},
		{EnvCommandTimeout, &cfg.Tasks.CommandTimeout},
		{EnvMaxConcurrent, &cfg.Tasks.MaxConcurrent},
	} {
		s := lookup.GetString(iv.name)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return errors.New(errors.ErrCodeConfigInvalid, "%s=%q is not an integer", iv.name, s)
		}
		*iv.dst = n
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects impossible configurations with the offending key named.
func (c *Config) Validate() error {
	if c.Version.Strategy != StrategyIndependent && c.Version.Strategy != StrategyUnified {
		return errors.New(errors.ErrCodeConfigInvalid, "version.strategy %q is not %q or %q",
			c.Version.Strategy, StrategyIndependent, StrategyUnified)
	}
	if c.Workspace.MaxSearchDepth <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "workspace.max_search_depth must be positive, got %d", c.Workspace.MaxSearchDepth)
	}
	if c.Tasks.CommandTimeout <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "tasks.command_timeout must be positive, got %d", c.Tasks.CommandTimeout)
	}
	for _, pattern := range c.Workspace.Patterns {
		if err := errors.ValidatePath(pattern); err != nil {
			return errors.Wrap(errors.ErrCodeConfigInvalid, err, "workspace.patterns")
		}
	}
	if url := c.Upgrade.Registry.DefaultRegistry; url != "" {
		if err := errors.ValidateURL(url); err != nil {
			return errors.Wrap(errors.ErrCodeConfigInvalid, err, "upgrade.registry.default_registry")
		}
	}
	for scope, url := range c.Upgrade.Registry.Scoped {
		if err := errors.ValidateURL(url); err != nil {
			return errors.Wrap(errors.ErrCodeConfigInvalid, err, "upgrade.registry.scoped[%s]", scope)
		}
	}
	for env := range c.Tasks.DeploymentTasks {
		if !contains(c.Changeset.AvailableEnvironments, env) {
			return errors.New(errors.ErrCodeConfigInvalid, "tasks.deployment_tasks names unknown environment %q", env)
		}
	}
	for _, env := range c.Changeset.DefaultEnvironments {
		if !contains(c.Changeset.AvailableEnvironments, env) {
			return errors.New(errors.ErrCodeConfigInvalid, "changeset.default_environments names unknown environment %q", env)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
