package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/sublimetools/sublime/pkg/errors"
)

// scaffoldTemplate is the commented starter config. It must stay in sync
// with the Config schema; WriteScaffold decodes it before writing.
const scaffoldTemplate = `# sublime repository configuration.
# Values shown are the defaults; uncomment to override.

config_version = "1"

# Force a package manager instead of detecting from lockfiles.
# package_manager = "pnpm"

[workspace]
# patterns = ["packages/*", "apps/*"]
# exclude_patterns = ["**/examples/**"]
max_search_depth = 5

[changeset]
path = ".changesets"
history_path = ".changesets/history"
available_environments = ["dev", "staging", "production"]
# default_environments = ["dev"]

[version]
# "independent" versions each package on its own; "unified" moves every
# package to the highest planned version.
strategy = "independent"

[upgrade.registry]
default_registry = "https://registry.npmjs.org"
# [upgrade.registry.scoped]
# "@acme" = "https://npm.acme.dev"

[tasks]
command_timeout = 300
# max_concurrent = 8
# [tasks.deployment_tasks]
# staging = ["deploy-staging"]
# production = ["deploy-production"]

[daemon]
socket_path = "/tmp/sublime-daemon.sock"
pid_file = "/tmp/sublime-daemon.pid"

# [cache]
# redis_url = "redis://localhost:6379/0"
`

// WriteScaffold writes the commented starter repo.config.toml. It refuses
// to overwrite an existing file.
func WriteScaffold(path string) error {
	// The template must parse into the schema it documents.
	var check Config
	if _, err := toml.Decode(scaffoldTemplate, &check); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "config scaffold template is invalid")
	}

	if _, err := os.Stat(path); err == nil {
		return errors.New(errors.ErrCodeConfigInvalid, "%s already exists", path)
	}
	return os.WriteFile(path, []byte(scaffoldTemplate), 0644)
}
