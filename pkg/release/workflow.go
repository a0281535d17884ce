// Package release orchestrates the end-to-end release sequence: change
// detection, changeset application, release tasks, deployment, and
// changelog generation.
package release

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sublimetools/sublime/pkg/changeset"
	"github.com/sublimetools/sublime/pkg/errors"
	"github.com/sublimetools/sublime/pkg/gitx"
	"github.com/sublimetools/sublime/pkg/graph"
	"github.com/sublimetools/sublime/pkg/observability"
	"github.com/sublimetools/sublime/pkg/plan"
	"github.com/sublimetools/sublime/pkg/task"
	"github.com/sublimetools/sublime/pkg/workspace"
)

// DefaultReleaseTasks run across affected packages before deployment.
var DefaultReleaseTasks = []string{"build", "test", "lint"}

// Options configures a workflow run.
type Options struct {
	// DryRun computes the plan and runs validation tasks but skips
	// manifest writes, deployment, and changelog generation.
	DryRun bool
	// Force continues past task failures and version conflicts.
	Force bool
	// Environments to deploy to, in order. Empty means no deployment.
	Environments []string
	// DeploymentTasks maps an environment to the tasks run when
	// deploying to it.
	DeploymentTasks map[string][]string
	// ReleaseTasks override DefaultReleaseTasks when non-empty.
	ReleaseTasks []string
	// AppliedBy is recorded in archived changesets.
	AppliedBy string
	// EnvironmentCatalog lists the environments changesets may target.
	// Active changesets are validated against it before planning.
	EnvironmentCatalog []string

	Strategy          plan.Strategy
	NoHarmonizeCycles bool

	// Workers and Timeout are forwarded to the task runner.
	Workers int
	Timeout time.Duration

	Logger *log.Logger
	Hooks  *observability.Registry
}

// PreReleaseHook runs before any manifest is touched.
type PreReleaseHook func(ctx context.Context, summary *gitx.ChangeSummary) error

// PostChangesetHook runs after the version plan has been applied.
type PostChangesetHook func(ctx context.Context, p *plan.Plan) error

// PostReleaseHook runs after the whole sequence.
type PostReleaseHook func(ctx context.Context, res *Result) error

// Step is one stage of the release sequence as reported in the result.
type Step struct {
	Name    string
	Skipped bool
	Notes   []string
}

// Result reports what a workflow run did, or in dry-run mode what it
// would have done.
type Result struct {
	DryRun      bool
	Baseline    string
	Head        string
	Summary     *gitx.ChangeSummary
	Plan        *plan.Plan
	Archived    []string
	TaskResults []task.Result
	Deployed    []string
	Changelogs  []string
	Warnings    []string
	Steps       []Step
}

// Workflow runs the release sequence over explicit collaborators.
type Workflow struct {
	ws    *workspace.Workspace
	g     *graph.Graph
	git   *gitx.Git
	store *changeset.Store
	opts  Options

	preRelease    []PreReleaseHook
	postChangeset []PostChangesetHook
	postRelease   []PostReleaseHook
}

// New creates a release workflow.
func New(ws *workspace.Workspace, g *graph.Graph, git *gitx.Git, store *changeset.Store, opts Options) *Workflow {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if len(opts.ReleaseTasks) == 0 {
		opts.ReleaseTasks = DefaultReleaseTasks
	}
	return &Workflow{ws: ws, g: g, git: git, store: store, opts: opts}
}

// OnPreRelease registers a hook called with the change summary before any
// manifest is modified. A hook error aborts the release.
func (w *Workflow) OnPreRelease(h PreReleaseHook) { w.preRelease = append(w.preRelease, h) }

// OnPostChangeset registers a hook called after the version plan applies.
func (w *Workflow) OnPostChangeset(h PostChangesetHook) { w.postChangeset = append(w.postChangeset, h) }

// OnPostRelease registers a hook called with the final result.
func (w *Workflow) OnPostRelease(h PostReleaseHook) { w.postRelease = append(w.postRelease, h) }

// Run executes the release sequence. Every stage is fatal on error except
// changelog generation, which degrades to a warning.
func (w *Workflow) Run(ctx context.Context) (*Result, error) {
	res := &Result{DryRun: w.opts.DryRun}

	type stage struct {
		name string
		skip bool
		// dry reports what the skipped stage would have done.
		dry func(context.Context, *Result) ([]string, error)
		fn  func(context.Context, *Result) error
	}
	stages := []stage{
		{name: "detect-changes", fn: w.detectChanges},
		{name: "pre-release-hooks", fn: w.runPreReleaseHooks},
		{name: "apply-changesets", skip: w.opts.DryRun, dry: w.dryApplyChangesets, fn: w.applyChangesets},
		{name: "post-changeset-hooks", fn: w.runPostChangesetHooks},
		{name: "release-tasks", fn: w.runReleaseTasks},
		{name: "deploy", skip: w.opts.DryRun, dry: w.dryDeploy, fn: w.deploy},
		{name: "changelogs", skip: w.opts.DryRun, dry: w.dryChangelogs, fn: w.writeChangelogs},
		{name: "post-release-hooks", fn: w.runPostReleaseHooks},
	}

	for _, st := range stages {
		if st.skip {
			step := Step{Name: st.name, Skipped: true}
			if st.dry != nil {
				notes, err := st.dry(ctx, res)
				if err != nil {
					return res, err
				}
				step.Notes = notes
			}
			res.Steps = append(res.Steps, step)
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, errors.Wrap(errors.ErrCodeCancelled, err, "release cancelled before %s", st.name)
		}
		w.opts.Hooks.Release().OnStepStart(ctx, st.name)
		start := time.Now()
		err := st.fn(ctx, res)
		w.opts.Hooks.Release().OnStepComplete(ctx, st.name, time.Since(start), err)
		if err != nil {
			return res, err
		}
		res.Steps = append(res.Steps, Step{Name: st.name})
		w.opts.Logger.Debug("release step done", "step", st.name, "duration", time.Since(start))
	}
	return res, nil
}

// detectChanges resolves the baseline (last tag, falling back to the
// initial commit) and summarizes changes up to HEAD. No changes is a
// warning, not an error.
func (w *Workflow) detectChanges(ctx context.Context, res *Result) error {
	baseline, err := w.git.LastTag(ctx)
	if err != nil {
		return err
	}
	if baseline == "" {
		baseline, err = w.git.InitialCommit(ctx)
		if err != nil {
			return err
		}
	}
	head, err := w.git.CurrentSHA(ctx)
	if err != nil {
		return err
	}

	tracker := gitx.NewTracker(w.git, w.ws)
	summary, err := tracker.Changes(ctx, baseline, head)
	if err != nil {
		return err
	}
	res.Baseline = baseline
	res.Head = head
	res.Summary = summary
	if len(summary.ChangedFiles) == 0 {
		res.Warnings = append(res.Warnings, "no changes detected since "+baseline)
		w.opts.Logger.Warn("no changes detected", "baseline", baseline)
	}
	return nil
}

func (w *Workflow) runPreReleaseHooks(ctx context.Context, res *Result) error {
	for _, h := range w.preRelease {
		if err := h(ctx, res.Summary); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "pre-release hook failed")
		}
	}
	return nil
}

// activeChangesets lists the pending changesets and validates each one
// against the workspace and the environment catalog. An invalid changeset
// aborts the release; with Force it is left active with a warning so a
// broken changeset is never consumed by accident.
func (w *Workflow) activeChangesets(res *Result) ([]*changeset.Changeset, error) {
	sets, err := w.store.ListActive()
	if err != nil {
		return nil, err
	}
	valid := make([]*changeset.Changeset, 0, len(sets))
	for _, cs := range sets {
		if err := changeset.Validate(cs, w.opts.EnvironmentCatalog, w.ws); err != nil {
			if !w.opts.Force {
				return nil, err
			}
			res.Warnings = append(res.Warnings, "leaving invalid changeset behind: "+err.Error())
			w.opts.Logger.Warn("invalid changeset left active", "branch", cs.Branch, "err", err)
			continue
		}
		valid = append(valid, cs)
	}
	return valid, nil
}

// applyChangesets consumes every active changeset: plans the version
// changes, applies them to manifests, and archives the changesets with
// release metadata.
func (w *Workflow) applyChangesets(ctx context.Context, res *Result) error {
	sets, err := w.activeChangesets(res)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		res.Warnings = append(res.Warnings, "no pending changesets")
		return nil
	}

	planner := plan.NewPlanner(w.ws, w.g)
	p, err := planner.Plan(sets, plan.Options{
		Strategy:          w.opts.Strategy,
		NoHarmonizeCycles: w.opts.NoHarmonizeCycles,
		Force:             w.opts.Force,
	})
	if err != nil {
		return err
	}
	res.Plan = p
	if p.Empty() {
		return nil
	}

	if err := plan.Apply(ctx, w.ws, p); err != nil {
		return err
	}
	w.opts.Logger.Info("version plan applied", "changes", len(p.Changes))

	info := changeset.ReleaseInfo{
		AppliedAt: time.Now().UTC(),
		AppliedBy: w.opts.AppliedBy,
		GitCommit: res.Head,
	}
	for _, cs := range sets {
		csInfo := info
		csInfo.Versions = make(map[string]string, len(cs.Packages))
		for _, name := range cs.Packages {
			if v, ok := p.Version(name); ok {
				csInfo.Versions[name] = v.String()
			}
		}
		if _, err := w.store.Archive(cs.Branch, csInfo); err != nil {
			return err
		}
		res.Archived = append(res.Archived, cs.Branch)
	}
	return nil
}

// dryApplyChangesets computes the version plan without touching disk so
// the dry-run report shows the would-be versions. Planning errors (for
// example version conflicts) still abort, matching the real stage.
func (w *Workflow) dryApplyChangesets(ctx context.Context, res *Result) ([]string, error) {
	sets, err := w.activeChangesets(res)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return []string{"no pending changesets"}, nil
	}

	planner := plan.NewPlanner(w.ws, w.g)
	p, err := planner.Plan(sets, plan.Options{
		Strategy:          w.opts.Strategy,
		NoHarmonizeCycles: w.opts.NoHarmonizeCycles,
		Force:             w.opts.Force,
	})
	if err != nil {
		return nil, err
	}
	res.Plan = p

	notes := make([]string, 0, len(p.Changes)+len(sets))
	for _, c := range p.Changes {
		if c.To == nil {
			continue
		}
		notes = append(notes, "would set "+c.Name+" to "+c.To.String())
	}
	for _, cs := range sets {
		notes = append(notes, "would archive changeset "+cs.Branch)
	}
	return notes, nil
}

func (w *Workflow) dryDeploy(_ context.Context, _ *Result) ([]string, error) {
	var notes []string
	for _, env := range w.opts.Environments {
		for _, name := range w.opts.DeploymentTasks[env] {
			notes = append(notes, "would run "+name+" for "+env)
		}
	}
	return notes, nil
}

func (w *Workflow) dryChangelogs(_ context.Context, res *Result) ([]string, error) {
	if res.Plan == nil {
		return nil, nil
	}
	var notes []string
	for _, c := range res.Plan.Changes {
		if c.To == nil {
			continue
		}
		notes = append(notes, "would update changelog for "+c.Name)
	}
	return notes, nil
}

func (w *Workflow) runPostChangesetHooks(ctx context.Context, res *Result) error {
	for _, h := range w.postChangeset {
		if err := h(ctx, res.Plan); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "post-changeset hook failed")
		}
	}
	return nil
}

// runReleaseTasks runs the configured validation tasks across affected
// packages. Failures abort unless forced.
func (w *Workflow) runReleaseTasks(ctx context.Context, res *Result) error {
	packages := w.affectedPackages(res)
	if len(packages) == 0 {
		return nil
	}
	runner := w.newRunner()
	for _, name := range w.opts.ReleaseTasks {
		results, err := runner.Run(ctx, name, packages)
		if err != nil {
			return errors.Wrap(errors.ErrCodeCancelled, err, "release task %s interrupted", name)
		}
		res.TaskResults = append(res.TaskResults, results...)
		if task.Failed(results) {
			if w.opts.Force {
				res.Warnings = append(res.Warnings, "task "+name+" failed, continuing (force)")
				continue
			}
			return errors.New(errors.ErrCodeTaskFailed, "release task %s failed", name)
		}
	}
	return nil
}

// deploy runs each environment's deployment tasks in the requested order.
// The first failing environment aborts the rest.
func (w *Workflow) deploy(ctx context.Context, res *Result) error {
	if len(w.opts.Environments) == 0 {
		return nil
	}
	packages := w.affectedPackages(res)
	runner := w.newRunner()
	for _, env := range w.opts.Environments {
		for _, name := range w.opts.DeploymentTasks[env] {
			results, err := runner.Run(ctx, name, packages)
			if err != nil {
				return errors.Wrap(errors.ErrCodeCancelled, err, "deployment to %s interrupted", env)
			}
			res.TaskResults = append(res.TaskResults, results...)
			if task.Failed(results) {
				return errors.New(errors.ErrCodeTaskFailed, "deployment task %s failed for %s", name, env)
			}
		}
		res.Deployed = append(res.Deployed, env)
		w.opts.Logger.Info("deployed", "environment", env)
	}
	return nil
}

// writeChangelogs is non-fatal: failures degrade to warnings.
func (w *Workflow) writeChangelogs(ctx context.Context, res *Result) error {
	if res.Plan == nil || res.Plan.Empty() {
		return nil
	}
	written, err := generateChangelogs(ctx, w.git, w.ws, res.Plan, res.Baseline, res.Head)
	res.Changelogs = written
	if err != nil {
		res.Warnings = append(res.Warnings, "changelog generation failed: "+err.Error())
		w.opts.Logger.Warn("changelog generation failed", "err", err)
	}
	return nil
}

func (w *Workflow) runPostReleaseHooks(ctx context.Context, res *Result) error {
	for _, h := range w.postRelease {
		if err := h(ctx, res); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "post-release hook failed")
		}
	}
	return nil
}

// affectedPackages prefers the plan's change list and falls back to the
// packages touched since the baseline.
func (w *Workflow) affectedPackages(res *Result) []string {
	if res.Plan != nil && !res.Plan.Empty() {
		names := make([]string, 0, len(res.Plan.Changes))
		for _, c := range res.Plan.Changes {
			names = append(names, c.Name)
		}
		return names
	}
	if res.Summary != nil {
		return res.Summary.AffectedPackages
	}
	return nil
}

func (w *Workflow) newRunner() *task.Runner {
	return task.NewRunner(w.ws, w.g, task.Options{
		Workers: w.opts.Workers,
		Timeout: w.opts.Timeout,
		Logger:  w.opts.Logger,
		Hooks:   w.opts.Hooks,
	})
}
