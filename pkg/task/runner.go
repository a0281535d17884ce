// Package task executes named package scripts across the workspace.
//
// Scheduling is dependency-aware: a package's task starts only after the
// same task has succeeded for every graph dependency inside the requested
// set. Execution fans out over a bounded worker pool; within each
// scheduling round eligible packages are dispatched in lexicographic
// order. A failure marks all transitive dependents as skipped.
package task

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sublimetools/sublime/pkg/graph"
	"github.com/sublimetools/sublime/pkg/observability"
	"github.com/sublimetools/sublime/pkg/pm"
	"github.com/sublimetools/sublime/pkg/workspace"
)

// Status is a task outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusTimeout Status = "timeout"
)

// Result records one package's task execution.
type Result struct {
	Package    string
	Task       string
	Status     Status
	Duration   time.Duration
	ExitCode   int
	StderrTail string
}

const (
	// DefaultTimeout bounds each child process.
	DefaultTimeout = 300 * time.Second

	stderrTailSize = 2048

	retryAttempts = 3
	retryBase     = time.Second
)

// networkTasks are retried on failure with exponential backoff.
var networkTasks = map[string]bool{
	"install": true,
	"publish": true,
}

// Options tunes the runner.
type Options struct {
	// Workers caps parallel child processes. 0 means the CPU count.
	Workers int
	// Timeout bounds each command. 0 means DefaultTimeout.
	Timeout time.Duration
	// Env is appended to each child's environment.
	Env []string
	// Logger receives per-task progress. Nil uses log.Default().
	Logger *log.Logger
	// Hooks receives task lifecycle events. Nil disables them.
	Hooks *observability.Registry
}

// Runner executes tasks over the workspace's dependency order.
type Runner struct {
	ws   *workspace.Workspace
	g    *graph.Graph
	opts Options

	// execFn runs one package's task; replaced in tests.
	execFn func(ctx context.Context, task, name string) Result
}

// NewRunner creates a task runner.
func NewRunner(ws *workspace.Workspace, g *graph.Graph, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	r := &Runner{ws: ws, g: g, opts: opts}
	r.execFn = r.execute
	return r
}

// Run executes task for every named package and returns all results.
// Packages without the script are reported as skipped. The error is
// non-nil only for infrastructure failures (cancellation); task failures
// are expressed through result statuses, and the caller decides whether
// to abort.
func (r *Runner) Run(ctx context.Context, task string, packages []string) ([]Result, error) {
	set := make(map[string]bool, len(packages))
	for _, name := range packages {
		if r.ws.Has(name) {
			set[name] = true
		}
	}
	if len(set) == 0 {
		return nil, nil
	}

	s := &scheduler{
		runner:  r,
		task:    task,
		set:     set,
		status:  make(map[string]Status, len(set)),
		jobs:    make(chan string, len(set)),
		results: make(chan Result, len(set)),
	}
	return s.run(ctx)
}

type scheduler struct {
	runner *Runner
	task   string
	set    map[string]bool

	status  map[string]Status // terminal statuses only
	jobs    chan string
	results chan Result
	wg      sync.WaitGroup

	dispatched map[string]bool
	out        []Result
}

func (s *scheduler) run(ctx context.Context) ([]Result, error) {
	s.dispatched = make(map[string]bool, len(s.set))

	for range s.runner.opts.Workers {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	defer func() {
		close(s.jobs)
		s.wg.Wait()
	}()

	s.dispatchEligible()
	for len(s.out) < len(s.set) {
		select {
		case res := <-s.results:
			s.record(res)
			s.dispatchEligible()
		case <-ctx.Done():
			return s.out, ctx.Err()
		}
	}

	sort.Slice(s.out, func(i, j int) bool { return s.out[i].Package < s.out[j].Package })
	return s.out, nil
}

func (s *scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for name := range s.jobs {
		s.runner.opts.Hooks.Task().OnTaskStart(ctx, name, s.task)
		res := s.runner.execFn(ctx, s.task, name)
		s.runner.opts.Hooks.Task().OnTaskComplete(ctx, name, s.task, string(res.Status), res.Duration)
		s.results <- res
	}
}

// dispatchEligible queues every undispatched package whose in-set
// dependencies have succeeded, in lexicographic order. Dependencies in the
// same cycle group are treated as satisfied; a cycle would otherwise never
// start.
func (s *scheduler) dispatchEligible() {
	var eligible []string
	for name := range s.set {
		if s.dispatched[name] || s.status[name] != "" {
			continue
		}
		if s.depsSatisfied(name) {
			eligible = append(eligible, name)
		}
	}
	sort.Strings(eligible)
	for _, name := range eligible {
		s.dispatched[name] = true
		s.jobs <- name
	}
}

func (s *scheduler) depsSatisfied(name string) bool {
	for _, dep := range s.runner.g.DependenciesOf(name) {
		if !s.set[dep] || s.runner.g.InSameCycleGroup(name, dep) {
			continue
		}
		// A skipped dependency counts as satisfied: missing scripts have
		// nothing to run, and cascade-skipped dependencies already marked
		// this package as skipped too.
		if st := s.status[dep]; st != StatusSuccess && st != StatusSkipped {
			return false
		}
	}
	return true
}

// record stores a terminal result and cascades skips to the transitive
// dependents of a failed or timed-out package.
func (s *scheduler) record(res Result) {
	s.status[res.Package] = res.Status
	s.out = append(s.out, res)

	if res.Status != StatusFailed && res.Status != StatusTimeout {
		return
	}
	for _, dep := range s.runner.g.DependentsOf(res.Package) {
		if !s.set[dep] || s.status[dep] != "" || s.dispatched[dep] {
			continue
		}
		s.status[dep] = StatusSkipped
		s.out = append(s.out, Result{
			Package: dep,
			Task:    res.Task,
			Status:  StatusSkipped,
		})
	}
}

// execute runs one package's script as a child process with the package
// directory as CWD. Network-tagged tasks retry with exponential backoff.
func (r *Runner) execute(ctx context.Context, task, name string) Result {
	pkg, _ := r.ws.Get(name)
	if _, ok := pkg.Scripts[task]; !ok {
		return Result{Package: name, Task: task, Status: StatusSkipped}
	}

	attempts := 1
	if networkTasks[task] {
		attempts = retryAttempts
	}

	var res Result
	delay := retryBase
	for attempt := range attempts {
		if attempt > 0 {
			r.opts.Logger.Warn("retrying task", "package", name, "task", task, "attempt", attempt+1)
			select {
			case <-ctx.Done():
				return res
			case <-time.After(delay):
				delay *= 2
			}
		}
		res = r.executeOnce(ctx, task, name, pkg.Dir)
		if res.Status == StatusSuccess || res.Status == StatusTimeout {
			break
		}
	}
	return res
}

func (r *Runner) executeOnce(ctx context.Context, task, name, dir string) Result {
	cctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	manager := r.ws.Manager
	if manager == pm.Unknown {
		manager = pm.NPM
	}
	cmd := exec.CommandContext(cctx, string(manager), "run", task)
	cmd.Dir = dir
	if len(r.opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Package:    name,
		Task:       task,
		Status:     StatusSuccess,
		Duration:   time.Since(start),
		StderrTail: tail(stderr.Bytes()),
	}

	switch {
	case cctx.Err() == context.DeadlineExceeded:
		res.Status = StatusTimeout
		res.ExitCode = -1
		r.opts.Logger.Warn("task timed out", "package", name, "task", task, "timeout", r.opts.Timeout)
	case err != nil:
		res.Status = StatusFailed
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
		}
		r.opts.Logger.Warn("task failed", "package", name, "task", task, "exit", res.ExitCode)
	default:
		r.opts.Logger.Debug("task finished", "package", name, "task", task, "duration", res.Duration)
	}
	return res
}

func tail(b []byte) string {
	if len(b) > stderrTailSize {
		b = b[len(b)-stderrTailSize:]
	}
	return string(bytes.TrimSpace(b))
}

// Failed reports whether any result is a failure or timeout.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Status == StatusFailed || r.Status == StatusTimeout {
			return true
		}
	}
	return false
}
