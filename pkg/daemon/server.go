package daemon

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/sublimetools/sublime/pkg/changeset"
	"github.com/sublimetools/sublime/pkg/errors"
	"github.com/sublimetools/sublime/pkg/graph"
	"github.com/sublimetools/sublime/pkg/workspace"
)

const (
	// drainTimeout bounds the wait for in-flight handlers on shutdown.
	drainTimeout = 5 * time.Second

	defaultChangesetDir = ".changesets"
)

// Options configures the daemon server.
type Options struct {
	SocketPath string
	PIDFile    string
	// ChangesetDir is the changeset directory relative to each monitored
	// repository. Empty means ".changesets".
	ChangesetDir string
	Logger       *log.Logger
}

// repo is one monitored repository. A filesystem event under its root
// marks it stale; the next request that needs the workspace rebuilds it.
type repo struct {
	name  string
	path  string
	ws    *workspace.Workspace
	stale bool
}

// Server is the daemon. Repository state has a single writer; status and
// other read-only requests share a read lock.
type Server struct {
	opts    Options
	started time.Time

	mu    sync.RWMutex
	repos map[string]*repo

	ln       net.Listener
	watcher  *fsnotify.Watcher
	wg       sync.WaitGroup
	shutdown chan struct{}
	downOnce sync.Once
}

// NewServer creates a daemon server.
func NewServer(opts Options) *Server {
	if opts.ChangesetDir == "" {
		opts.ChangesetDir = defaultChangesetDir
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Server{
		opts:     opts,
		repos:    make(map[string]*repo),
		shutdown: make(chan struct{}),
	}
}

// Start claims the socket and PID file. It fails when another daemon is
// already serving the socket; stale sockets and PID files are removed.
func (s *Server) Start() error {
	if conn, err := net.DialTimeout("unix", s.opts.SocketPath, time.Second); err == nil {
		conn.Close()
		return errors.New(errors.ErrCodeInternal, "daemon already running on %s", s.opts.SocketPath)
	}
	if _, err := os.Stat(s.opts.SocketPath); err == nil {
		// Socket exists but nothing answers.
		if pid := readPIDFile(s.opts.PIDFile); processAlive(pid) {
			s.opts.Logger.Warn("removing stale socket of unresponsive daemon", "pid", pid)
		}
		if err := os.Remove(s.opts.SocketPath); err != nil {
			return err
		}
	}
	if pid := readPIDFile(s.opts.PIDFile); pid != 0 && !processAlive(pid) {
		_ = os.Remove(s.opts.PIDFile)
	}

	if err := os.MkdirAll(filepath.Dir(s.opts.SocketPath), 0755); err != nil {
		return err
	}
	ln, err := net.Listen("unix", s.opts.SocketPath)
	if err != nil {
		return err
	}
	if err := writePIDFile(s.opts.PIDFile); err != nil {
		ln.Close()
		os.Remove(s.opts.SocketPath)
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		ln.Close()
		os.Remove(s.opts.SocketPath)
		os.Remove(s.opts.PIDFile)
		return err
	}

	s.ln = ln
	s.watcher = watcher
	s.started = time.Now()
	s.opts.Logger.Info("daemon listening", "socket", s.opts.SocketPath, "pid", os.Getpid())
	return nil
}

// Serve accepts connections until the context is cancelled or a Shutdown
// request arrives, then drains in-flight handlers and removes the socket
// and PID file.
func (s *Server) Serve(ctx context.Context) error {
	go s.watchLoop()
	go func() {
		select {
		case <-ctx.Done():
		case <-s.shutdown:
		}
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			break
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		s.opts.Logger.Warn("shutdown drain timed out", "timeout", drainTimeout)
	}

	s.watcher.Close()
	os.Remove(s.opts.SocketPath)
	os.Remove(s.opts.PIDFile)
	s.opts.Logger.Info("daemon stopped")
	return nil
}

// requestShutdown triggers a graceful stop exactly once.
func (s *Server) requestShutdown() {
	s.downOnce.Do(func() { close(s.shutdown) })
}

// handleConn serves one request/response exchange. Malformed frames drop
// the connection without a response.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	var req Request
	if err := readFrame(conn, &req); err != nil {
		s.opts.Logger.Warn("dropping connection", "err", err)
		return
	}
	resp := s.handle(&req)
	if err := writeFrame(conn, resp); err != nil {
		s.opts.Logger.Warn("writing response", "err", err)
	}
	if req.Type == TypeShutdown {
		s.requestShutdown()
	}
}

func (s *Server) handle(req *Request) *Response {
	switch req.Type {
	case TypeStatus:
		return &Response{Success: true, Status: s.status()}
	case TypeAddRepository:
		return s.addRepository(req.Path, req.Name)
	case TypeRemoveRepository:
		return s.removeRepository(req.Identifier)
	case TypeCommand:
		return s.command(req.Command, req.Args)
	case TypeShutdown:
		return &Response{Success: true, Message: "shutting down"}
	default:
		return &Response{Success: false, Error: "unknown message type " + req.Type}
	}
}

func (s *Server) status() *StatusInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := &StatusInfo{
		Running:       true,
		PID:           os.Getpid(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	for _, name := range s.repoNamesLocked() {
		r := s.repos[name]
		count := 0
		if r.ws != nil {
			count = len(r.ws.Packages)
		}
		info.MonitoredRepos = append(info.MonitoredRepos, RepoInfo{
			Name:     r.name,
			Path:     r.path,
			Packages: count,
			Stale:    r.stale,
		})
	}
	return info
}

func (s *Server) addRepository(path, name string) *Response {
	abs, err := filepath.Abs(path)
	if err != nil {
		return &Response{Success: false, Error: err.Error()}
	}
	ws, err := workspace.Load(abs, workspace.LoadOptions{})
	if err != nil {
		return &Response{Success: false, Error: err.Error()}
	}
	if name == "" {
		name = filepath.Base(abs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.repos[name]; exists {
		return &Response{Success: false, Error: "repository " + name + " already monitored"}
	}
	s.repos[name] = &repo{name: name, path: abs, ws: ws}

	for _, dir := range []string{abs, filepath.Join(abs, s.opts.ChangesetDir)} {
		if err := s.watcher.Add(dir); err != nil {
			s.opts.Logger.Warn("watch failed", "dir", dir, "err", err)
		}
	}
	s.opts.Logger.Info("monitoring repository", "name", name, "path", abs, "packages", len(ws.Packages))
	return &Response{Success: true, Message: "monitoring " + name}
}

func (s *Server) removeRepository(identifier string) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, r := range s.repos {
		if name != identifier && r.path != identifier {
			continue
		}
		delete(s.repos, name)
		s.watcher.Remove(r.path)
		s.watcher.Remove(filepath.Join(r.path, s.opts.ChangesetDir))
		s.opts.Logger.Info("stopped monitoring", "name", name)
		return &Response{Success: true, Message: "removed " + name}
	}
	return &Response{Success: false, Error: "no monitored repository matches " + identifier}
}

func (s *Server) command(name string, args []string) *Response {
	switch name {
	case CmdPing:
		return &Response{Success: true, Message: "pong"}
	case CmdUptime:
		return dataResponse(int64(time.Since(s.started).Seconds()))
	case CmdListRepos:
		s.mu.RLock()
		names := s.repoNamesLocked()
		s.mu.RUnlock()
		return dataResponse(names)
	case CmdGraphSummary:
		return s.graphSummary()
	case CmdChangesetStatus:
		return s.changesetStatus()
	default:
		return &Response{Success: false, Error: "unknown command " + name}
	}
}

// graphSummary reports node, edge, and cycle counts per repository,
// rebuilding stale workspaces first.
func (s *Server) graphSummary() *Response {
	type summary struct {
		Packages int `json:"packages"`
		Edges    int `json:"edges"`
		Cycles   int `json:"cycles"`
	}
	out := make(map[string]summary)
	for _, name := range s.repoNames() {
		ws, err := s.freshWorkspace(name)
		if err != nil {
			return &Response{Success: false, Error: err.Error()}
		}
		g := graph.Build(ws)
		out[name] = summary{
			Packages: g.NodeCount(),
			Edges:    g.EdgeCount(),
			Cycles:   len(g.CycleGroups()),
		}
	}
	return dataResponse(out)
}

// changesetStatus lists active changeset branches per repository.
func (s *Server) changesetStatus() *Response {
	out := make(map[string][]string)
	for _, name := range s.repoNames() {
		s.mu.RLock()
		r, ok := s.repos[name]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		store := changeset.NewStore(filepath.Join(r.path, s.opts.ChangesetDir), "")
		sets, err := store.ListActive()
		if err != nil {
			return &Response{Success: false, Error: err.Error()}
		}
		branches := make([]string, 0, len(sets))
		for _, cs := range sets {
			branches = append(branches, cs.Branch)
		}
		out[name] = branches
	}
	return dataResponse(out)
}

// freshWorkspace returns the repository's workspace, rebuilding it when a
// filesystem event marked it stale.
func (s *Server) freshWorkspace(name string) (*workspace.Workspace, error) {
	s.mu.RLock()
	r, ok := s.repos[name]
	stale := ok && (r.stale || r.ws == nil)
	s.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "repository %s not monitored", name)
	}
	if !stale {
		return r.ws, nil
	}

	ws, err := workspace.Load(r.path, workspace.LoadOptions{})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	r.ws = ws
	r.stale = false
	s.mu.Unlock()
	return ws, nil
}

func (s *Server) repoNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repoNamesLocked()
}

func (s *Server) repoNamesLocked() []string {
	names := make([]string, 0, len(s.repos))
	for name := range s.repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// watchLoop marks a repository stale when anything under its root changes.
func (s *Server) watchLoop() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.markStale(ev.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.opts.Logger.Warn("watcher error", "err", err)
		}
	}
}

func (s *Server) markStale(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.repos {
		if path == r.path || strings.HasPrefix(path, r.path+string(filepath.Separator)) {
			r.stale = true
		}
	}
}

func dataResponse(v any) *Response {
	data, err := json.Marshal(v)
	if err != nil {
		return &Response{Success: false, Error: err.Error()}
	}
	return &Response{Success: true, Data: data}
}
