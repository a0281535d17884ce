package daemon

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sublimetools/sublime/pkg/errors"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := Request{Type: TypeCommand, Command: CmdPing, Args: []string{"x"}}
	if err := writeFrame(&buf, req); err != nil {
		t.Fatalf("writeFrame() error = %v", err)
	}

	var got Request
	if err := readFrame(&buf, &got); err != nil {
		t.Fatalf("readFrame() error = %v", err)
	}
	if got.Type != req.Type || got.Command != req.Command || len(got.Args) != 1 {
		t.Errorf("round trip = %+v, want %+v", got, req)
	}
}

func TestReadFrame_RejectsOversizedPrefix(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], MaxFrameSize+1)
	buf.Write(prefix[:])

	var v Request
	err := readFrame(&buf, &v)
	if !errors.Is(err, errors.ErrCodeInvalidMessage) {
		t.Errorf("readFrame(oversized) error = %v, want INVALID_MESSAGE", err)
	}
}

func TestReadFrame_RejectsGarbageBody(t *testing.T) {
	var buf bytes.Buffer
	body := []byte("{not json")
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	buf.Write(prefix[:])
	buf.Write(body)

	var v Request
	if err := readFrame(&buf, &v); !errors.Is(err, errors.ErrCodeInvalidMessage) {
		t.Errorf("readFrame(garbage) error = %v, want INVALID_MESSAGE", err)
	}
}

// startServer runs a daemon on a throwaway socket and returns a client
// plus a done channel that closes when Serve returns.
func startServer(t *testing.T) (*Client, *Server, chan struct{}) {
	t.Helper()
	dir := t.TempDir()
	s := NewServer(Options{
		SocketPath: filepath.Join(dir, "d.sock"),
		PIDFile:    filepath.Join(dir, "d.pid"),
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	done := make(chan struct{})
	go func() {
		s.Serve(context.Background())
		close(done)
	}()
	t.Cleanup(func() {
		s.requestShutdown()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})
	return NewClient(s.opts.SocketPath), s, done
}

func writeRepoFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"package.json":            `{"name": "root", "private": true, "workspaces": ["packages/*"]}`,
		"packages/a/package.json": `{"name": "a", "version": "1.0.0"}`,
	}
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestServer_EndToEnd(t *testing.T) {
	client, _, done := startServer(t)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !status.Running || status.PID != os.Getpid() || len(status.MonitoredRepos) != 0 {
		t.Errorf("Status() = %+v, want running with no repos", status)
	}

	repoDir := writeRepoFixture(t)
	if err := client.AddRepository(repoDir, "demo"); err != nil {
		t.Fatalf("AddRepository() error = %v", err)
	}
	if err := client.AddRepository(repoDir, "demo"); err == nil {
		t.Error("AddRepository() accepted a duplicate name")
	}

	resp, err := client.Command(CmdPing, nil)
	if err != nil || !resp.Success || resp.Message != "pong" {
		t.Errorf("ping = %+v, %v, want pong", resp, err)
	}

	resp, err = client.Command(CmdListRepos, nil)
	if err != nil {
		t.Fatalf("list-repos error = %v", err)
	}
	var names []string
	if err := json.Unmarshal(resp.Data, &names); err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "demo" {
		t.Errorf("list-repos = %v, want [demo]", names)
	}

	resp, err = client.Command(CmdGraphSummary, nil)
	if err != nil || !resp.Success {
		t.Fatalf("graph-summary = %+v, %v", resp, err)
	}
	var summaries map[string]struct {
		Packages int `json:"packages"`
	}
	if err := json.Unmarshal(resp.Data, &summaries); err != nil {
		t.Fatal(err)
	}
	if summaries["demo"].Packages != 1 {
		t.Errorf("graph-summary packages = %d, want 1", summaries["demo"].Packages)
	}

	if err := client.RemoveRepository("demo"); err != nil {
		t.Fatalf("RemoveRepository() error = %v", err)
	}
	if err := client.RemoveRepository("demo"); err == nil {
		t.Error("RemoveRepository() succeeded for an unknown repo")
	}

	if err := client.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("server still running after Shutdown")
	}
	if client.Running() {
		t.Error("socket still answering after shutdown")
	}
}

func TestServer_MalformedFrameDropsConnection(t *testing.T) {
	client, _, _ := startServer(t)

	conn, err := net.Dial("unix", client.socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], MaxFrameSize+1)
	if _, err := conn.Write(prefix[:]); err != nil {
		t.Fatal(err)
	}

	// The server closes without responding.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("read after oversized frame = %v, want EOF", err)
	}

	// The daemon survives and keeps serving.
	if resp, err := client.Command(CmdPing, nil); err != nil || resp.Message != "pong" {
		t.Errorf("ping after bad frame = %+v, %v", resp, err)
	}
}

func TestStart_ReclaimsStaleState(t *testing.T) {
	dir := t.TempDir()
	socket := filepath.Join(dir, "d.sock")
	pidFile := filepath.Join(dir, "d.pid")

	// A leftover socket nothing listens on and a PID file naming a dead
	// process.
	if err := os.WriteFile(socket, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pidFile, []byte("99999999\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewServer(Options{SocketPath: socket, PIDFile: pidFile})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v, want stale state reclaimed", err)
	}
	done := make(chan struct{})
	go func() {
		s.Serve(context.Background())
		close(done)
	}()

	if pid := readPIDFile(pidFile); pid != os.Getpid() {
		t.Errorf("PID file = %d, want %d", pid, os.Getpid())
	}
	if !NewClient(socket).Running() {
		t.Error("daemon not answering after reclaim")
	}

	s.requestShutdown()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Error("socket not removed on shutdown")
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("PID file not removed on shutdown")
	}
}

func TestStart_RefusesSecondDaemon(t *testing.T) {
	_, s, _ := startServer(t)

	second := NewServer(Options{SocketPath: s.opts.SocketPath, PIDFile: s.opts.PIDFile})
	if err := second.Start(); err == nil {
		t.Fatal("second Start() succeeded on a live socket")
	}
}
