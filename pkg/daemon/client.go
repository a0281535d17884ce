package daemon

import (
	"net"
	"time"

	"github.com/sublimetools/sublime/pkg/errors"
)

const dialTimeout = 2 * time.Second

// Client talks to a running daemon over its unix socket. One connection
// per request, matching the server's one-exchange handlers.
type Client struct {
	socketPath string
}

// NewClient creates a daemon client for the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Running probes whether a daemon answers on the socket.
func (c *Client) Running() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Status fetches the daemon's status.
func (c *Client) Status() (*StatusInfo, error) {
	resp, err := c.do(Request{Type: TypeStatus})
	if err != nil {
		return nil, err
	}
	return resp.Status, nil
}

// AddRepository asks the daemon to monitor a repository. Name is optional.
func (c *Client) AddRepository(path, name string) error {
	resp, err := c.do(Request{Type: TypeAddRepository, Path: path, Name: name})
	if err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(errors.ErrCodeInternal, "%s", resp.Error)
	}
	return nil
}

// RemoveRepository stops monitoring the repository matching the
// identifier (name or path).
func (c *Client) RemoveRepository(identifier string) error {
	resp, err := c.do(Request{Type: TypeRemoveRepository, Identifier: identifier})
	if err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(errors.ErrCodeNotFound, "%s", resp.Error)
	}
	return nil
}

// Command sends a named command with arguments.
func (c *Client) Command(name string, args []string) (*Response, error) {
	return c.do(Request{Type: TypeCommand, Command: name, Args: args})
}

// Shutdown asks the daemon to stop gracefully.
func (c *Client) Shutdown() error {
	resp, err := c.do(Request{Type: TypeShutdown})
	if err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(errors.ErrCodeInternal, "%s", resp.Error)
	}
	return nil
}

func (c *Client) do(req Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDaemonUnreachable, err, "connecting to daemon at %s", c.socketPath)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	if err := writeFrame(conn, req); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDaemonUnreachable, err, "sending request")
	}
	var resp Response
	if err := readFrame(conn, &resp); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDaemonUnreachable, err, "reading response")
	}
	return &resp, nil
}
