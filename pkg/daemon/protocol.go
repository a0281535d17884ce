// Package daemon runs the long-lived workspace monitor behind a unix
// socket, plus the client used to talk to it.
//
// Wire format: each message is a 4-byte big-endian length prefix followed
// by a JSON body of at most 1 MiB. A violated frame drops the connection.
package daemon

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/sublimetools/sublime/pkg/errors"
)

// MaxFrameSize bounds a single message body.
const MaxFrameSize = 1 << 20

// Request types.
const (
	TypeStatus           = "status"
	TypeAddRepository    = "add-repository"
	TypeRemoveRepository = "remove-repository"
	TypeCommand          = "command"
	TypeShutdown         = "shutdown"
)

// Command verbs accepted by TypeCommand requests.
const (
	CmdPing            = "ping"
	CmdListRepos       = "list-repos"
	CmdUptime          = "uptime"
	CmdGraphSummary    = "graph-summary"
	CmdChangesetStatus = "changeset-status"
)

// Request is the single message shape sent to the daemon. Type selects
// the operation; the remaining fields apply per type.
type Request struct {
	Type       string   `json:"type"`
	Path       string   `json:"path,omitempty"`       // add-repository
	Name       string   `json:"name,omitempty"`       // add-repository (optional)
	Identifier string   `json:"identifier,omitempty"` // remove-repository (name or path)
	Command    string   `json:"command,omitempty"`    // command
	Args       []string `json:"args,omitempty"`       // command
}

// RepoInfo describes one monitored repository.
type RepoInfo struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Packages int    `json:"packages"`
	Stale    bool   `json:"stale"`
}

// StatusInfo is the payload of a status response.
type StatusInfo struct {
	Running        bool       `json:"running"`
	PID            int        `json:"pid"`
	UptimeSeconds  int64      `json:"uptime_s"`
	MonitoredRepos []RepoInfo `json:"monitored_repos"`
}

// Response is the single message shape sent back to clients.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Status  *StatusInfo     `json:"status,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// writeFrame serializes v and writes one length-prefixed frame.
func writeFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(body) > MaxFrameSize {
		return errors.New(errors.ErrCodeInvalidMessage, "frame of %d bytes exceeds %d", len(body), MaxFrameSize)
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// readFrame reads one length-prefixed frame and decodes it into v.
func readFrame(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxFrameSize {
		return errors.New(errors.ErrCodeInvalidMessage, "frame of %d bytes exceeds %d", n, MaxFrameSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidMessage, err, "decoding message")
	}
	return nil
}
