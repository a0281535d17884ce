package daemon

import (
	"os"
	"strconv"
	"strings"
	"syscall"
)

// writePIDFile records the current process ID atomically.
func writePIDFile(path string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readPIDFile returns the recorded PID, or 0 when the file is absent or
// unparsable.
func readPIDFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// processAlive reports whether a process with the given PID exists.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	return syscall.Kill(pid, 0) == nil
}
