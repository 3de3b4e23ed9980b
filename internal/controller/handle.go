package controller

import (
	"os/exec"
	"time"
)

// Handle is the in-memory ownership token for a child this controller
// process spawned directly. Unlike the PID record it supports precise,
// race-free exit checks via the single waiter goroutine reaping the
// child. Never persisted; after a controller restart the PID record is
// the only trace and the instance is adopted through it instead.
type Handle struct {
	WorkspaceID string
	PID         int

	cmd  *exec.Cmd
	done chan struct{}
}

// newHandle wraps a started command and spawns the one goroutine allowed
// to call cmd.Wait.
func newHandle(id string, cmd *exec.Cmd) *Handle {
	h := &Handle{
		WorkspaceID: id,
		PID:         cmd.Process.Pid,
		cmd:         cmd,
		done:        make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(h.done)
	}()
	return h
}

// Exited reports whether the child has been reaped, without blocking.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// WaitTimeout blocks until the child exits or d elapses, reporting
// whether it exited.
func (h *Handle) WaitTimeout(d time.Duration) bool {
	select {
	case <-h.done:
		return true
	case <-time.After(d):
		return false
	}
}

// Kill force-terminates the child directly through the exec handle.
func (h *Handle) Kill() error {
	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}
