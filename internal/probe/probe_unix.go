//go:build !windows

package probe

import (
	"errors"
	"strings"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

type sysProbe struct{}

// IsRunning uses a signal-0 probe. EPERM means the process exists but
// belongs to another user, which still counts as running.
func (sysProbe) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func (sysProbe) Terminate(pid int) error {
	if pid <= 0 {
		return nil
	}
	err := syscall.Kill(pid, syscall.SIGKILL)
	if err != nil && errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func (sysProbe) CreateTime(pid int) int64 { return procStartUnix(pid) }

func (sysProbe) ExeName(pid int) (string, error) {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	name, err := p.Name()
	if err != nil {
		return "", err
	}
	return strings.ToLower(name), nil
}

func (sysProbe) Cmdline(pid int) (string, error) {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	cl, err := p.Cmdline()
	if err != nil {
		return "", err
	}
	return strings.ToLower(cl), nil
}

func (sysProbe) Snapshot() ([]ProcessInfo, error) {
	procs, err := gopsproc.Processes()
	if err != nil {
		return nil, err
	}
	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // exited between enumeration and query
		}
		cl, _ := p.Cmdline()
		out = append(out, ProcessInfo{
			PID:     int(p.Pid),
			Exe:     strings.ToLower(name),
			Cmdline: strings.ToLower(cl),
		})
	}
	return out, nil
}
