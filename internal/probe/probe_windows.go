//go:build windows

package probe

import (
	"fmt"
	"strings"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const (
	processTerminate               = 0x0001
	processQueryLimitedInformation = 0x1000
)

type sysProbe struct{}

// IsRunning opens a process handle directly via the Windows API; no
// tasklist parsing, so no codepage issues on localized systems.
func (sysProbe) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, _, _ := procOpenProcess.Call(uintptr(processQueryLimitedInformation), 0, uintptr(uint32(pid)))
	if h == 0 {
		return false
	}
	_, _, _ = procCloseHandle.Call(h)
	return true
}

func (p sysProbe) Terminate(pid int) error {
	if pid <= 0 {
		return nil
	}
	h, _, _ := procOpenProcess.Call(uintptr(processTerminate), 0, uintptr(uint32(pid)))
	if h == 0 {
		if !p.IsRunning(pid) {
			return nil
		}
		return fmt.Errorf("open process %d for terminate failed", pid)
	}
	defer func() { _, _, _ = procCloseHandle.Call(h) }()
	ret, _, _ := procTerminateProcess.Call(h, uintptr(1))
	if ret == 0 {
		if !p.IsRunning(pid) {
			return nil
		}
		return fmt.Errorf("TerminateProcess failed for pid %d", pid)
	}
	return nil
}

func (sysProbe) CreateTime(pid int) int64 { return procStartWindows(pid) }

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
			continue
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
