//go:build windows

package probe

import (
	"syscall"
	"unsafe"
)

// procStartWindows returns the process creation time as Unix seconds using
// GetProcessTimes. Returns 0 on error.
func procStartWindows(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	h, _, _ := procOpenProcess.Call(uintptr(processQueryLimitedInformation), 0, uintptr(uint32(pid)))
	if h == 0 {
		return 0
	}
	defer func() { _, _, _ = procCloseHandle.Call(h) }()

	var creation, exit, kernel, user syscall.Filetime
	getTimes := kernel32.NewProc("GetProcessTimes")
	ret, _, _ := getTimes.Call(h,
		uintptr(unsafe.Pointer(&creation)),
		uintptr(unsafe.Pointer(&exit)),
		uintptr(unsafe.Pointer(&kernel)),
		uintptr(unsafe.Pointer(&user)))
	if ret == 0 {
		return 0
	}
	// FILETIME is 100-ns intervals since 1601-01-01.
	const ticksPerSecond = 10000000
	const epochDiff = 11644473600
	ft := (uint64(creation.HighDateTime) << 32) | uint64(creation.LowDateTime)
	return int64(ft/ticksPerSecond) - epochDiff
}
