package probe

// ProcessInfo describes one process from a system snapshot.
type ProcessInfo struct {
	PID     int    `json:"pid"`
	Exe     string `json:"exe"`
	Cmdline string `json:"cmdline"`
}

// Probe abstracts OS process queries so callers never parse the output of
// locale-dependent text tools. Implementations are selected per platform
// at build time. All methods must be safe for concurrent use.
type Probe interface {
	// IsRunning reports whether a process with the given pid exists.
	// pid <= 0 is always false without touching the OS.
	IsRunning(pid int) bool
	// Terminate force-kills the process (SIGKILL / TerminateProcess).
	Terminate(pid int) error
	// CreateTime returns the process creation time as Unix seconds,
	// or 0 when unavailable.
	CreateTime(pid int) int64
	// ExeName returns the process executable base name, lowercased.
	ExeName(pid int) (string, error)
	// Cmdline returns the full command line, lowercased.
	Cmdline(pid int) (string, error)
	// Snapshot enumerates all visible processes. Entries for which the
	// command line cannot be read carry an empty Cmdline.
	Snapshot() ([]ProcessInfo, error)
}

// New returns the native probe for the current platform.
func New() Probe { return sysProbe{} }
