package identity

import (
	"strings"

	"github.com/okanda/warden/internal/pidfile"
	"github.com/okanda/warden/internal/probe"
)

// CreateTimeTolerance is the allowed skew, in seconds, between the
// recorded start time and the OS-reported process creation time. A larger
// difference means the PID was reused by an unrelated process.
const CreateTimeTolerance = 5

// Signature describes how the supervised service looks in a process
// listing: its packaged binary name, the interpreters that may host it,
// and the command-line tokens of its invocation. All matching is
// case-insensitive on lowercased input.
type Signature struct {
	BinaryName    string
	Interpreters  []string
	CmdlineTokens []string
}

// DefaultSignature matches the stock backend: a PyInstaller binary or a
// python module invocation.
func DefaultSignature() Signature {
	return Signature{
		BinaryName:    "okanda-server",
		Interpreters:  []string{"python", "python3"},
		CmdlineTokens: []string{"okanda.main", "serve"},
	}
}

// MatchExe reports whether an executable name is the packaged binary.
func (s Signature) MatchExe(exe string) bool {
	return s.BinaryName != "" && strings.Contains(exe, s.BinaryName)
}

// MatchInterpreter reports whether an executable name is one of the
// interpreters that can host the service.
func (s Signature) MatchInterpreter(exe string) bool {
	for _, in := range s.Interpreters {
		if strings.Contains(exe, in) {
			return true
		}
	}
	return false
}

// MatchCmdline reports whether a command line carries every invocation
// token.
func (s Signature) MatchCmdline(cmdline string) bool {
	if len(s.CmdlineTokens) == 0 {
		return false
	}
	for _, tok := range s.CmdlineTokens {
		if !strings.Contains(cmdline, tok) {
			return false
		}
	}
	return true
}

// Verifier decides whether a PID is alive and actually the tracked
// service, defending against OS PID reuse.
type Verifier struct {
	Probe probe.Probe
	Sig   Signature
}

// IsRunning reports process existence. PID 0 is never running and never
// queried.
func (v Verifier) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	return v.Probe.IsRunning(pid)
}

// IsSameService checks the candidate's identity by signature: the
// packaged binary name matches outright; an interpreter-hosted process
// additionally needs the invocation tokens in its command line. Metadata
// query failures resolve to false, never to "assume valid".
func (v Verifier) IsSameService(pid int) bool {
	if !v.IsRunning(pid) {
		return false
	}
	exe, err := v.Probe.ExeName(pid)
	if err != nil {
		return false
	}
	if v.Sig.MatchExe(exe) {
		return true
	}
	if !v.Sig.MatchInterpreter(exe) {
		return false
	}
	cmdline, err := v.Probe.Cmdline(pid)
	if err != nil {
		return false
	}
	return v.Sig.MatchCmdline(cmdline)
}

// RecordIsValid validates a PID record: the process must exist and its
// creation time must match the recorded start time within tolerance.
// Legacy records (StartedAt == 0) and inconclusive creation-time queries
// fall back to the signature check. The cheap time compare runs first so
// routine status polls stay fast.
func (v Verifier) RecordIsValid(rec pidfile.Record) bool {
	if !v.IsRunning(rec.PID) {
		return false
	}
	if rec.StartedAt == 0 {
		return v.IsSameService(rec.PID)
	}
	actual := v.Probe.CreateTime(rec.PID)
	if actual == 0 {
		return v.IsSameService(rec.PID)
	}
	diff := rec.StartedAt - actual
	if diff < 0 {
		diff = -diff
	}
	if diff > CreateTimeTolerance {
		// Time mismatch means the PID was reused, unless the new owner
		// happens to be our service anyway.
		return v.IsSameService(rec.PID)
	}
	return true
}
