package orphan

import (
	"log/slog"
	"os"

	"github.com/okanda/warden/internal/identity"
	"github.com/okanda/warden/internal/probe"
)

// Scanner force-matches live processes against the service signature,
// independent of any PID record. It is the last line of defense for
// orphans left by a crashed controller session or a hand-deleted run
// directory.
type Scanner struct {
	Probe probe.Probe
	Sig   identity.Signature
}

// Scan returns every live process matching the signature. The filter is
// two-stage: a cheap executable-name match first (the packaged binary is
// a direct hit, an interpreter only a candidate), then the command-line
// signature for interpreter-hosted candidates, so unrelated processes
// that merely share an interpreter name are never reported.
func (s Scanner) Scan() []probe.ProcessInfo {
	procs, err := s.Probe.Snapshot()
	if err != nil {
		slog.Warn("Process snapshot failed", "error", err)
		return nil
	}
	self := os.Getpid()
	var out []probe.ProcessInfo
	for _, p := range procs {
		if p.PID == self {
			continue
		}
		if s.Sig.MatchExe(p.Exe) {
			out = append(out, p)
			continue
		}
		if s.Sig.MatchInterpreter(p.Exe) && s.Sig.MatchCmdline(p.Cmdline) {
			out = append(out, p)
		}
	}
	return out
}

// ScanAndKill terminates every match and returns the killed PIDs. Safe
// and idempotent with zero orphans present.
func (s Scanner) ScanAndKill() []int {
	var killed []int
	for _, p := range s.Scan() {
		if !s.Probe.IsRunning(p.PID) {
			continue
		}
		if err := s.Probe.Terminate(p.PID); err != nil {
			slog.Warn("Failed to kill orphan", "pid", p.PID, "error", err)
			continue
		}
		slog.Info("Killed orphan process", "pid", p.PID, "cmdline", p.Cmdline)
		killed = append(killed, p.PID)
	}
	return killed
}
