package orphan

import (
	"errors"
	"testing"

	"github.com/okanda/warden/internal/identity"
	"github.com/okanda/warden/internal/probe"
)

type fakeProbe struct {
	procs      []probe.ProcessInfo
	running    map[int]bool
	killed     []int
	snapErr    error
	killErrFor int
}

func (f *fakeProbe) IsRunning(pid int) bool      { return f.running[pid] }
func (f *fakeProbe) CreateTime(int) int64        { return 0 }
func (f *fakeProbe) ExeName(int) (string, error) { return "", nil }
func (f *fakeProbe) Cmdline(int) (string, error) { return "", nil }

func (f *fakeProbe) Terminate(pid int) error {
	if pid == f.killErrFor {
		return errors.New("access denied")
	}
	delete(f.running, pid)
	f.killed = append(f.killed, pid)
	return nil
}

func (f *fakeProbe) Snapshot() ([]probe.ProcessInfo, error) {
	return f.procs, f.snapErr
}

func newScanner(f *fakeProbe) Scanner {
	return Scanner{Probe: f, Sig: identity.DefaultSignature()}
}

func TestScanTwoStageFilter(t *testing.T) {
	f := &fakeProbe{
		procs: []probe.ProcessInfo{
			{PID: 10, Exe: "okanda-server", Cmdline: "okanda-server"},
			{PID: 11, Exe: "python3", Cmdline: "python3 -m okanda.main serve"},
			{PID: 12, Exe: "python3", Cmdline: "python3 -m http.server"},
			{PID: 13, Exe: "nginx", Cmdline: "nginx -g daemon off"},
		},
		running: map[int]bool{10: true, 11: true, 12: true, 13: true},
	}
	got := newScanner(f).Scan()
	if len(got) != 2 {
		t.Fatalf("Scan: got %d matches, want 2: %+v", len(got), got)
	}
	if got[0].PID != 10 || got[1].PID != 11 {
		t.Fatalf("wrong matches: %+v", got)
	}
}

func TestScanAndKillIdempotentWithZeroOrphans(t *testing.T) {
	f := &fakeProbe{running: map[int]bool{}}
	s := newScanner(f)
	if killed := s.ScanAndKill(); len(killed) != 0 {
		t.Fatalf("no orphans expected, killed %v", killed)
	}
	if killed := s.ScanAndKill(); len(killed) != 0 {
		t.Fatalf("second sweep must also be empty, killed %v", killed)
	}
}

func TestScanAndKillSkipsAlreadyDead(t *testing.T) {
	f := &fakeProbe{
		procs: []probe.ProcessInfo{
			{PID: 20, Exe: "okanda-server", Cmdline: "okanda-server"},
			{PID: 21, Exe: "okanda-server", Cmdline: "okanda-server"},
		},
		running: map[int]bool{21: true}, // 20 exited between snapshot and kill
	}
	killed := newScanner(f).ScanAndKill()
	if len(killed) != 1 || killed[0] != 21 {
		t.Fatalf("killed %v, want [21]", killed)
	}
}

func TestScanAndKillContinuesPastKillError(t *testing.T) {
	f := &fakeProbe{
		procs: []probe.ProcessInfo{
			{PID: 30, Exe: "okanda-server"},
			{PID: 31, Exe: "okanda-server"},
		},
		running:    map[int]bool{30: true, 31: true},
		killErrFor: 30,
	}
	killed := newScanner(f).ScanAndKill()
	if len(killed) != 1 || killed[0] != 31 {
		t.Fatalf("killed %v, want [31]", killed)
	}
}

func TestScanSnapshotErrorYieldsNil(t *testing.T) {
	f := &fakeProbe{snapErr: errors.New("boom")}
	if got := newScanner(f).Scan(); got != nil {
		t.Fatalf("snapshot failure should yield nil, got %+v", got)
	}
}
