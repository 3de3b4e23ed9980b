package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okanda/warden/internal/heartbeat"
	"github.com/okanda/warden/internal/history"
	"github.com/okanda/warden/internal/identity"
	"github.com/okanda/warden/internal/metrics"
	"github.com/okanda/warden/internal/orphan"
	"github.com/okanda/warden/internal/pidfile"
	"github.com/okanda/warden/internal/portgate"
	"github.com/okanda/warden/internal/probe"
	"github.com/okanda/warden/internal/startlock"
	"github.com/okanda/warden/internal/workspace"
)

// Operation bounds. Every wait is finite; no lifecycle operation blocks
// indefinitely.
const (
	shutdownRequestTimeout = 3 * time.Second
	gracefulExitWait       = 5 * time.Second
	forcedExitWait         = 2 * time.Second
	portFreeWait           = 10 * time.Second
	spawnGrace             = 500 * time.Millisecond
	exitPollInterval       = 200 * time.Millisecond
	healthProbeTimeout     = 2 * time.Second
	exitedEarlyTailBytes   = 6000
)

// Log tail bounds for the Logs operation.
const (
	DefaultLogTailBytes = 40_000
	MaxLogTailBytes     = 400_000
)

// DefaultPort is the backend's stock service port, overridable per
// workspace via API_PORT in its .env file.
const DefaultPort = 18900

// Options configures a Controller. Zero values get sensible defaults.
type Options struct {
	Layout        workspace.Layout
	Signature     identity.Signature
	Probe         probe.Probe
	Port          int
	ShutdownPath  string
	HealthPath    string
	ExtraEnv      []string // supervisor-level KEY=VALUE overrides, applied after the workspace .env
	SearchPaths   []string // extra module search paths handed to the child
	SearchPathVar string   // env var name carrying SearchPaths
	Sinks         []history.Sink
}

// Status is the answer to a status query, heartbeat signal included.
// Staleness is surfaced to the caller, never auto-escalated here.
type Status struct {
	WorkspaceID    string   `json:"workspace_id"`
	Running        bool     `json:"running"`
	PID            int      `json:"pid,omitempty"`
	PIDFile        string   `json:"pid_file"`
	HeartbeatPhase string   `json:"heartbeat_phase,omitempty"`
	HeartbeatStale *bool    `json:"heartbeat_stale,omitempty"`
	HeartbeatAge   *float64 `json:"heartbeat_age_secs,omitempty"`
}

// Report summarizes one reconcile pass.
type Report struct {
	LocksRemoved   int `json:"locks_removed"`
	RecordsRemoved int `json:"records_removed"`
	HungStopped    int `json:"hung_stopped"`
}

// LogChunk is a bounded tail of a service log file.
type LogChunk struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
}

// Controller orchestrates start, stop, status and reconciliation for the
// supervised service instances. One controller per host; the handle
// registry is the only in-memory shared mutable state and is guarded by
// mu for each operation's whole read/act/write sequence.
type Controller struct {
	mu      sync.Mutex
	handles map[string]*Handle

	opts     Options
	probe    probe.Probe
	verifier identity.Verifier
	scanner  orphan.Scanner
	records  pidfile.Store
	hb       heartbeat.Monitor
	locks    startlock.Dir
	httpc    *http.Client
	portWait time.Duration

	autoStarting atomic.Bool
}

// New builds a Controller over the given options.
func New(opts Options) *Controller {
	if opts.Probe == nil {
		opts.Probe = probe.New()
	}
	if opts.Signature.BinaryName == "" && len(opts.Signature.CmdlineTokens) == 0 {
		opts.Signature = identity.DefaultSignature()
	}
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}
	if opts.ShutdownPath == "" {
		opts.ShutdownPath = "/api/shutdown"
	}
	if opts.HealthPath == "" {
		opts.HealthPath = "/api/health"
	}
	if opts.SearchPathVar == "" {
		opts.SearchPathVar = "WARDEN_MODULE_PATHS"
	}
	return &Controller{
		handles:  make(map[string]*Handle),
		opts:     opts,
		probe:    opts.Probe,
		verifier: identity.Verifier{Probe: opts.Probe, Sig: opts.Signature},
		scanner:  orphan.Scanner{Probe: opts.Probe, Sig: opts.Signature},
		records:  pidfile.Store{Dir: opts.Layout.RunDir()},
		hb:       heartbeat.Monitor{Layout: opts.Layout},
		locks:    startlock.Dir{Path: opts.Layout.RunDir()},
		httpc:    &http.Client{Timeout: shutdownRequestTimeout},
		portWait: portFreeWait,
	}
}

// port resolves the effective service port for a workspace.
func (c *Controller) port(id string) int {
	return c.opts.Layout.APIPort(id, c.opts.Port)
}

// statusFor assembles a Status with the current heartbeat signal.
func (c *Controller) statusFor(id string, running bool, pid int) Status {
	st := Status{
		WorkspaceID: id,
		Running:     running,
		PID:         pid,
		PIDFile:     c.records.Path(id),
	}
	if rec, ok := c.hb.Read(id); ok {
		st.HeartbeatPhase = rec.Phase
		if age, ok := c.hb.Age(id); ok {
			stale := age > heartbeat.StatusMaxAge.Seconds()
			st.HeartbeatStale = &stale
			st.HeartbeatAge = &age
		}
	}
	return st
}

// cleanup best-effort removes the PID record and heartbeat for id.
func (c *Controller) cleanup(id string) {
	c.records.Delete(id)
	c.hb.Clear(id)
}

// Status reports whether the instance is running. The in-process handle
// is preferred when present (precise exit check, no OS re-query);
// otherwise the PID record is validated through the identity verifier. A
// record failing validation is deleted together with its heartbeat
// before "not running" is returned.
func (c *Controller) Status(id string) Status {
	c.mu.Lock()
	h := c.handles[id]
	if h != nil && !h.Exited() {
		pid := h.PID
		c.mu.Unlock()
		return c.statusFor(id, true, pid)
	}
	if h != nil {
		delete(c.handles, id)
	}
	c.mu.Unlock()
	if h != nil {
		c.cleanup(id)
		return c.statusFor(id, false, 0)
	}

	if rec, ok := c.records.Read(id); ok {
		if c.verifier.RecordIsValid(rec) {
			return c.statusFor(id, true, rec.PID)
		}
		c.cleanup(id)
	}
	return c.statusFor(id, false, 0)
}

// StatusAll reports the status of every workspace that has a PID record
// or a live handle.
func (c *Controller) StatusAll() []Status {
	seen := make(map[string]struct{})
	var ids []string
	c.mu.Lock()
	for id := range c.handles {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	c.mu.Unlock()
	for _, ent := range c.records.List() {
		if _, ok := seen[ent.WorkspaceID]; !ok {
			ids = append(ids, ent.WorkspaceID)
		}
	}
	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.Status(id))
	}
	return out
}

// Start launches the service for a workspace. A second Start for an
// already-running instance is a no-op returning the current status; a
// stale-but-alive heartbeat still counts as running unless it crossed
// the forced-recovery threshold, in which case the hung instance is
// stopped first.
func (c *Controller) Start(id string, command []string) (Status, error) {
	if len(command) == 0 || command[0] == "" {
		return Status{}, errors.New("empty start command")
	}

	c.mu.Lock()
	if h := c.handles[id]; h != nil {
		if !h.Exited() {
			pid := h.PID
			c.mu.Unlock()
			return c.statusFor(id, true, pid), nil
		}
		delete(c.handles, id)
		c.mu.Unlock()
		c.cleanup(id)
	} else {
		c.mu.Unlock()
	}

	if rec, ok := c.records.Read(id); ok {
		if c.verifier.RecordIsValid(rec) {
			if stale, hasHB := c.hb.IsStale(id, heartbeat.RecoveryMaxAge); hasHB && stale {
				// Alive but hung past the recovery threshold: clear it
				// out before starting fresh.
				slog.Warn("Instance hung, forcing recovery before start", "workspace", id, "pid", rec.PID)
				if err := c.gracefulStop(rec.PID, c.port(id)); err != nil {
					return c.statusFor(id, true, rec.PID), err
				}
				c.cleanup(id)
			} else {
				return c.statusFor(id, true, rec.PID), nil
			}
		} else {
			c.cleanup(id)
		}
	}

	// The new instance must never read the previous instance's last
	// heartbeat before its own first write.
	c.hb.Clear(id)

	guard, ok := c.locks.TryAcquire(id)
	if !ok {
		return Status{}, ErrStartInProgress
	}
	defer guard.Release()

	if err := c.opts.Layout.EnsureDirs(id); err != nil {
		return Status{}, err
	}

	port := c.port(id)
	if !portgate.Available(port) {
		slog.Info("Service port busy, waiting for it to free", "workspace", id, "port", port)
		if !portgate.WaitFree(port, c.portWait) {
			metrics.IncStartError(id)
			return Status{}, &PortBusyError{Port: port}
		}
	}

	logPath := c.opts.Layout.LogFile(id)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return Status{}, fmt.Errorf("open service log: %w", err)
	}

	cmd := exec.Command(command[0], command[1:]...) // #nosec G204 -- command comes from operator config
	cmd.Dir = c.opts.Layout.Dir(id)
	cmd.Env = c.composeEnv(id, command[0])
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	configureSysProcAttr(cmd)

	err = cmd.Start()
	_ = logFile.Close() // the child keeps its own descriptor
	if err != nil {
		metrics.IncStartError(id)
		return Status{}, fmt.Errorf("spawn %s: %w", command[0], err)
	}
	pid := cmd.Process.Pid

	if err := c.records.Write(id, pid, pidfile.OwnerWarden); err != nil {
		slog.Warn("Failed to write PID record", "workspace", id, "pid", pid, "error", err)
	}

	h := newHandle(id, cmd)
	c.mu.Lock()
	c.handles[id] = h
	c.mu.Unlock()

	// Spawn can succeed and the process still die instantly on a bad
	// configuration; re-check after a short grace period.
	time.Sleep(spawnGrace)
	if h.Exited() || !c.probe.IsRunning(pid) {
		c.mu.Lock()
		if c.handles[id] == h {
			delete(c.handles, id)
		}
		c.mu.Unlock()
		c.records.Delete(id)
		metrics.IncStartError(id)
		return Status{}, &ExitedEarlyError{
			PID:     pid,
			LogPath: logPath,
			LogTail: readLogTail(logPath, exitedEarlyTailBytes),
		}
	}

	metrics.IncStart(id)
	c.emit(history.EventStart, id, pid, strings.Join(command, " "))
	slog.Info("Service started", "workspace", id, "pid", pid, "port", port)
	return c.statusFor(id, true, pid), nil
}

// composeEnv layers the child environment: inherited process env, then
// interpreter hygiene vars, then the workspace .env, then supervisor
// extras, then the search-path variable. Later entries win on duplicate
// keys.
func (c *Controller) composeEnv(id, argv0 string) []string {
	env := os.Environ()
	exe := strings.ToLower(filepath.Base(argv0))
	if c.opts.Signature.MatchInterpreter(exe) {
		// UTF-8 and unbuffered output keep the child's log file clean
		// and realtime on every platform.
		env = append(env,
			"PYTHONUTF8=1",
			"PYTHONIOENCODING=utf-8",
			"PYTHONUNBUFFERED=1",
			"NO_COLOR=1",
		)
	}
	env = append(env, c.opts.Layout.ReadEnv(id)...)
	env = append(env, c.opts.ExtraEnv...)
	if len(c.opts.SearchPaths) > 0 {
		env = append(env, c.opts.SearchPathVar+"="+strings.Join(c.opts.SearchPaths, string(os.PathListSeparator)))
	}
	return env
}

// Stop brings the instance down, graceful first, forced second. When
// both fail the PID record and handle are kept on purpose so a
// subsequent Status still reports it running.
func (c *Controller) Stop(id string) (Status, error) {
	port := c.port(id)

	c.mu.Lock()
	h := c.handles[id]
	c.mu.Unlock()
	if h != nil {
		if err := c.stopHandle(h, port); err != nil {
			metrics.IncStopFailure(id)
			return c.statusFor(id, true, h.PID), err
		}
		c.mu.Lock()
		if c.handles[id] == h {
			delete(c.handles, id)
		}
		c.mu.Unlock()
		c.finalizeStop(id, port)
		metrics.IncStop(id)
		c.emit(history.EventStop, id, h.PID, "")
		slog.Info("Service stopped", "workspace", id, "pid", h.PID)
		return c.statusFor(id, false, 0), nil
	}

	rec, ok := c.records.Read(id)
	if ok && c.verifier.IsRunning(rec.PID) {
		if err := c.gracefulStop(rec.PID, port); err != nil {
			metrics.IncStopFailure(id)
			return c.statusFor(id, true, rec.PID), err
		}
	}
	c.finalizeStop(id, port)
	if ok {
		metrics.IncStop(id)
		c.emit(history.EventStop, id, rec.PID, "")
		slog.Info("Service stopped", "workspace", id, "pid", rec.PID)
	}
	return c.statusFor(id, false, 0), nil
}

// stopHandle stops a child we spawned ourselves, using the handle's
// precise exit notification instead of PID polling.
func (c *Controller) stopHandle(h *Handle, port int) error {
	if h.Exited() {
		return nil
	}
	if c.requestShutdown(port) {
		if h.WaitTimeout(gracefulExitWait) {
			return nil
		}
	}
	_ = h.Kill()
	if h.WaitTimeout(forcedExitWait) {
		return nil
	}
	return &StopFailedError{PID: h.PID}
}

// gracefulStop stops a process known only by PID: shutdown request over
// the service's own control channel, bounded wait, then forced kill with
// a second bounded wait.
func (c *Controller) gracefulStop(pid, port int) error {
	if !c.probe.IsRunning(pid) {
		return nil
	}
	if c.requestShutdown(port) {
		if c.waitExit(pid, gracefulExitWait) {
			return nil
		}
	}
	if !c.probe.IsRunning(pid) {
		return nil
	}
	_ = c.probe.Terminate(pid)
	if c.waitExit(pid, forcedExitWait) {
		return nil
	}
	return &StopFailedError{PID: pid}
}

// requestShutdown POSTs the shutdown endpoint. A 2xx only means the
// request was accepted; callers still wait for the process to exit.
func (c *Controller) requestShutdown(port int) bool {
	url := "http://127.0.0.1:" + strconv.Itoa(port) + c.opts.ShutdownPath
	resp, err := c.httpc.Post(url, "application/json", nil)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// waitExit polls until the pid is gone or the bound elapses.
func (c *Controller) waitExit(pid int, bound time.Duration) bool {
	deadline := time.Now().Add(bound)
	for time.Now().Before(deadline) {
		if !c.probe.IsRunning(pid) {
			return true
		}
		time.Sleep(exitPollInterval)
	}
	return !c.probe.IsRunning(pid)
}

// finalizeStop removes the on-disk traces and waits for the port so the
// next Start does not race the kernel's socket teardown. Best-effort by
// design; its failures never mask the stop result.
func (c *Controller) finalizeStop(id string, port int) {
	c.cleanup(id)
	if !portgate.WaitFree(port, c.portWait) {
		slog.Warn("Port still busy after stop", "workspace", id, "port", port)
	}
}

// StopAll stops every instance that has a PID record, then sweeps
// orphans. Used when the host shuts down; best-effort across entries.
func (c *Controller) StopAll() []int {
	var stopped []int
	for _, ent := range c.records.List() {
		st := c.Status(ent.WorkspaceID)
		if _, err := c.Stop(ent.WorkspaceID); err != nil {
			slog.Warn("Failed to stop instance", "workspace", ent.WorkspaceID, "error", err)
			continue
		}
		if st.Running {
			stopped = append(stopped, st.PID)
		}
	}
	stopped = append(stopped, c.KillOrphans()...)
	return stopped
}

// CheckAlive is the deep liveness probe: identity verification plus the
// forced-recovery heartbeat rule, with self-healing cleanup. Stronger
// and slower than Status.
func (c *Controller) CheckAlive(id string) bool {
	c.mu.Lock()
	h := c.handles[id]
	if h != nil {
		alive := !h.Exited()
		if !alive {
			delete(c.handles, id)
		}
		c.mu.Unlock()
		if !alive {
			c.cleanup(id)
		}
		return alive
	}
	c.mu.Unlock()

	rec, ok := c.records.Read(id)
	if !ok {
		return false
	}
	if !c.verifier.IsRunning(rec.PID) {
		c.cleanup(id)
		return false
	}
	if !c.verifier.IsSameService(rec.PID) {
		// PID reused by an unrelated process.
		c.cleanup(id)
		return false
	}
	if stale, hasHB := c.hb.IsStale(id, heartbeat.RecoveryMaxAge); hasHB && stale {
		// Alive but hung. Stop it so the next Start gets a clean slate.
		if err := c.gracefulStop(rec.PID, c.port(id)); err != nil {
			slog.Warn("Failed to stop hung instance", "workspace", id, "pid", rec.PID, "error", err)
		}
		c.cleanup(id)
		return false
	}
	return true
}

// Reconcile heals state left behind by a previous controller crash. Run
// once at controller startup: wipe all start locks, drop records that no
// longer validate, and stop instances whose heartbeat crossed the
// forced-recovery threshold.
func (c *Controller) Reconcile() Report {
	var rep Report
	rep.LocksRemoved = c.locks.RemoveAll()

	for _, ent := range c.records.List() {
		id := ent.WorkspaceID
		if !c.verifier.RecordIsValid(ent.Record) {
			c.cleanup(id)
			rep.RecordsRemoved++
			continue
		}
		if stale, hasHB := c.hb.IsStale(id, heartbeat.RecoveryMaxAge); hasHB && stale {
			slog.Warn("Reconcile found hung instance", "workspace", id, "pid", ent.Record.PID)
			if err := c.gracefulStop(ent.Record.PID, c.port(id)); err != nil {
				slog.Warn("Failed to stop hung instance", "workspace", id, "pid", ent.Record.PID, "error", err)
			}
			c.cleanup(id)
			rep.HungStopped++
		}
	}

	metrics.SetReconcile(rep.LocksRemoved, rep.RecordsRemoved, rep.HungStopped)
	c.emit(history.EventReconcile, "", 0,
		fmt.Sprintf("locks=%d records=%d hung=%d", rep.LocksRemoved, rep.RecordsRemoved, rep.HungStopped))
	slog.Info("Reconcile finished",
		"locks_removed", rep.LocksRemoved,
		"records_removed", rep.RecordsRemoved,
		"hung_stopped", rep.HungStopped)
	return rep
}

// Processes returns every live process matching the service signature,
// for diagnostics.
func (c *Controller) Processes() []probe.ProcessInfo {
	return c.scanner.Scan()
}

// KillOrphans force-kills every signature match regardless of PID
// records. Disaster recovery path; idempotent.
func (c *Controller) KillOrphans() []int {
	killed := c.scanner.ScanAndKill()
	if len(killed) > 0 {
		metrics.AddOrphansKilled(len(killed))
		for _, pid := range killed {
			c.emit(history.EventOrphanKill, "", pid, "")
		}
	}
	return killed
}

// Logs returns a bounded tail of the instance's service log. A missing
// log file yields an empty chunk, not an error.
func (c *Controller) Logs(id string, tailBytes int64) (LogChunk, error) {
	if tailBytes <= 0 {
		tailBytes = DefaultLogTailBytes
	}
	if tailBytes > MaxLogTailBytes {
		tailBytes = MaxLogTailBytes
	}
	path := c.opts.Layout.LogFile(id)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LogChunk{Path: path}, nil
		}
		return LogChunk{}, err
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil {
		return LogChunk{}, err
	}
	start := fi.Size() - tailBytes
	if start < 0 {
		start = 0
	}
	if _, err := f.Seek(start, 0); err != nil {
		return LogChunk{}, err
	}
	buf := make([]byte, fi.Size()-start)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return LogChunk{}, err
	}
	return LogChunk{Path: path, Content: string(buf[:n]), Truncated: start > 0}, nil
}

// AutoStart kicks off a background start attempt for the workspace,
// first probing the health endpoint so an already-answering service is
// never doubled up. Returns false when an attempt is already running.
func (c *Controller) AutoStart(id string, command []string) bool {
	if !c.autoStarting.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer c.autoStarting.Store(false)
		if c.healthy(id) {
			slog.Info("Service already healthy, skipping auto-start", "workspace", id)
			return
		}
		if _, err := c.Start(id, command); err != nil {
			slog.Warn("Auto-start failed", "workspace", id, "error", err)
		}
	}()
	return true
}

// AutoStarting reports whether a background auto-start attempt is in
// flight.
func (c *Controller) AutoStarting() bool { return c.autoStarting.Load() }

// healthy probes the service health endpoint.
func (c *Controller) healthy(id string) bool {
	url := "http://127.0.0.1:" + strconv.Itoa(c.port(id)) + c.opts.HealthPath
	client := &http.Client{Timeout: healthProbeTimeout}
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// emit sends a history event to every sink, best-effort.
func (c *Controller) emit(t history.EventType, id string, pid int, detail string) {
	if len(c.opts.Sinks) == 0 {
		return
	}
	evt := history.Event{
		Type:        t,
		OccurredAt:  time.Now().UTC(),
		WorkspaceID: id,
		PID:         pid,
		Detail:      detail,
	}
	for _, s := range c.opts.Sinks {
		_ = s.Send(context.Background(), evt)
	}
}

// readLogTail returns up to n trailing bytes of path, empty on any error.
func readLogTail(path string, n int64) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil {
		return ""
	}
	start := fi.Size() - n
	if start < 0 {
		start = 0
	}
	if _, err := f.Seek(start, 0); err != nil {
		return ""
	}
	buf := make([]byte, fi.Size()-start)
	m, _ := f.Read(buf)
	return string(buf[:m])
}
