package pidfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Owner identifies who spawned the recorded process.
type Owner string

const (
	OwnerWarden   Owner = "warden"
	OwnerExternal Owner = "external"
)

// Record is the durable per-workspace PID record.
// StartedAt == 0 means a legacy record; identity validation then falls
// back to command-line signature matching only.
type Record struct {
	PID       int   `json:"pid"`
	StartedBy Owner `json:"started_by"`
	StartedAt int64 `json:"started_at"`
}

// Entry pairs a record with the workspace it belongs to.
type Entry struct {
	WorkspaceID string
	Record      Record
	Path        string
}

// Store persists one PID record per workspace id under Dir as <id>.pid.
// A corrupt or unparseable file is treated the same as no record.
type Store struct {
	Dir string
}

// Path returns the pid file path for a workspace id.
func (s Store) Path(id string) string {
	return filepath.Join(s.Dir, id+".pid")
}

// Write serializes the record as JSON, stamping StartedAt with now.
func (s Store) Write(id string, pid int, owner Owner) error {
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return err
	}
	rec := Record{PID: pid, StartedBy: owner, StartedAt: time.Now().Unix()}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path(id), b, 0o600)
}

// Read parses the record for id. It accepts the structured JSON shape and
// the legacy bare-integer shape; the legacy form is normalized to
// {pid, warden, 0} at this boundary so the two shapes never propagate.
func (s Store) Read(id string) (Record, bool) {
	b, err := os.ReadFile(s.Path(id))
	if err != nil {
		return Record{}, false
	}
	return Parse(b)
}

// Parse decodes the on-disk shapes of a PID record.
func Parse(b []byte) (Record, bool) {
	trimmed := strings.TrimSpace(string(b))
	var rec Record
	if err := json.Unmarshal([]byte(trimmed), &rec); err == nil && rec.PID > 0 {
		if rec.StartedBy == "" {
			rec.StartedBy = OwnerWarden
		}
		return rec, true
	}
	if pid, err := strconv.Atoi(trimmed); err == nil && pid > 0 {
		return Record{PID: pid, StartedBy: OwnerWarden, StartedAt: 0}, true
	}
	return Record{}, false
}

// Delete removes the record file, best-effort.
func (s Store) Delete(id string) {
	_ = os.Remove(s.Path(id))
}

// List scans Dir for *.pid files and returns every parseable record.
func (s Store) List() []Entry {
	var out []Entry
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".pid") {
			continue
		}
		id := strings.TrimSuffix(name, ".pid")
		rec, ok := s.Read(id)
		if !ok {
			continue
		}
		out = append(out, Entry{WorkspaceID: id, Record: rec, Path: s.Path(id)})
	}
	return out
}
