package heartbeat

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/okanda/warden/internal/workspace"
)

// Record is the liveness file the supervised service rewrites on a fixed
// interval. The supervisor never writes it.
type Record struct {
	PID       int     `json:"pid"`
	Timestamp float64 `json:"timestamp"`
	Phase     string  `json:"phase"`
	HTTPReady bool    `json:"http_ready"`
}

// Staleness thresholds. The short one answers "is it alive" status
// queries; the long one makes an instance eligible for forced recovery.
const (
	StatusMaxAge   = 30 * time.Second
	RecoveryMaxAge = 60 * time.Second
)

// Monitor reads and clears heartbeat files. It is a pure reader/cleaner.
type Monitor struct {
	Layout workspace.Layout
}

// Read returns the heartbeat record for a workspace, if one exists and
// parses.
func (m Monitor) Read(id string) (Record, bool) {
	b, err := os.ReadFile(m.Layout.HeartbeatFile(id))
	if err != nil {
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(b))), &rec); err != nil {
		return Record{}, false
	}
	return rec, true
}

// Age returns seconds since the last heartbeat write. ok is false when no
// heartbeat file exists, which callers must treat as "fall back to
// PID-liveness", not as stale.
func (m Monitor) Age(id string) (float64, bool) {
	rec, ok := m.Read(id)
	if !ok {
		return 0, false
	}
	return float64(time.Now().UnixNano())/1e9 - rec.Timestamp, true
}

// IsStale reports whether the heartbeat is older than maxAge. ok is false
// when no heartbeat file exists.
func (m Monitor) IsStale(id string, maxAge time.Duration) (stale, ok bool) {
	age, ok := m.Age(id)
	if !ok {
		return false, false
	}
	return age > maxAge.Seconds(), true
}

// Clear removes the heartbeat file so a new instance cannot momentarily
// read the previous instance's last write.
func (m Monitor) Clear(id string) {
	_ = os.Remove(m.Layout.HeartbeatFile(id))
}
