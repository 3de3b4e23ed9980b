package workspace

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Layout resolves the on-disk locations the supervisor shares with its
// collaborators: the run directory holding pid/lock files and one
// directory per workspace holding .env, data/ and logs/.
type Layout struct {
	Root string
}

func (l Layout) RunDir() string        { return filepath.Join(l.Root, "run") }
func (l Layout) WorkspacesDir() string { return filepath.Join(l.Root, "workspaces") }
func (l Layout) Dir(id string) string  { return filepath.Join(l.WorkspacesDir(), id) }

func (l Layout) DataDir(id string) string { return filepath.Join(l.Dir(id), "data") }

// HeartbeatFile is written by the supervised service itself; the
// supervisor only reads and deletes it.
func (l Layout) HeartbeatFile(id string) string {
	return filepath.Join(l.DataDir(id), "backend.heartbeat")
}

func (l Layout) LogDir(id string) string  { return filepath.Join(l.Dir(id), "logs") }
func (l Layout) LogFile(id string) string { return filepath.Join(l.LogDir(id), "backend.log") }
func (l Layout) EnvFile(id string) string { return filepath.Join(l.Dir(id), ".env") }

// EnsureDirs creates the directories a start attempt needs.
func (l Layout) EnsureDirs(id string) error {
	for _, d := range []string{l.RunDir(), l.Dir(id), l.DataDir(id), l.LogDir(id)} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return err
		}
	}
	return nil
}

// ReadEnv parses the workspace .env file into KEY=VALUE pairs, preserving
// file order. Blank lines and # comments are skipped. A missing file
// yields an empty list.
func (l Layout) ReadEnv(id string) []string {
	b, err := os.ReadFile(l.EnvFile(id))
	if err != nil {
		return nil
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		i := strings.IndexByte(t, '=')
		if i <= 0 {
			continue
		}
		k := strings.TrimSpace(t[:i])
		v := strings.TrimSpace(t[i+1:])
		if k == "" {
			continue
		}
		out = append(out, k+"="+v)
	}
	return out
}

// APIPort returns the workspace's configured service port from API_PORT
// in its .env file, or def when absent or unparseable.
func (l Layout) APIPort(id string, def int) int {
	for _, kv := range l.ReadEnv(id) {
		if v, ok := strings.CutPrefix(kv, "API_PORT="); ok {
			if p, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && p > 0 && p < 65536 {
				return p
			}
		}
	}
	return def
}
