package startlock

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Dir manages per-workspace start locks: zero-byte <id>.lock marker files
// created with O_CREATE|O_EXCL so acquisition has no read-then-create
// window. A lock is only meaningful within one controller process's
// lifetime; Reconcile wipes all locks at startup.
type Dir struct {
	Path string
}

func (d Dir) lockPath(id string) string {
	return filepath.Join(d.Path, id+".lock")
}

// TryAcquire atomically creates the lock file. It returns false when a
// start for this workspace is already in progress.
func (d Dir) TryAcquire(id string) (*Guard, bool) {
	if err := os.MkdirAll(d.Path, 0o750); err != nil {
		return nil, false
	}
	f, err := os.OpenFile(d.lockPath(id), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, false
	}
	_ = f.Close()
	return &Guard{path: d.lockPath(id)}, true
}

// RemoveAll unconditionally deletes every lock file, returning how many
// were removed. Called once at controller startup.
func (d Dir) RemoveAll() int {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		if os.Remove(filepath.Join(d.Path, e.Name())) == nil {
			n++
		}
	}
	return n
}

// Guard releases the lock exactly once on whichever exit path runs first.
// Safe to defer unconditionally.
type Guard struct {
	path string
	once sync.Once
}

func (g *Guard) Release() {
	g.once.Do(func() { _ = os.Remove(g.path) })
}
