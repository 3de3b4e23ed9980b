package startlock

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestTryAcquireIsExclusive(t *testing.T) {
	d := Dir{Path: t.TempDir()}
	g, ok := d.TryAcquire("ws1")
	if !ok {
		t.Fatalf("first acquire should succeed")
	}
	if _, ok := d.TryAcquire("ws1"); ok {
		t.Fatalf("second acquire should fail while held")
	}
	g.Release()
	g2, ok := d.TryAcquire("ws1")
	if !ok {
		t.Fatalf("acquire after release should succeed")
	}
	g2.Release()
}

func TestAcquireDifferentIDsIndependent(t *testing.T) {
	d := Dir{Path: t.TempDir()}
	ga, ok := d.TryAcquire("a")
	if !ok {
		t.Fatalf("acquire a")
	}
	defer ga.Release()
	gb, ok := d.TryAcquire("b")
	if !ok {
		t.Fatalf("acquire b should not be blocked by a")
	}
	gb.Release()
}

func TestReleaseIdempotent(t *testing.T) {
	d := Dir{Path: t.TempDir()}
	g, ok := d.TryAcquire("ws1")
	if !ok {
		t.Fatalf("acquire")
	}
	g.Release()
	g.Release() // must not panic or remove a re-acquired lock twice
	if _, ok := d.TryAcquire("ws1"); !ok {
		t.Fatalf("lock should be free after release")
	}
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	d := Dir{Path: t.TempDir()}
	const n = 16
	var wg sync.WaitGroup
	wins := make(chan *Guard, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g, ok := d.TryAcquire("ws1"); ok {
				wins <- g
			}
		}()
	}
	wg.Wait()
	close(wins)
	var got []*Guard
	for g := range wins {
		got = append(got, g)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(got))
	}
	got[0].Release()
}

func TestRemoveAllWipesLocks(t *testing.T) {
	d := Dir{Path: t.TempDir()}
	if _, ok := d.TryAcquire("a"); !ok {
		t.Fatalf("acquire a")
	}
	if _, ok := d.TryAcquire("b"); !ok {
		t.Fatalf("acquire b")
	}
	// Unrelated files survive.
	if err := os.WriteFile(filepath.Join(d.Path, "a.pid"), []byte("1"), 0o600); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if n := d.RemoveAll(); n != 2 {
		t.Fatalf("RemoveAll removed %d, want 2", n)
	}
	if _, err := os.Stat(filepath.Join(d.Path, "a.pid")); err != nil {
		t.Fatalf("pid file should survive RemoveAll: %v", err)
	}
	if _, ok := d.TryAcquire("a"); !ok {
		t.Fatalf("lock should be acquirable after RemoveAll")
	}
}
