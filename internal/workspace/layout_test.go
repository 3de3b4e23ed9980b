package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLayoutPaths(t *testing.T) {
	l := Layout{Root: "/var/lib/okanda"}
	if got := l.HeartbeatFile("ws1"); got != filepath.Join("/var/lib/okanda", "workspaces", "ws1", "data", "backend.heartbeat") {
		t.Fatalf("heartbeat path: %s", got)
	}
	if got := l.LogFile("ws1"); got != filepath.Join("/var/lib/okanda", "workspaces", "ws1", "logs", "backend.log") {
		t.Fatalf("log path: %s", got)
	}
}

func TestReadEnvSkipsCommentsAndBlank(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	if err := l.EnsureDirs("ws1"); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	content := "# comment\n\nAPI_PORT=19000\nTOKEN = abc \nBROKEN\n=novalue\n"
	if err := os.WriteFile(l.EnvFile("ws1"), []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	kvs := l.ReadEnv("ws1")
	if len(kvs) != 2 {
		t.Fatalf("got %d pairs, want 2: %v", len(kvs), kvs)
	}
	if kvs[0] != "API_PORT=19000" || kvs[1] != "TOKEN=abc" {
		t.Fatalf("unexpected pairs: %v", kvs)
	}
}

func TestAPIPortFallsBackToDefault(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	if err := l.EnsureDirs("ws1"); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	if got := l.APIPort("ws1", 18900); got != 18900 {
		t.Fatalf("missing env should yield default, got %d", got)
	}
	if err := os.WriteFile(l.EnvFile("ws1"), []byte("API_PORT=nope\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if got := l.APIPort("ws1", 18900); got != 18900 {
		t.Fatalf("unparseable port should yield default, got %d", got)
	}
	if err := os.WriteFile(l.EnvFile("ws1"), []byte("API_PORT=19001\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if got := l.APIPort("ws1", 18900); got != 19001 {
		t.Fatalf("configured port not honored, got %d", got)
	}
}
