package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewSloggerLevels(t *testing.T) {
	l := Config{Level: "warn"}.NewSlogger()
	if l.Enabled(nil, -4) { // debug
		t.Fatalf("debug should be disabled at warn level")
	}
	if !l.Enabled(nil, 8) { // error
		t.Fatalf("error should be enabled at warn level")
	}
}

func TestNewSloggerFileOutput(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "warden.log")
	l := Config{Level: "info", Format: "json", File: file}.NewSlogger()
	l.Info("daemon started", "listen", ":8080")

	b, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"msg":"daemon started"`) {
		t.Fatalf("log line missing: %s", b)
	}
}

func TestDefaultLevelIsInfo(t *testing.T) {
	l := Config{}.NewSlogger()
	if l.Enabled(nil, -4) {
		t.Fatalf("debug should be disabled by default")
	}
	if !l.Enabled(nil, 0) {
		t.Fatalf("info should be enabled by default")
	}
}
