package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "test")
	l.Info("hidden")
	l.Warn("shown", "kind", "recipes")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "recipes") {
		t.Fatalf("expected warn line with fields: %q", out)
	}
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "chatty", "")
	l.Debug("dbg")
	l.Info("inf")
	if strings.Contains(buf.String(), "dbg") || !strings.Contains(buf.String(), "inf") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestOpenFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "recipebox.log")
	l, c, err := OpenFile(path, "info", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	l.Info("first")
	c.Close()

	l, c, err = OpenFile(path, "info", "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	l.Info("second")
	c.Close()

	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "first") || !strings.Contains(string(b), "second") {
		t.Fatalf("expected both lines, got %q", b)
	}
}
