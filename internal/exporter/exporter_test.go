package exporter

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestExporter(t *testing.T, autoPush bool) *Exporter {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "export"), "origin", "", autoPush, 300, slog.Default())
}

func writeFakeDB(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("not a real database, but bytes"), 0o644); err != nil {
		t.Fatalf("write fake db: %v", err)
	}
	return path
}

func TestEnsureWorkspace(t *testing.T) {
	exp := newTestExporter(t, false)

	if _, err := exp.EnsureWorkspace(); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}

	for _, name := range []string{".gitattributes", "README.md", ".git"} {
		if _, err := os.Stat(filepath.Join(exp.Dir(), name)); err != nil {
			t.Fatalf("expected %s in workspace: %v", name, err)
		}
	}

	attrs, _ := os.ReadFile(filepath.Join(exp.Dir(), ".gitattributes"))
	if string(attrs) != attributesFile {
		t.Fatalf("unexpected attributes: %q", attrs)
	}

	// Idempotent.
	if _, err := exp.EnsureWorkspace(); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
}

func TestSnapshotCommits(t *testing.T) {
	exp := newTestExporter(t, false)
	src := writeFakeDB(t, t.TempDir(), "vectors.db")

	if err := exp.Snapshot(src, "", false); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if _, err := os.Stat(filepath.Join(exp.Dir(), "vectors.db")); err != nil {
		t.Fatalf("vectors.db missing from workspace: %v", err)
	}
	if _, err := os.Stat(filepath.Join(exp.Dir(), "metadata.json")); err != nil {
		t.Fatalf("metadata.json missing: %v", err)
	}

	pending, err := exp.HasPendingChanges()
	if err != nil {
		t.Fatalf("pending check: %v", err)
	}
	if pending {
		t.Fatal("workspace should be clean after snapshot commit")
	}

	// Re-snapshotting identical content commits nothing and does not error.
	if err := exp.Snapshot(src, "", false); err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
}

func TestSnapshotIncludesFullDB(t *testing.T) {
	exp := newTestExporter(t, false)
	dir := t.TempDir()
	vec := writeFakeDB(t, dir, "vectors.db")
	full := writeFakeDB(t, dir, "claude-mem.db")

	if err := exp.Snapshot(vec, full, false); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, err := os.Stat(filepath.Join(exp.Dir(), "full-export.db")); err != nil {
		t.Fatalf("full-export.db missing: %v", err)
	}
}

func TestShouldAutoPush(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		exp := newTestExporter(t, false)
		if exp.ShouldAutoPush(time.Now().Add(-time.Hour)) {
			t.Fatal("auto-push disabled must never push")
		}
	})

	t.Run("no pending changes", func(t *testing.T) {
		exp := newTestExporter(t, true)
		src := writeFakeDB(t, t.TempDir(), "vectors.db")
		if err := exp.Snapshot(src, "", false); err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if exp.ShouldAutoPush(time.Now().Add(-time.Hour)) {
			t.Fatal("clean workspace must not push")
		}
	})

	t.Run("pending changes and idle", func(t *testing.T) {
		exp := newTestExporter(t, true)
		if _, err := exp.EnsureWorkspace(); err != nil {
			t.Fatalf("ensure: %v", err)
		}
		writeFakeDB(t, exp.Dir(), "vectors.db") // uncommitted change

		if !exp.ShouldAutoPush(time.Now().Add(-time.Hour)) {
			t.Fatal("idle session with pending changes should push")
		}
		if exp.ShouldAutoPush(time.Now()) {
			t.Fatal("recent activity should defer the push")
		}
	})
}

func TestStatus(t *testing.T) {
	exp := newTestExporter(t, false)

	status, err := exp.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != "not initialized" {
		t.Fatalf("status = %q", status)
	}

	src := writeFakeDB(t, t.TempDir(), "vectors.db")
	if err := exp.Snapshot(src, "", false); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	status, err = exp.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status == "not initialized" {
		t.Fatal("workspace should be initialized after snapshot")
	}
}
