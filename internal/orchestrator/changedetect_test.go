package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/AveryNolan/devscope/internal/store"
)

func newTestDetector(t *testing.T) *ChangeDetector {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.Migrate(context.Background(), "orchestrator", migrations()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewChangeDetector(newOrchStore(st.DB(), zap.NewNop()), zap.NewNop())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "go.mod"), "module example.test\n")
	writeFile(t, filepath.Join(dir, "main.go"), "package main\n")
	writeFile(t, filepath.Join(dir, "pkg", "util.go"), "package pkg\n")
	return dir
}

func TestChecksumStability(t *testing.T) {
	d := newTestDetector(t)
	dir := newTestProject(t)

	first, err := d.Checksum(dir)
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	second, err := d.Checksum(dir)
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	if first != second {
		t.Fatalf("unchanged project produced different checksums:\n%s\n%s", first, second)
	}
}

func TestChecksumSensitivity(t *testing.T) {
	d := newTestDetector(t)
	dir := newTestProject(t)

	before, err := d.Checksum(dir)
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}

	// Bump the mtime of one sampled file.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "main.go"), future, future); err != nil {
		t.Fatal(err)
	}

	after, err := d.Checksum(dir)
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	if before == after {
		t.Fatal("mtime change did not change the checksum")
	}
}

func TestChecksumNewFileDetected(t *testing.T) {
	d := newTestDetector(t)
	dir := newTestProject(t)

	before, _ := d.Checksum(dir)
	writeFile(t, filepath.Join(dir, "extra.go"), "package main\n")
	after, _ := d.Checksum(dir)
	if before == after {
		t.Fatal("new sampled file did not change the checksum")
	}
}

func TestFindChangedProjects(t *testing.T) {
	ctx := context.Background()
	d := newTestDetector(t)

	touched := newTestProject(t)
	untouched := newTestProject(t)
	untracked := newTestProject(t)

	for _, p := range []string{touched, untouched} {
		if err := d.Commit(ctx, p); err != nil {
			t.Fatalf("commit %s: %v", p, err)
		}
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(touched, "main.go"), future, future); err != nil {
		t.Fatal(err)
	}

	changed, err := d.FindChangedProjects(ctx, []string{touched, untouched, untracked})
	if err != nil {
		t.Fatalf("find changed: %v", err)
	}

	if len(changed) != 1 || changed[0] != touched {
		t.Fatalf("changed = %v, want exactly [%s]", changed, touched)
	}
}

func TestFindChangedProjectsFirstScanNotChanged(t *testing.T) {
	d := newTestDetector(t)
	dir := newTestProject(t)

	// No stored entry: not reported as changed.
	changed, err := d.FindChangedProjects(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("find changed: %v", err)
	}
	if len(changed) != 0 {
		t.Fatalf("untracked project reported changed: %v", changed)
	}
}
