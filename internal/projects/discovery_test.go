package projects

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func mkProject(t *testing.T, base string, rel string, manifests ...string) string {
	t.Helper()
	dir := filepath.Join(base, rel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, m := range manifests {
		if err := os.WriteFile(filepath.Join(dir, m), []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestDiscoverAndAnalyze(t *testing.T) {
	base := t.TempDir()
	goProj := mkProject(t, base, "svc", "go.mod", "Dockerfile")
	nodeProj := mkProject(t, base, "web", "package.json")
	mkProject(t, base, "empty")
	// Inside node_modules: must never be discovered.
	mkProject(t, base, filepath.Join("web2", "node_modules", "leftpad"), "package.json")

	d := NewDiscoverer(nil, zap.NewNop())
	found, err := d.DiscoverAndAnalyze(context.Background(), base)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	byPath := map[string]ProjectAnalysis{}
	for _, a := range found {
		byPath[a.Path] = a
	}
	if len(found) != 2 {
		t.Fatalf("found %d projects %v, want 2", len(found), found)
	}

	svc, ok := byPath[goProj]
	if !ok {
		t.Fatalf("go project not discovered, got %v", byPath)
	}
	techs := map[string]bool{}
	for _, tech := range svc.Technologies {
		techs[tech] = true
	}
	if !techs["go"] || !techs["docker"] {
		t.Errorf("technologies = %v, want go and docker", svc.Technologies)
	}
	if svc.Name != "svc" {
		t.Errorf("name = %q, want svc", svc.Name)
	}

	if _, ok := byPath[nodeProj]; !ok {
		t.Error("node project not discovered")
	}
}

func TestDiscoveryDoesNotDescendIntoProjects(t *testing.T) {
	base := t.TempDir()
	parent := mkProject(t, base, "mono", "go.mod")
	// A nested manifest belongs to the parent project.
	mkProject(t, base, filepath.Join("mono", "tools"), "package.json")

	d := NewDiscoverer(nil, zap.NewNop())
	found, err := d.DiscoverAndAnalyze(context.Background(), base)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(found) != 1 || found[0].Path != parent {
		t.Fatalf("found = %v, want only %s", found, parent)
	}
}

func TestDiscoveryDepthBound(t *testing.T) {
	base := t.TempDir()
	// Five levels below base: beyond the walk depth.
	mkProject(t, base, filepath.Join("a", "b", "c", "d", "e"), "go.mod")

	d := NewDiscoverer(nil, zap.NewNop())
	found, err := d.DiscoverAndAnalyze(context.Background(), base)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("found = %v, want nothing beyond the depth bound", found)
	}
}

func TestDiscoveryMissingBaseFails(t *testing.T) {
	d := NewDiscoverer(nil, zap.NewNop())
	if _, err := d.DiscoverAndAnalyze(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing base path")
	}
}
