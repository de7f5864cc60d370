package projects

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// manifestTech maps project manifest filenames to the technology they imply.
var manifestTech = map[string]string{
	"go.mod":           "go",
	"package.json":     "node",
	"pyproject.toml":   "python",
	"requirements.txt": "python",
	"setup.py":         "python",
	"Cargo.toml":       "rust",
	"pom.xml":          "java",
	"build.gradle":     "java",
	"Gemfile":          "ruby",
	"composer.json":    "php",
	"mix.exs":          "elixir",
	"Dockerfile":       "docker",
	"docker-compose.yml": "docker",
}

// skipDirs are directory names never descended into during discovery.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"venv":         true,
	".venv":        true,
	"target":       true,
	"dist":         true,
	"build":        true,
	"__pycache__":  true,
}

// maxDiscoveryDepth bounds the walk below the base path. Projects nested
// deeper than this are not discovered.
const maxDiscoveryDepth = 4

// Discoverer finds development projects under a base path by walking for
// well-known manifests.
type Discoverer struct {
	dir    *Directory
	logger *zap.Logger
}

// NewDiscoverer creates a manifest-walking project discoverer.
func NewDiscoverer(dir *Directory, logger *zap.Logger) *Discoverer {
	return &Discoverer{dir: dir, logger: logger}
}

// DiscoverAndAnalyze walks basePath for project manifests. Each directory
// containing at least one manifest becomes a ProjectAnalysis; the walk does
// not descend into a discovered project (nested manifests belong to the
// parent project).
func (s *Discoverer) DiscoverAndAnalyze(ctx context.Context, basePath string) ([]ProjectAnalysis, error) {
	base, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}

	var found []ProjectAnalysis
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal; only a failure at
			// the base path aborts discovery.
			if path == base {
				return err
			}
			s.logger.Debug("discovery: skipping unreadable path",
				zap.String("path", path), zap.Error(err))
			return fs.SkipDir
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() {
			return nil
		}
		if skipDirs[d.Name()] {
			return fs.SkipDir
		}
		if depth(base, path) > maxDiscoveryDepth {
			return fs.SkipDir
		}

		analysis, ok := inspectDir(path)
		if !ok {
			return nil
		}
		found = append(found, analysis)
		if path != base {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("project discovery complete",
		zap.String("base", base),
		zap.Int("projects", len(found)),
	)
	return found, nil
}

// Save persists a discovered project into the directory and returns its ID.
func (s *Discoverer) Save(ctx context.Context, analysis *ProjectAnalysis) (string, error) {
	return s.dir.Upsert(ctx, analysis)
}

// inspectDir reports whether dir is a project root, based on its manifests.
func inspectDir(dir string) (ProjectAnalysis, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ProjectAnalysis{}, false
	}

	var manifests []string
	techSet := map[string]bool{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if tech, ok := manifestTech[e.Name()]; ok {
			manifests = append(manifests, e.Name())
			techSet[tech] = true
		}
	}
	if len(manifests) == 0 {
		return ProjectAnalysis{}, false
	}

	techs := make([]string, 0, len(techSet))
	for t := range techSet {
		techs = append(techs, t)
	}
	return ProjectAnalysis{
		Path:         dir,
		Name:         filepath.Base(dir),
		Technologies: techs,
		Manifests:    manifests,
	}, true
}

func depth(base, path string) int {
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
