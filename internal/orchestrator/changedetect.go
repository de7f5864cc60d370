package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// checksumPatterns is the bounded glob set sampled per project. Manifests
// first, then common source extensions.
var checksumPatterns = []string{
	"go.mod", "go.sum", "package.json", "package-lock.json", "pyproject.toml",
	"requirements.txt", "Cargo.toml", "pom.xml", "build.gradle", "Gemfile",
	"composer.json", "Makefile", "Dockerfile", "docker-compose.yml",
	"*.go", "*.py", "*.js", "*.ts", "*.rs", "*.java", "*.rb", "*.php",
}

// maxChecksumFiles caps how many sampled files feed one checksum.
const maxChecksumFiles = 50

// ChangeDetector decides whether a project warrants a rescan by hashing the
// names and mtimes of a bounded sample of its files. This is a deliberate
// speed-over-completeness trade-off: content edits that preserve mtime, or
// changes outside the sampled glob set, are not detected.
type ChangeDetector struct {
	store  *orchStore
	logger *zap.Logger
}

// NewChangeDetector creates a detector persisting checksums via store.
func NewChangeDetector(store *orchStore, logger *zap.Logger) *ChangeDetector {
	return &ChangeDetector{store: store, logger: logger}
}

// Checksum samples up to 50 files from the project's glob set (root and one
// level down), sorts them, and hashes the (name, mtime) pairs. Two calls
// with no filesystem changes in between return the same string.
func (d *ChangeDetector) Checksum(projectPath string) (string, error) {
	if _, err := os.Stat(projectPath); err != nil {
		return "", fmt.Errorf("checksum %s: %w", projectPath, err)
	}

	seen := make(map[string]bool)
	var files []string
	for _, pattern := range checksumPatterns {
		for _, glob := range []string{
			filepath.Join(projectPath, pattern),
			filepath.Join(projectPath, "*", pattern),
		} {
			matches, err := filepath.Glob(glob)
			if err != nil {
				// Only malformed patterns error here; ours are static.
				continue
			}
			for _, m := range matches {
				if !seen[m] {
					seen[m] = true
					files = append(files, m)
				}
			}
		}
	}

	sort.Strings(files)
	if len(files) > maxChecksumFiles {
		files = files[:maxChecksumFiles]
	}

	h := sha256.New()
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			// File vanished between glob and stat; its absence still
			// perturbs the hash via the name.
			fmt.Fprintf(h, "%s|gone\n", filepath.Base(f))
			continue
		}
		rel, err := filepath.Rel(projectPath, f)
		if err != nil {
			rel = filepath.Base(f)
		}
		fmt.Fprintf(h, "%s|%d\n", rel, info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FindChangedProjects returns the tracked, existing paths whose current
// checksum differs from the stored value. A path with no stored entry is not
// reported as changed; first-scan semantics belong to full and discovery
// scans.
func (d *ChangeDetector) FindChangedProjects(ctx context.Context, paths []string) ([]string, error) {
	stored, err := d.store.LoadChecksums(ctx)
	if err != nil {
		return nil, fmt.Errorf("load checksums: %w", err)
	}

	var changed []string
	for _, path := range paths {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		prev, tracked := stored[path]
		if !tracked {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			d.logger.Debug("tracked project path missing, skipping",
				zap.String("path", path))
			continue
		}
		current, err := d.Checksum(path)
		if err != nil {
			d.logger.Debug("checksum failed", zap.String("path", path), zap.Error(err))
			continue
		}
		if current != prev {
			changed = append(changed, path)
		}
	}
	return changed, nil
}

// Commit recomputes and stores the checksum for a project after a successful
// scan of it.
func (d *ChangeDetector) Commit(ctx context.Context, projectPath string) error {
	sum, err := d.Checksum(projectPath)
	if err != nil {
		return err
	}
	return d.store.SaveChecksum(ctx, projectPath, sum)
}
