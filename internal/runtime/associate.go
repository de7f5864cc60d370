package runtime

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Associator maps a process, service, or container to a tracked project.
// The path map is refreshed periodically from the project directory and
// swapped atomically; lookups take a read lock only.
type Associator struct {
	mu     sync.RWMutex
	byPath map[string]string // project path -> project ID
	paths  []string          // sorted project paths, longest first
}

// NewAssociator creates an empty associator.
func NewAssociator() *Associator {
	return &Associator{byPath: make(map[string]string)}
}

// Update replaces the tracked project mapping.
func (a *Associator) Update(mapping map[string]string) {
	byPath := make(map[string]string, len(mapping))
	paths := make([]string, 0, len(mapping))
	for p, id := range mapping {
		clean := filepath.Clean(p)
		byPath[clean] = id
		paths = append(paths, clean)
	}
	// Longest paths first so the most specific project wins containment.
	sort.Slice(paths, func(i, j int) bool { return len(paths[i]) > len(paths[j]) })

	a.mu.Lock()
	a.byPath = byPath
	a.paths = paths
	a.mu.Unlock()
}

// Associate resolves a working directory and command line to a project.
// Priority order, first match wins:
//  1. exact working-directory match
//  2. working directory is a descendant of a tracked project path
//  3. tracked project path appears in the command line
//
// No match returns ok=false; that is the normal outcome for non-project
// processes.
func (a *Associator) Associate(workingDir, cmdline string) (projectID, projectPath string, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if workingDir != "" {
		cwd := filepath.Clean(workingDir)
		if id, found := a.byPath[cwd]; found {
			return id, cwd, true
		}
		for _, p := range a.paths {
			if isDescendant(p, cwd) {
				return a.byPath[p], p, true
			}
		}
	}

	if cmdline != "" {
		for _, p := range a.paths {
			if strings.Contains(cmdline, p) {
				return a.byPath[p], p, true
			}
		}
	}

	return "", "", false
}

// isDescendant reports whether child is strictly inside parent, respecting
// path separators ("/proj1" must not match "/proj10").
func isDescendant(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
