// Package projects tracks development projects and provides the discovery
// and analysis collaborators consumed by the scan orchestrator.
package projects

import (
	"context"

	"github.com/AveryNolan/devscope/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ plugin.Plugin = (*Module)(nil)

// Module implements the project directory plugin.
type Module struct {
	logger    *zap.Logger
	directory *Directory
	scanner   *Discoverer
	analyzer  *Analyzer
}

// New creates a new projects module instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "projects",
		Version:     "0.1.0",
		Description: "Tracked-project directory, discovery, and analysis",
		Required:    true,
		Roles:       []string{"project_directory"},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	if err := deps.Store.Migrate(ctx, "projects", migrations()); err != nil {
		return err
	}

	m.directory = NewDirectory(deps.Store.DB())
	m.scanner = NewDiscoverer(m.directory, m.logger.Named("discovery"))
	m.analyzer = NewAnalyzer(m.logger.Named("analyzer"))

	m.logger.Info("projects module initialized")
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	return nil
}

// Directory returns the tracked-project registry.
func (m *Module) Directory() *Directory {
	return m.directory
}

// Discoverer returns the project discovery collaborator.
func (m *Module) Discoverer() *Discoverer {
	return m.scanner
}

// Analyzer returns the per-project analysis collaborator.
func (m *Module) Analyzer() *Analyzer {
	return m.analyzer
}
