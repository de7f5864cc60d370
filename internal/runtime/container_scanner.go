package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// composeWorkdirLabel is set by docker compose and points at the project
// directory a container was started from.
const composeWorkdirLabel = "com.docker.compose.project.working_dir"

// ContainerScanner lists containers from a container engine. Absence of an
// engine is a valid runtime state: implementations must return an empty
// list, not an error, when nothing is running.
type ContainerScanner interface {
	Scan(ctx context.Context) ([]ContainerRecord, error)
}

// NewContainerScanner selects the engine-backed scanner when the Docker
// socket exists, and the no-op scanner otherwise.
func NewContainerScanner(socketPath string, logger *zap.Logger) ContainerScanner {
	if socketPath != "" {
		if _, err := os.Stat(socketPath); err == nil {
			logger.Info("container engine detected", zap.String("socket", socketPath))
			return NewDockerScanner(socketPath, logger)
		}
	}
	logger.Info("no container engine available, container scanning disabled")
	return noopScanner{}
}

// noopScanner is used when no container engine is configured or reachable.
type noopScanner struct{}

func (noopScanner) Scan(context.Context) ([]ContainerRecord, error) {
	return nil, nil
}

// DockerScanner lists containers via the Docker Engine API over the local
// unix socket.
type DockerScanner struct {
	client *http.Client
	logger *zap.Logger
}

// NewDockerScanner creates a scanner speaking the Engine API on socketPath.
func NewDockerScanner(socketPath string, logger *zap.Logger) *DockerScanner {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &DockerScanner{
		client: &http.Client{Transport: transport, Timeout: 5 * time.Second},
		logger: logger,
	}
}

// Scan lists all containers (running and stopped). An unreachable engine
// produces an empty result: the engine stopping after startup is the same
// valid state as it never having existed.
func (s *DockerScanner) Scan(ctx context.Context) ([]ContainerRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"http://docker/containers/json?all=true", nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("container engine unreachable", zap.Error(err))
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Debug("container list rejected", zap.Int("status", resp.StatusCode))
		return nil, nil
	}

	containers, err := parseContainerList(resp.Body)
	if err != nil {
		s.logger.Debug("container list unparseable", zap.Error(err))
		return nil, nil
	}

	records := make([]ContainerRecord, 0, len(containers))
	for i := range containers {
		records = append(records, containers[i].toRecord())
	}
	return records, nil
}

// dockerContainer mirrors the Engine API list response.
type dockerContainer struct {
	ID      string            `json:"Id"`
	Names   []string          `json:"Names"`
	Image   string            `json:"Image"`
	State   string            `json:"State"`
	Created int64             `json:"Created"`
	Ports   []dockerPort      `json:"Ports"`
	Labels  map[string]string `json:"Labels"`
}

type dockerPort struct {
	PrivatePort int    `json:"PrivatePort"`
	PublicPort  int    `json:"PublicPort"`
	Type        string `json:"Type"`
}

// parseContainerList parses the JSON response from /containers/json.
func parseContainerList(r io.Reader) ([]dockerContainer, error) {
	var containers []dockerContainer
	if err := json.NewDecoder(r).Decode(&containers); err != nil {
		return nil, fmt.Errorf("decode container list: %w", err)
	}
	return containers, nil
}

func (c *dockerContainer) toRecord() ContainerRecord {
	rec := ContainerRecord{
		ID:        c.ID,
		Name:      containerName(c.Names),
		Image:     c.Image,
		Status:    c.State,
		Labels:    c.Labels,
		CreatedAt: time.Unix(c.Created, 0).UTC(),
	}
	for _, p := range c.Ports {
		rec.Ports = append(rec.Ports, PortMapping{
			HostPort:      p.PublicPort,
			ContainerPort: p.PrivatePort,
			Protocol:      p.Type,
		})
	}
	if workdir, ok := c.Labels[composeWorkdirLabel]; ok {
		rec.ProjectPath = workdir
	}
	return rec
}

// containerName extracts a clean name from Engine API names (removes leading /).
func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}
