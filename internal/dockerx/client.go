// Package dockerx observes the container runtime through the Docker Engine
// API. The running/not-running state of the compose service is queried
// imperatively and never cached.
package dockerx

import (
	"context"

	"github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/blogctl/blogctl/internal/logging"
)

// Compose label keys stamped by docker compose on every container it manages.
const (
	composeProjectLabel = "com.docker.compose.project"
	composeServiceLabel = "com.docker.compose.service"
)

// Client is the interface used by the workflows for Docker observations.
type Client interface {
	// ListServiceContainers returns running containers belonging to the given
	// compose project/service. An empty project matches any project.
	ListServiceContainers(ctx context.Context, project, service string) ([]Container, error)
	// ServiceRunning reports whether the service has at least one running container.
	ServiceRunning(ctx context.Context, project, service string) (bool, error)
}

// dockerAPI is the slice of the Docker SDK the client depends on.
type dockerAPI interface {
	ContainerList(ctx context.Context, options containertypes.ListOptions) ([]types.Container, error)
}

type sdkClient struct {
	cli dockerAPI
}

// NewClient returns an SDK-backed Docker client configured from the environment.
func NewClient() (Client, error) {
	c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &sdkClient{cli: c}, nil
}

func (s *sdkClient) ListServiceContainers(ctx context.Context, project, service string) ([]Container, error) {
	f := filters.NewArgs()
	f.Add("label", composeServiceLabel+"="+service)
	if project != "" {
		f.Add("label", composeProjectLabel+"="+project)
	}
	list, err := s.cli.ContainerList(ctx, containertypes.ListOptions{All: false, Filters: f})
	if err != nil {
		return nil, err
	}
	out := make([]Container, 0, len(list))
	for _, c := range list {
		out = append(out, Container{
			ID:     c.ID,
			Image:  c.Image,
			State:  c.State,
			Labels: c.Labels,
			Names:  c.Names,
		})
	}
	return out, nil
}

func (s *sdkClient) ServiceRunning(ctx context.Context, project, service string) (bool, error) {
	list, err := s.ListServiceContainers(ctx, project, service)
	if err != nil {
		return false, err
	}
	running := len(list) > 0
	logging.Get().Debug().Str("service", service).Bool("running", running).Int("containers", len(list)).Msg("observed service state")
	return running, nil
}
