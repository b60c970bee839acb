package container

import (
	"context"
	"time"

	"github.com/jarlah/testcontainers-elixir/docker"
	"github.com/jarlah/testcontainers-elixir/wait"
)

const redisImagePrefix = "redis:"

// Redis builds a Redis container. Image must begin with "redis:"; Port
// defaults to an ephemeral mapping of 6379. No required environment.
type Redis struct {
	Image string
	Port  Port
}

func (r Redis) Build(_ context.Context) (docker.ContainerDescriptor, error) {
	if err := requirePrefix(r.Image, redisImagePrefix); err != nil {
		return docker.ContainerDescriptor{}, err
	}

	port := r.Port
	if port.Container == 0 {
		port.Container = 6379
	}

	return docker.ContainerDescriptor{
		Image:        r.Image,
		ExposedPorts: []docker.PortBinding{port.toBinding()},
		WaitStrategies: []wait.Strategy{
			wait.Command{
				Cmd:      []string{"redis-cli", "PING"},
				Timeout:  60 * time.Second,
				Interval: time.Second,
			},
		},
	}, nil
}
