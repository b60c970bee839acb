package container

import (
	"context"
	"time"

	"github.com/jarlah/testcontainers-elixir/docker"
	"github.com/jarlah/testcontainers-elixir/wait"
)

const postgresImagePrefix = "postgres:"

// Postgres builds a PostgreSQL container. Image must begin with
// "postgres:"; Port defaults to an ephemeral mapping of 5432.
type Postgres struct {
	Image    string
	Database string
	User     string
	Password string
	Port     Port // Container defaults to 5432 if unset
}

func (p Postgres) Build(_ context.Context) (docker.ContainerDescriptor, error) {
	if err := requirePrefix(p.Image, postgresImagePrefix); err != nil {
		return docker.ContainerDescriptor{}, err
	}

	user := p.User
	if user == "" {
		user = "postgres"
	}

	port := p.Port
	if port.Container == 0 {
		port.Container = 5432
	}

	return docker.ContainerDescriptor{
		Image: p.Image,
		Environment: map[string]string{
			"POSTGRES_DB":       p.Database,
			"POSTGRES_USER":     user,
			"POSTGRES_PASSWORD": p.Password,
		},
		ExposedPorts: []docker.PortBinding{port.toBinding()},
		WaitStrategies: []wait.Strategy{
			wait.Command{
				Cmd:      []string{"pg_isready", "-U", user},
				Timeout:  60 * time.Second,
				Interval: time.Second,
			},
		},
	}, nil
}
