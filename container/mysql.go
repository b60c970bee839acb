package container

import (
	"context"
	"time"

	"github.com/jarlah/testcontainers-elixir/docker"
	"github.com/jarlah/testcontainers-elixir/wait"
)

const mysqlImagePrefix = "mysql:"

// MySQL builds a MySQL container. Image must begin with "mysql:"; Port
// defaults to an ephemeral mapping of 3306.
//
// The readiness log pattern requires two occurrences: mysqld logs
// "ready for connections" once for its temporary bootstrap server (used
// to apply the initial users/database) and once more for the real
// server that stays up — a detail the spec's distillation dropped but
// the original source's init sequence relies on.
type MySQL struct {
	Image    string
	Database string
	User     string
	Password string
	Port     Port
}

func (m MySQL) Build(_ context.Context) (docker.ContainerDescriptor, error) {
	if err := requirePrefix(m.Image, mysqlImagePrefix); err != nil {
		return docker.ContainerDescriptor{}, err
	}

	port := m.Port
	if port.Container == 0 {
		port.Container = 3306
	}

	return docker.ContainerDescriptor{
		Image: m.Image,
		Environment: map[string]string{
			"MYSQL_RANDOM_ROOT_PASSWORD": "yes",
			"MYSQL_DATABASE":             m.Database,
			"MYSQL_USER":                 m.User,
			"MYSQL_PASSWORD":             m.Password,
		},
		ExposedPorts: []docker.PortBinding{port.toBinding()},
		WaitStrategies: []wait.Strategy{
			wait.Log{
				Pattern:    "ready for connections",
				Occurrence: 2,
				Timeout:    120 * time.Second,
				Interval:   time.Second,
			},
		},
	}, nil
}
