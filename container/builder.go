// Package container implements the polymorphic builder protocol: each
// image family (Postgres, MySQL, Redis, Kafka, or a generic
// direct-descriptor case) knows how to turn its own declarative config
// into a normalized docker.ContainerDescriptor. Dispatch is by Go
// interface satisfaction, not inheritance, per the teacher's
// DockerProviderOption pattern generalized to this spec's Builder
// contract.
package container

import (
	"context"
	"fmt"

	"github.com/jarlah/testcontainers-elixir/docker"
)

// Builder normalizes a declarative, image-family-specific config into a
// docker.ContainerDescriptor. Validation errors (wrong image prefix,
// missing required option) are returned here, before any I/O — spec's
// "configuration errors are raised at builder time".
type Builder interface {
	Build(ctx context.Context) (docker.ContainerDescriptor, error)
}

// InvalidImageError is returned when a builder's configured image does
// not begin with the variant's canonical prefix.
type InvalidImageError struct {
	ExpectedPrefix string
	Actual         string
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("container: invalid image %q: expected prefix %q", e.Actual, e.ExpectedPrefix)
}

// MissingRequiredOptionError is returned when a builder is missing a
// required configuration field.
type MissingRequiredOptionError struct {
	Name string
}

func (e *MissingRequiredOptionError) Error() string {
	return fmt.Sprintf("container: missing required option %q", e.Name)
}

func requirePrefix(image, prefix string) error {
	if len(image) < len(prefix) || image[:len(prefix)] != prefix {
		return &InvalidImageError{ExpectedPrefix: prefix, Actual: image}
	}
	return nil
}

// Port is a shorthand for an exposed-port request: either just a
// container port (ephemeral host port) or an explicit (container, host)
// fixed mapping.
type Port struct {
	Container int
	Host      int // 0 means "let the daemon assign one"
}

func (p Port) toBinding() docker.PortBinding {
	return docker.PortBinding{ContainerPort: p.Container, HostPort: p.Host}
}

// Generic wraps a caller-supplied descriptor directly — the "generic
// direct-descriptor case" from the spec. Build performs no validation:
// the caller is responsible for the descriptor's correctness.
type Generic struct {
	Descriptor docker.ContainerDescriptor
}

func (g Generic) Build(_ context.Context) (docker.ContainerDescriptor, error) {
	return g.Descriptor, nil
}
