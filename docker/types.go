// Package docker wraps the Docker Engine HTTP API behind typed,
// retry-free request/reply operations: pull an image, create/start/stop
// a container, inspect it, run an exec, fetch logs, inspect the bridge
// network. No concurrency and no retries live here — that is the wait
// strategies' and the session manager's job.
package docker

import (
	"fmt"

	"github.com/docker/go-connections/nat"

	"github.com/jarlah/testcontainers-elixir/wait"
)

// PortBinding is one exposed-port entry in a ContainerDescriptor. HostPort
// is 0 for an ephemeral (daemon-assigned) binding, or a fixed host port
// to bind to.
type PortBinding struct {
	ContainerPort int
	HostPort      int
}

func (p PortBinding) natPort() (nat.Port, error) {
	return nat.NewPort("tcp", fmt.Sprintf("%d", p.ContainerPort))
}

// BindMount is a host-path bind mount, `mode` is "ro" or "rw".
type BindMount struct {
	HostSrc       string
	ContainerDest string
	Mode          string
}

// BindVolume is a named-volume mount.
type BindVolume struct {
	VolumeName    string
	ContainerDest string
	ReadOnly      bool
}

// ContainerDescriptor is the normalized container-creation request the
// facade consumes. It is the output of the builder protocol (package
// container) and the input to CreateContainer.
type ContainerDescriptor struct {
	Image          string
	Cmd            []string
	ExposedPorts   []PortBinding
	Environment    map[string]string
	Labels         map[string]string
	BindMounts     []BindMount
	BindVolumes    []BindVolume
	AutoRemove     bool
	Privileged     bool
	Platform       string // e.g. "linux/amd64", optional
	WaitStrategies []wait.Strategy
}

// ContainerHandle is returned to the caller after a successful start.
type ContainerHandle struct {
	ContainerID  string
	Image        string
	ExposedPorts []PortBinding
	Environment  map[string]string
	Labels       map[string]string
}

// MappedPort returns the host port bound to containerPort, or (0, false)
// if the container does not expose it.
func (h ContainerHandle) MappedPort(containerPort int) (int, bool) {
	for _, p := range h.ExposedPorts {
		if p.ContainerPort == containerPort {
			return p.HostPort, p.HostPort > 0
		}
	}
	return 0, false
}
