// Package session implements the process-wide session manager: the
// actor that owns the Docker connection, issues the session ID, starts
// the reaper sidecar, and serializes container lifecycle dispatch.
//
// The concurrency model (spec §5, §9) is a single-threaded cooperative
// mailbox: one loop goroutine receives dispatch requests and hands each
// one to a short-lived worker goroutine immediately, never blocking on
// the worker's I/O itself. Workers operate on an immutable snapshot of
// the Docker connection, session ID and reserved labels — none of that
// state ever mutates after New returns, so no further synchronization is
// needed once a worker is spawned.
package session

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jarlah/testcontainers-elixir/config"
	"github.com/jarlah/testcontainers-elixir/container"
	"github.com/jarlah/testcontainers-elixir/docker"
	"github.com/jarlah/testcontainers-elixir/logging"
	"github.com/jarlah/testcontainers-elixir/reaper"
	"github.com/jarlah/testcontainers-elixir/wait"
)

const (
	libraryVersion = "0.1.0"
	languageTag    = "go"

	labelSessionID = "org.testcontainers.session-id"
	labelVersion   = "org.testcontainers.version"
	labelLang      = "org.testcontainers.lang"
	labelPresent   = "org.testcontainers"

	reaperPort       = 8080
	dockerSocketPath = "/var/run/docker.sock"
	callerTimeout    = 300 * time.Second
)

// ErrCallTimeout is returned to a caller whose request exceeded the
// 300s caller-side blocking wait. The dispatched worker is not
// cancelled and may still complete; any container it starts remains
// reaper-owned, per spec §5/§7.
var ErrCallTimeout = fmt.Errorf("session: call timed out after %s", callerTimeout)

// Facade is the subset of *docker.Facade the session manager and its
// workers depend on. Declared here (rather than imported concretely) so
// tests can substitute a fake Docker transport.
type Facade interface {
	PullImage(ctx context.Context, image string, progressOut io.Writer) error
	CreateContainer(ctx context.Context, descriptor docker.ContainerDescriptor) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string) error
	GetContainer(ctx context.Context, containerID string) (docker.ContainerHandle, error)
	CreateExec(ctx context.Context, containerID string, cmd []string) (string, error)
	StartExec(ctx context.Context, execID string) error
	InspectExec(ctx context.Context, execID string) (running bool, exitCode int, err error)
	Logs(ctx context.Context, containerID string) (io.ReadCloser, error)
	FollowLogs(ctx context.Context, containerID string) (io.ReadCloser, error)
	HostAddr(ctx context.Context, containerID string, containerPort int) (host string, hostPort int, err error)
	ListContainers(ctx context.Context, labels map[string]string) ([]string, error)
}

var _ Facade = (*docker.Facade)(nil)
var _ wait.Probe = (*docker.Facade)(nil)

// Manager is the process-wide session singleton described by spec §4.4.
// Construct exactly one per process with New; concurrent calls to any of
// its methods are safe.
type Manager struct {
	facade    Facade
	cfg       config.Config
	logger    logging.Logging
	sessionID string
	labels    map[string]string

	reaperClient      *reaper.Client
	reaperContainerID string

	dispatch chan func()
}

type result[T any] struct {
	value T
	err   error
}

// New initializes a session manager: resolves the Docker transport (via
// the supplied facade, already connected), computes the session ID,
// starts the reaper sidecar, and completes the reaper registration
// handshake. The manager is not considered ready until this returns
// nil.
func New(ctx context.Context, facade Facade) (*Manager, error) {
	return NewWithConfig(ctx, facade, config.Load())
}

// NewWithConfig is New with an explicit config, bypassing the
// $HOME/.testcontainers.properties lookup — mainly useful for tests that
// need RyukDisabled or a non-default RyukImage without touching the
// filesystem.
func NewWithConfig(ctx context.Context, facade Facade, cfg config.Config) (*Manager, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	labels := map[string]string{
		labelSessionID: sessionID,
		labelVersion:   libraryVersion,
		labelLang:      languageTag,
		labelPresent:   "true",
	}

	m := &Manager{
		facade:    facade,
		cfg:       cfg,
		logger:    logging.Default,
		sessionID: sessionID,
		labels:    labels,
		dispatch:  make(chan func()),
	}

	if cfg.RyukDisabled {
		m.logger.Printf("session %s: ryuk disabled, containers will not be automatically reaped", sessionID)
	} else {
		if err := m.startReaper(ctx); err != nil {
			return nil, fmt.Errorf("session: starting reaper: %w", err)
		}
	}

	go m.loop()
	return m, nil
}

func newSessionID() (string, error) {
	h := sha1.New()
	if _, err := fmt.Fprintf(h, "%d|%s", os.Getpid(), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// startReaper pulls, creates, starts and inspects the reaper container,
// then runs the registration handshake against its mapped port. This
// runs synchronously during New, before the manager's mailbox is live,
// so it needs no dispatch.
func (m *Manager) startReaper(ctx context.Context) error {
	descriptor := docker.ContainerDescriptor{
		Image: m.cfg.RyukImage,
		ExposedPorts: []docker.PortBinding{
			{ContainerPort: reaperPort},
		},
		Environment: map[string]string{
			"RYUK_PORT": fmt.Sprintf("%d", reaperPort),
		},
		Labels: m.labels,
		BindMounts: []docker.BindMount{
			{HostSrc: dockerSocketPath, ContainerDest: dockerSocketPath, Mode: "rw"},
		},
		Privileged: m.cfg.RyukPrivileged,
	}

	if err := m.facade.PullImage(ctx, descriptor.Image, nil); err != nil {
		return err
	}

	id, err := m.facade.CreateContainer(ctx, descriptor)
	if err != nil {
		return err
	}
	m.reaperContainerID = id

	if err := m.facade.StartContainer(ctx, id); err != nil {
		return err
	}

	handle, err := m.facade.GetContainer(ctx, id)
	if err != nil {
		return err
	}
	hostPort, ok := handle.MappedPort(reaperPort)
	if !ok {
		return fmt.Errorf("reaper container exposed no mapped port for %d", reaperPort)
	}

	host, _, err := m.facade.HostAddr(ctx, id, reaperPort)
	if err != nil {
		// HostAddr re-resolves the mapped port itself; a transient
		// failure here still lets us fall back to "localhost", the
		// common case for a non-remote daemon.
		host = "localhost"
	}

	client, err := reaper.Connect(ctx, fmt.Sprintf("%s:%d", host, hostPort), m.labels)
	if err != nil {
		return err
	}
	m.reaperClient = client
	return nil
}

// Close closes the reaper connection, signalling the reaper sidecar to
// sweep every container carrying this session's labels. It does not
// stop the session manager's mailbox loop from accepting further calls;
// callers are expected to discard the Manager after Close.
func (m *Manager) Close() error {
	if m.reaperClient == nil {
		return nil
	}
	return m.reaperClient.Close()
}

func (m *Manager) loop() {
	for fn := range m.dispatch {
		fn()
	}
}

// call dispatches work to a freshly spawned worker goroutine through the
// manager's single mailbox loop, then blocks the calling goroutine (not
// the loop) for up to callerTimeout waiting for a reply.
func call[T any](m *Manager, work func(ctx context.Context) (T, error)) (T, error) {
	reply := make(chan result[T], 1)

	m.dispatch <- func() {
		go func() {
			// Deliberately not derived from the caller's context: per
			// spec §5, a caller-side timeout must not cancel in-flight
			// Docker I/O, since a partially started container is still
			// reaper-owned and must be left to finish or be swept.
			reply <- callResult(work)
		}()
	}

	select {
	case r := <-reply:
		return r.value, r.err
	case <-time.After(callerTimeout):
		var zero T
		return zero, ErrCallTimeout
	}
}

func callResult[T any](work func(ctx context.Context) (T, error)) result[T] {
	v, err := work(context.Background())
	return result[T]{value: v, err: err}
}

// StartContainer builds config into a descriptor, attaches the four
// session labels, pulls the image, creates and starts the container,
// runs its wait-strategy pipeline, and returns the resulting handle.
// Any step's error aborts and is returned; the container (if already
// created) is left for the reaper.
func (m *Manager) StartContainer(b container.Builder) (docker.ContainerHandle, error) {
	corrID := correlationID()

	return call(m, func(ctx context.Context) (docker.ContainerHandle, error) {
		descriptor, err := b.Build(ctx)
		if err != nil {
			return docker.ContainerHandle{}, err
		}

		if descriptor.Labels == nil {
			descriptor.Labels = make(map[string]string, len(m.labels))
		}
		for k, v := range m.labels {
			descriptor.Labels[k] = v
		}

		m.logger.Printf("session %s [%s]: pulling %s", m.sessionID, corrID, descriptor.Image)
		if err := m.facade.PullImage(ctx, descriptor.Image, nil); err != nil {
			return docker.ContainerHandle{}, err
		}

		id, err := m.facade.CreateContainer(ctx, descriptor)
		if err != nil {
			return docker.ContainerHandle{}, err
		}

		if err := m.facade.StartContainer(ctx, id); err != nil {
			return docker.ContainerHandle{}, err
		}
		m.logger.Printf("session %s [%s]: started container %s", m.sessionID, corrID, id)

		if len(descriptor.WaitStrategies) > 0 {
			if err := wait.Pipeline(ctx, m.facade, id, descriptor.WaitStrategies); err != nil {
				return docker.ContainerHandle{}, err
			}
		}

		return m.facade.GetContainer(ctx, id)
	})
}

// StopContainer kills then deletes the container.
func (m *Manager) StopContainer(containerID string) error {
	_, err := call(m, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.facade.StopContainer(ctx, containerID)
	})
	return err
}

// GetContainer inspects a container and returns its current handle.
func (m *Manager) GetContainer(containerID string) (docker.ContainerHandle, error) {
	return call(m, func(ctx context.Context) (docker.ContainerHandle, error) {
		return m.facade.GetContainer(ctx, containerID)
	})
}

// ExecCreate creates an exec instance for cmd inside containerID.
func (m *Manager) ExecCreate(containerID string, cmd []string) (string, error) {
	return call(m, func(ctx context.Context) (string, error) {
		return m.facade.CreateExec(ctx, containerID, cmd)
	})
}

// ExecStart starts a previously created exec instance.
func (m *Manager) ExecStart(execID string) error {
	_, err := call(m, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.facade.StartExec(ctx, execID)
	})
	return err
}

// ExecInspect reports whether execID is still running and, once it has
// stopped, its exit code.
func (m *Manager) ExecInspect(execID string) (running bool, exitCode int, err error) {
	type inspectResult struct {
		running  bool
		exitCode int
	}
	r, err := call(m, func(ctx context.Context) (inspectResult, error) {
		running, exitCode, err := m.facade.InspectExec(ctx, execID)
		return inspectResult{running, exitCode}, err
	})
	return r.running, r.exitCode, err
}

// Logs fetches the container's full combined stdout+stderr so far.
func (m *Manager) Logs(containerID string) (io.ReadCloser, error) {
	return call(m, func(ctx context.Context) (io.ReadCloser, error) {
		return m.facade.Logs(ctx, containerID)
	})
}

// FollowLogs streams the container's stdout+stderr as it is produced.
// Unlike the other operations here, the returned reader keeps running
// past the 300s caller timeout window — it is a long-lived stream, not
// a single request/reply.
func (m *Manager) FollowLogs(containerID string) (io.ReadCloser, error) {
	return call(m, func(ctx context.Context) (io.ReadCloser, error) {
		return m.facade.FollowLogs(ctx, containerID)
	})
}

// ListSessionContainers returns the IDs of every container currently
// carrying this session's four reserved labels — the reaper container
// itself plus every container StartContainer has created. Useful for a
// caller that wants to confirm its own footprint (or assert in a test
// that the reaper's label filter would actually match something)
// without waiting on the reaper to sweep.
func (m *Manager) ListSessionContainers() ([]string, error) {
	return call(m, func(ctx context.Context) ([]string, error) {
		return m.facade.ListContainers(ctx, m.labels)
	})
}

// SessionID returns the 40-hex-character session identifier.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// Labels returns the four reserved labels attached to every container
// this session creates.
func (m *Manager) Labels() map[string]string {
	out := make(map[string]string, len(m.labels))
	for k, v := range m.labels {
		out[k] = v
	}
	return out
}

// correlationID is attached to internal log lines a worker might emit,
// so operations interleaved across concurrently-started containers can
// be told apart; it has no bearing on Docker-visible state.
func correlationID() string {
	return uuid.NewString()
}
