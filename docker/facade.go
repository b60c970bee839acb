package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/containerd/containerd/platforms"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/moby/term"
	specs "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/jarlah/testcontainers-elixir/logging"
)

// Facade is the Docker API facade described by the container lifecycle
// engine: pure request/reply operations over an injected transport, no
// retries, no session bookkeeping. Resolution of the transport itself
// (unix socket vs DOCKER_HOST) lives in NewFacade, mirroring the
// teacher's NewDockerClient.
type Facade struct {
	cli    *client.Client
	logger logging.Logging
}

// NewFacade resolves the Docker transport from $DOCKER_HOST (falling
// back to the platform default socket, exactly as client.FromEnv does)
// and negotiates the API version against the daemon.
func NewFacade() (*Facade, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, failedTo("connect to docker daemon", err)
	}
	return &Facade{cli: cli, logger: logging.Default}, nil
}

// WithLogger overrides the facade's logger, mainly for tests that want
// to assert on retry log lines instead of writing to stderr.
func (f *Facade) WithLogger(logger logging.Logging) *Facade {
	f.logger = logger
	return f
}

// DaemonHost returns the raw host URL the underlying client is configured
// to talk to (e.g. "unix:///var/run/docker.sock" or "tcp://1.2.3.4:2375").
func (f *Facade) DaemonHost() string {
	return f.cli.DaemonHost()
}

// Host resolves the host (ip or name) a mapped port can be reached on,
// mirroring the teacher's daemonHost: a TCP/HTTP DOCKER_HOST resolves to
// its own hostname, a unix/npipe socket resolves to "localhost" — unless
// TC_HOST overrides it, or this process is itself running inside a
// container talking to the local daemon, in which case "localhost" would
// resolve to the wrong network namespace and the bridge gateway is used
// instead (teacher's initContainerEnvInformation).
func (f *Facade) Host(ctx context.Context) (string, error) {
	if host, ok := os.LookupEnv("TC_HOST"); ok && host != "" {
		return host, nil
	}

	u, err := url.Parse(f.cli.DaemonHost())
	if err != nil {
		return "", failedTo("resolve daemon host", err)
	}

	switch u.Scheme {
	case "http", "https", "tcp":
		return u.Hostname(), nil
	case "unix", "npipe":
		if _, nested, nestedErr := CurrentContainerID(); nestedErr == nil && nested {
			if gateway, gwErr := f.GetBridgeGateway(ctx); gwErr == nil {
				return gateway, nil
			}
		}
		return "localhost", nil
	default:
		return "", fmt.Errorf("docker: cannot determine host for scheme %q", u.Scheme)
	}
}

// HostAddr implements wait.PortResolver: resolve containerPort's mapped
// host port via GetContainer, and the reachable host via Host.
func (f *Facade) HostAddr(ctx context.Context, containerID string, containerPort int) (string, int, error) {
	handle, err := f.GetContainer(ctx, containerID)
	if err != nil {
		return "", 0, err
	}
	hostPort, ok := handle.MappedPort(containerPort)
	if !ok {
		return "", 0, fmt.Errorf("docker: container port %d has no mapped host port", containerPort)
	}
	host, err := f.Host(ctx)
	if err != nil {
		return "", 0, err
	}
	return host, hostPort, nil
}

// Close releases the underlying HTTP transport.
func (f *Facade) Close() error {
	return f.cli.Close()
}

// PullImage pulls image, idempotent at the Engine layer. A transient pull
// failure (network blip, registry hiccup) is retried with exponential
// backoff, logging each attempt; a definitive "no such image" is not
// retried. Grounded on the teacher's attemptToPullImage. Pull progress is
// streamed to progressOut in the same human-readable form the teacher's
// BuildImage uses for build output, if progressOut is non-nil.
func (f *Facade) PullImage(ctx context.Context, img string, progressOut io.Writer) error {
	var rc io.ReadCloser

	op := func() error {
		var pullErr error
		rc, pullErr = f.cli.ImagePull(ctx, img, image.PullOptions{})
		if pullErr != nil {
			if errdefs.IsNotFound(pullErr) {
				return backoff.Permanent(pullErr)
			}
			f.logger.Printf("docker: failed to pull image %s: %v, will retry", img, pullErr)
			return pullErr
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return failedTo("pull image", err)
	}
	defer rc.Close()

	if progressOut == nil {
		_, err := io.Copy(io.Discard, rc)
		return failedTo("pull image", err)
	}

	termFd, isTerm := term.GetFdInfo(progressOut)
	if err := jsonmessage.DisplayJSONMessagesStream(rc, progressOut, termFd, isTerm, nil); err != nil {
		return failedTo("pull image", err)
	}
	return nil
}

// sortedEnv renders env as "K=V" entries sorted by key, so the Engine
// request is deterministic regardless of Go's randomized map iteration
// order.
func sortedEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}

// CreateContainer translates descriptor to the Engine's container-create
// request and returns the new container's ID.
func (f *Facade) CreateContainer(ctx context.Context, descriptor ContainerDescriptor) (string, error) {
	env := sortedEnv(descriptor.Environment)

	exposedPorts := make(nat.PortSet, len(descriptor.ExposedPorts))
	portBindings := make(nat.PortMap, len(descriptor.ExposedPorts))
	for _, p := range descriptor.ExposedPorts {
		natPort, err := p.natPort()
		if err != nil {
			return "", failedTo("create container", err)
		}
		exposedPorts[natPort] = struct{}{}

		hostPort := ""
		if p.HostPort > 0 {
			hostPort = strconv.Itoa(p.HostPort)
		}
		portBindings[natPort] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: hostPort}}
	}

	// A named volume and a bind mount on the same container path: the
	// volume (Mounts) wins and the bind mount is dropped.
	volumeTargets := make(map[string]bool, len(descriptor.BindVolumes))
	for _, v := range descriptor.BindVolumes {
		volumeTargets[v.ContainerDest] = true
	}

	binds := make([]string, 0, len(descriptor.BindMounts))
	for _, b := range descriptor.BindMounts {
		if volumeTargets[b.ContainerDest] {
			continue
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", b.HostSrc, b.ContainerDest, b.Mode))
	}

	mounts := make([]mount.Mount, 0, len(descriptor.BindVolumes))
	for _, v := range descriptor.BindVolumes {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeVolume,
			Source:   v.VolumeName,
			Target:   v.ContainerDest,
			ReadOnly: v.ReadOnly,
		})
	}

	config := &container.Config{
		Image:        descriptor.Image,
		Cmd:          descriptor.Cmd,
		Env:          env,
		ExposedPorts: exposedPorts,
		Labels:       descriptor.Labels,
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        binds,
		Mounts:       mounts,
		AutoRemove:   descriptor.AutoRemove,
		Privileged:   descriptor.Privileged,
	}

	var platform *specs.Platform
	if descriptor.Platform != "" {
		p, err := platforms.Parse(descriptor.Platform)
		if err != nil {
			return "", fmt.Errorf("docker: invalid platform %q: %w", descriptor.Platform, err)
		}
		platform = &p
	}

	resp, err := f.cli.ContainerCreate(ctx, config, hostConfig, &network.NetworkingConfig{}, platform, "")
	if err != nil {
		return "", failedTo("create container", err)
	}
	return resp.ID, nil
}

// StartContainer starts an already-created container.
func (f *Facade) StartContainer(ctx context.Context, containerID string) error {
	if err := f.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return failedTo("start container", err)
	}
	return nil
}

// StopContainer kills then deletes the container — two sequential calls,
// per spec. Either step failing is a defect the reaper cannot paper over,
// so both errors are surfaced (joined) rather than swallowed.
func (f *Facade) StopContainer(ctx context.Context, containerID string) error {
	killErr := f.cli.ContainerKill(ctx, containerID, "SIGKILL")
	removeErr := f.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{
		RemoveVolumes: true,
		Force:         true,
	})
	switch {
	case killErr != nil && removeErr != nil:
		return failedTo("stop container", fmt.Errorf("kill: %w; remove: %v", killErr, removeErr))
	case killErr != nil:
		return failedTo("stop container", killErr)
	case removeErr != nil:
		return failedTo("stop container", removeErr)
	}
	return nil
}

// GetContainer inspects containerID and derives a ContainerHandle from
// the response: exposed ports by stripping "/tcp" and parsing the
// integer, environment by splitting each Config.Env entry on the first
// "=".
func (f *Facade) GetContainer(ctx context.Context, containerID string) (ContainerHandle, error) {
	inspect, err := f.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return ContainerHandle{}, failedTo("inspect container", err)
	}

	var ports []PortBinding
	for natPort, bindings := range inspect.NetworkSettings.Ports {
		containerPort, convErr := strconv.Atoi(strings.TrimSuffix(string(natPort), "/tcp"))
		if convErr != nil {
			continue
		}
		hostPort := 0
		if len(bindings) > 0 {
			hostPort, _ = strconv.Atoi(bindings[0].HostPort)
		}
		ports = append(ports, PortBinding{ContainerPort: containerPort, HostPort: hostPort})
	}

	env := make(map[string]string, len(inspect.Config.Env))
	for _, kv := range inspect.Config.Env {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}

	return ContainerHandle{
		ContainerID:  inspect.ID,
		Image:        inspect.Config.Image,
		ExposedPorts: ports,
		Environment:  env,
		Labels:       inspect.Config.Labels,
	}, nil
}

// CreateExec implements wait.ExecProber.
func (f *Facade) CreateExec(ctx context.Context, containerID string, cmd []string) (string, error) {
	resp, err := f.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", failedTo("create exec", err)
	}
	return resp.ID, nil
}

// StartExec implements wait.ExecProber.
func (f *Facade) StartExec(ctx context.Context, execID string) error {
	if err := f.cli.ContainerExecStart(ctx, execID, container.ExecStartOptions{}); err != nil {
		return failedTo("start exec", err)
	}
	return nil
}

// InspectExec implements wait.ExecProber.
func (f *Facade) InspectExec(ctx context.Context, execID string) (running bool, exitCode int, err error) {
	resp, err := f.cli.ContainerExecInspect(ctx, execID)
	if err != nil {
		return false, 0, failedTo("inspect exec", err)
	}
	return resp.Running, resp.ExitCode, nil
}

// Logs implements wait.LogProber: both stdout and stderr, demultiplexed
// with stdcopy since the container runs without a TTY (grounded in
// sasta-kro-corvus-paas's RunEphemeralBuildContainer).
func (f *Facade) Logs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	rc, err := f.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, failedTo("fetch logs", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return nil, failedTo("fetch logs", err)
	}
	return io.NopCloser(&buf), nil
}

// FollowLogs streams both stdout and stderr as they are produced, until
// ctx is cancelled. Grounded in the teacher's StartLogProducer, adapted
// to return a single demultiplexed stream instead of a consumer
// registry — session.Manager.FollowLogs hands it to its caller as is.
func (f *Facade) FollowLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	rc, err := f.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, failedTo("follow logs", err)
	}

	pr, pw := io.Pipe()
	go func() {
		_, copyErr := stdcopy.StdCopy(pw, pw, rc)
		_ = rc.Close()
		_ = pw.CloseWithError(copyErr)
	}()
	return pr, nil
}

// GetBridgeGateway inspects the default bridge network and returns its
// IPAM gateway, used by wait strategies that must probe from the
// daemon's network namespace rather than localhost.
func (f *Facade) GetBridgeGateway(ctx context.Context) (string, error) {
	resp, err := f.cli.NetworkInspect(ctx, "bridge", network.InspectOptions{})
	if err != nil {
		return "", failedTo("inspect bridge network", err)
	}
	for _, cfg := range resp.IPAM.Config {
		if cfg.Gateway != "" {
			return cfg.Gateway, nil
		}
	}
	return "", ErrNoGateway
}

// PutFiles writes a single file into the container at path via the
// archive endpoint, tar-wrapping it first.
func (f *Facade) PutFiles(ctx context.Context, containerID, path string, content []byte, mode int64) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: filepath.Base(path),
		Mode: mode,
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return failedTo("write files", err)
	}
	if _, err := tw.Write(content); err != nil {
		return failedTo("write files", err)
	}
	if err := tw.Close(); err != nil {
		return failedTo("write files", err)
	}

	if err := f.cli.CopyToContainer(ctx, containerID, filepath.Dir(path), &buf, container.CopyToContainerOptions{}); err != nil {
		return failedTo("write files", err)
	}
	return nil
}

// ListContainers returns the IDs of containers matching the given label
// filters. Used by session.Manager.ListSessionContainers to enumerate
// every container carrying the session's reserved labels — the same
// label filter the reaper protocol registers with the sidecar, applied
// here so a caller can inspect the session's footprint without waiting
// for the reaper to act on it.
func (f *Facade) ListContainers(ctx context.Context, labels map[string]string) ([]string, error) {
	args := filters.NewArgs()
	for k, v := range labels {
		args.Add("label", fmt.Sprintf("%s=%s", k, v))
	}
	containers, err := f.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, failedTo("list containers", err)
	}
	ids := make([]string, 0, len(containers))
	for _, c := range containers {
		ids = append(ids, c.ID)
	}
	return ids, nil
}
