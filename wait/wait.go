// Package wait implements the four readiness probes described by the
// container builder protocol: command, log, port and HTTP. Each strategy
// retries its probe on a fixed interval, bounded by wall-clock timeout,
// using github.com/cenkalti/backoff/v4 — the same retry library the
// teacher (testcontainers-go) pulls in for its image-pull retry loop.
package wait

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrTimeout is the sentinel every TimeoutError wraps, so callers can
// still test for plain timeout with errors.Is(err, ErrTimeout) without
// caring which strategy produced it.
var ErrTimeout = errors.New("wait: timeout waiting for container to be ready")

// TimeoutError is returned when a strategy's timeout elapses without its
// probe succeeding, naming the strategy that timed out — spec's
// wait_timeout(strategy_name).
type TimeoutError struct {
	Strategy string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("wait: %s timed out waiting for container to be ready", e.Strategy)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// StrategyFailedError wraps a probe-specific hard failure (not a bare
// timeout, e.g. the Docker API call backing a probe itself errored) —
// spec's wait_failed(strategy_name, detail).
type StrategyFailedError struct {
	Strategy string
	Detail   string
	Wrapped  error
}

func (e *StrategyFailedError) Error() string {
	return "wait: " + e.Strategy + " failed: " + e.Detail
}

func (e *StrategyFailedError) Unwrap() error { return e.Wrapped }

const defaultInterval = time.Second

// ExecProber is the narrow subset of the Docker API facade a
// CommandWaitStrategy needs: create an exec, start it, and poll it until
// it stops running.
type ExecProber interface {
	CreateExec(ctx context.Context, containerID string, cmd []string) (string, error)
	StartExec(ctx context.Context, execID string) error
	InspectExec(ctx context.Context, execID string) (running bool, exitCode int, err error)
}

// LogProber is the narrow subset a LogWaitStrategy needs: the combined
// stdout+stderr of a container, read fresh on every probe.
type LogProber interface {
	Logs(ctx context.Context, containerID string) (io.ReadCloser, error)
}

// PortResolver is the narrow subset a PortWaitStrategy or HttpWaitStrategy
// needs: the host/port a container's exposed port is currently mapped to.
type PortResolver interface {
	HostAddr(ctx context.Context, containerID string, containerPort int) (host string, hostPort int, err error)
}

// Probe bundles everything a strategy might need to reach the running
// container. Strategies are built by the container builders before any
// container exists (as part of a docker.ContainerDescriptor), so they
// cannot close over a Docker connection at construction time; the
// session manager supplies Probe once the container is actually up,
// satisfied structurally by *docker.Facade.
type Probe interface {
	ExecProber
	LogProber
	PortResolver
}

// Strategy is the contract every wait strategy implements. err is nil on
// success, *TimeoutError on wall-clock exhaustion, or *StrategyFailedError
// for a probe-specific failure detail. Name identifies the strategy in
// both error shapes.
type Strategy interface {
	WaitUntilReady(ctx context.Context, probe Probe, containerID string) error
	Name() string
}

// Pipeline runs strategies in declaration order, returning the first
// error and skipping every strategy after it — spec's "first failure
// short-circuits later strategies".
func Pipeline(ctx context.Context, probe Probe, containerID string, strategies []Strategy) error {
	for _, s := range strategies {
		if err := s.WaitUntilReady(ctx, probe, containerID); err != nil {
			return err
		}
	}
	return nil
}

// retry runs probe on interval until it returns (true, nil) — success —
// or (false, err) with err != nil — a hard failure that should not be
// retried, surfaced as *StrategyFailedError — or until timeout elapses,
// surfaced as *TimeoutError. probe returning (false, nil) means "not
// ready yet, keep polling". name identifies the calling strategy in
// either error.
func retry(ctx context.Context, name string, timeout, interval time.Duration, probe func() (ready bool, err error)) error {
	if interval <= 0 {
		interval = defaultInterval
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)

	var hardErr error
	op := func() error {
		ready, err := probe()
		if err != nil {
			hardErr = err
			return backoff.Permanent(err)
		}
		if ready {
			return nil
		}
		return errNotReady
	}

	err := backoff.Retry(op, b)
	if err == nil {
		return nil
	}
	if hardErr != nil {
		return &StrategyFailedError{Strategy: name, Detail: hardErr.Error(), Wrapped: hardErr}
	}
	return &TimeoutError{Strategy: name}
}

var errNotReady = errors.New("wait: not ready")
