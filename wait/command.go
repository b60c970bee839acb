package wait

import (
	"context"
	"time"
)

// Command probes readiness by executing a command inside the container
// and waiting for it to exit zero.
//
//	create_exec -> start_exec -> poll inspect_exec until running=false
//
// matching spec's CommandWaitStrategy.
type Command struct {
	Cmd      []string
	Timeout  time.Duration
	Interval time.Duration
}

func (c Command) Name() string { return "CommandWaitStrategy" }

func (c Command) WaitUntilReady(ctx context.Context, probe Probe, containerID string) error {
	attempt := func() (bool, error) {
		execID, err := probe.CreateExec(ctx, containerID, c.Cmd)
		if err != nil {
			return false, err
		}
		if err := probe.StartExec(ctx, execID); err != nil {
			return false, err
		}

		for {
			running, exitCode, err := probe.InspectExec(ctx, execID)
			if err != nil {
				return false, err
			}
			if running {
				select {
				case <-ctx.Done():
					return false, ctx.Err()
				case <-time.After(50 * time.Millisecond):
					continue
				}
			}
			return exitCode == 0, nil
		}
	}

	return retry(ctx, c.Name(), c.Timeout, c.Interval, attempt)
}
