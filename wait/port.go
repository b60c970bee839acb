package wait

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Port probes readiness by attempting a TCP connection to the
// container's mapped host port.
type Port struct {
	ContainerPort int
	Timeout       time.Duration
	Interval      time.Duration
}

func (p Port) Name() string { return "PortWaitStrategy" }

func (p Port) WaitUntilReady(ctx context.Context, probe Probe, containerID string) error {
	attempt := func() (bool, error) {
		host, hostPort, err := probe.HostAddr(ctx, containerID, p.ContainerPort)
		if err != nil {
			return false, err
		}

		d := net.Dialer{Timeout: 2 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, hostPort))
		if err != nil {
			return false, nil // not ready yet, keep polling
		}
		_ = conn.Close()
		return true, nil
	}

	return retry(ctx, p.Name(), p.Timeout, p.Interval, attempt)
}
