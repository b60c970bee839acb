// Package reaper implements the client side of the reaper protocol: a
// line-framed TCP handshake that registers a label filter with a
// long-lived companion container, so that the companion deletes every
// container matching that filter once this client disconnects.
//
// Grounded directly in the real testcontainers-go Reaper.Connect
// (retrieved as other_examples/bo-er-testcontainers-go reaper.go): dial,
// write one line, read one line, keep the socket open for the life of
// the session.
package reaper

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"
)

// ErrAckMissing is returned when the reaper does not reply with "ACK\n"
// within the handshake deadline.
var ErrAckMissing = errors.New("reaper: ack not received")

// ErrConnectFailed wraps a failure to open the TCP connection to the
// reaper sidecar.
type ErrConnectFailed struct {
	Endpoint string
	Wrapped  error
}

func (e *ErrConnectFailed) Error() string {
	return fmt.Sprintf("reaper: connecting to %s failed: %v", e.Endpoint, e.Wrapped)
}

func (e *ErrConnectFailed) Unwrap() error { return e.Wrapped }

const handshakeTimeout = 1000 * time.Millisecond

// maxHandshakeAttempts is the number of registration round-trips the
// handshake makes. It is one, so a reaper that has not answered "ACK\n"
// within handshakeTimeout fails the handshake.
const maxHandshakeAttempts = 1

// Client holds an open connection to a reaper sidecar for the lifetime
// of one session. The connection is never written to again after the
// handshake; it is held open purely so the reaper observes the socket
// close (and sweeps) when the session ends.
type Client struct {
	conn   net.Conn
	labels map[string]string
}

// Connect dials endpoint ("host:port"), performs the registration
// handshake with labels, and returns a Client holding the open
// connection on success. The handshake must complete within 1000ms or
// ErrAckMissing is returned and the connection is closed.
func Connect(ctx context.Context, endpoint string, labels map[string]string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, &ErrConnectFailed{Endpoint: endpoint, Wrapped: err}
	}

	c := &Client{conn: conn, labels: labels}
	if err := c.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake() error {
	line := registrationLine(c.labels)

	var lastErr error
	for attempt := 0; attempt < maxHandshakeAttempts; attempt++ {
		if err := c.conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
			lastErr = err
			continue
		}

		rw := bufio.NewReadWriter(bufio.NewReader(c.conn), bufio.NewWriter(c.conn))
		if _, err := rw.WriteString(line); err != nil {
			lastErr = err
			continue
		}
		if err := rw.Flush(); err != nil {
			lastErr = err
			continue
		}

		resp, err := rw.ReadString('\n')
		if err != nil {
			lastErr = err
			continue
		}
		if resp != "ACK\n" {
			lastErr = fmt.Errorf("reaper: unexpected response %q", resp)
			continue
		}

		_ = c.conn.SetDeadline(time.Time{})
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrAckMissing, lastErr)
	}
	return ErrAckMissing
}

// registrationLine builds "label=K=V&label=K=V&...\n" with labels sorted
// by key so the wire form is deterministic (and testable) regardless of
// Go's randomized map iteration order.
func registrationLine(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("label=%s=%s", k, labels[k]))
	}
	return strings.Join(parts, "&") + "\n"
}

// Close closes the underlying connection. The reaper observes the
// close and sweeps every container matching the registered labels.
func (c *Client) Close() error {
	return c.conn.Close()
}
