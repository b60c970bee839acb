package reaper

import (
	"context"
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReaper starts a TCP listener that plays the server side of the
// handshake: read one line, reply with the given response.
func fakeReaper(t *testing.T, respond func(line string) string) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte(respond(line)))

		// keep the connection open until the test closes it, so Close()
		// on the client side is observable from here if needed.
		buf := make([]byte, 1)
		_, _ = conn.Read(buf)
	}()

	return ln.Addr().String()
}

func TestConnect_AckSucceeds(t *testing.T) {
	endpoint := fakeReaper(t, func(line string) string {
		assert.Contains(t, line, "label=session_id=abc123")
		return "ACK\n"
	})

	client, err := Connect(context.Background(), endpoint, map[string]string{
		"session_id": "abc123",
		"present":    "true",
	})
	require.NoError(t, err)
	defer client.Close()
}

func TestConnect_MissingAckFails(t *testing.T) {
	endpoint := fakeReaper(t, func(line string) string {
		return "NOPE\n"
	})

	_, err := Connect(context.Background(), endpoint, map[string]string{"session_id": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAckMissing)
}

func TestConnect_NoResponseTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(5 * time.Second) // never responds within the handshake deadline
	}()

	start := time.Now()
	_, err = Connect(context.Background(), ln.Addr().String(), map[string]string{"session_id": "x"})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAckMissing)
	assert.Less(t, elapsed, 4*time.Second, "handshake should not wait for the full unresponsive period")
}

func TestRegistrationLine_SortedDeterministic(t *testing.T) {
	line := registrationLine(map[string]string{
		"b": "2",
		"a": "1",
	})
	assert.Equal(t, "label=a=1&label=b=2\n", line)
}
