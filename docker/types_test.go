package docker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortBinding_NatPort(t *testing.T) {
	p := PortBinding{ContainerPort: 5432}
	natPort, err := p.natPort()
	require.NoError(t, err)
	assert.Equal(t, "5432/tcp", string(natPort))
}

func TestContainerHandle_MappedPort(t *testing.T) {
	h := ContainerHandle{
		ExposedPorts: []PortBinding{
			{ContainerPort: 5432, HostPort: 54321},
			{ContainerPort: 6379, HostPort: 0},
		},
	}

	hostPort, ok := h.MappedPort(5432)
	assert.True(t, ok)
	assert.Equal(t, 54321, hostPort)

	_, ok = h.MappedPort(6379)
	assert.False(t, ok, "an unmapped (0) host port should not count as mapped")

	_, ok = h.MappedPort(9999)
	assert.False(t, ok, "a port the container does not expose should not be found")
}

func TestFailedTo_WrapsNonNilError(t *testing.T) {
	inner := errors.New("boom")
	err := failedTo("start container", inner)

	require.Error(t, err)
	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, "start container", engineErr.Op)
	assert.ErrorIs(t, err, inner)
}

func TestFailedTo_NilErrorPassesThrough(t *testing.T) {
	assert.NoError(t, failedTo("start container", nil))
}

func TestSortedEnv_DeterministicRegardlessOfMapOrder(t *testing.T) {
	env := map[string]string{
		"POSTGRES_PASSWORD": "secret",
		"POSTGRES_DB":       "app",
		"POSTGRES_USER":     "postgres",
	}

	got := sortedEnv(env)
	assert.Equal(t, []string{
		"POSTGRES_DB=app",
		"POSTGRES_PASSWORD=secret",
		"POSTGRES_USER=postgres",
	}, got)
}
