package container

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarlah/testcontainers-elixir/docker"
	"github.com/jarlah/testcontainers-elixir/wait"
)

func TestPostgres_DefaultsAndWaitStrategy(t *testing.T) {
	b := Postgres{Image: "postgres:16", Database: "app", Password: "secret"}

	descriptor, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "postgres:16", descriptor.Image)
	assert.Equal(t, "postgres", descriptor.Environment["POSTGRES_USER"])
	assert.Equal(t, "app", descriptor.Environment["POSTGRES_DB"])
	require.Len(t, descriptor.ExposedPorts, 1)
	assert.Equal(t, 5432, descriptor.ExposedPorts[0].ContainerPort)
	require.Len(t, descriptor.WaitStrategies, 1)
	assert.IsType(t, wait.Command{}, descriptor.WaitStrategies[0])
}

func TestPostgres_RejectsWrongImagePrefix(t *testing.T) {
	b := Postgres{Image: "mysql:8"}

	_, err := b.Build(context.Background())
	require.Error(t, err)

	var invalid *InvalidImageError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "postgres:", invalid.ExpectedPrefix)
}

func TestMySQL_WaitsForTwoLogOccurrences(t *testing.T) {
	b := MySQL{Image: "mysql:8", Database: "app", User: "app", Password: "secret"}

	descriptor, err := b.Build(context.Background())
	require.NoError(t, err)

	require.Len(t, descriptor.WaitStrategies, 1)
	logStrategy, ok := descriptor.WaitStrategies[0].(wait.Log)
	require.True(t, ok)
	assert.Equal(t, 2, logStrategy.Occurrence)
}

func TestRedis_DefaultsPort(t *testing.T) {
	b := Redis{Image: "redis:7"}

	descriptor, err := b.Build(context.Background())
	require.NoError(t, err)

	require.Len(t, descriptor.ExposedPorts, 1)
	assert.Equal(t, 6379, descriptor.ExposedPorts[0].ContainerPort)
}

func TestKafka_RequiresHostAlias(t *testing.T) {
	b := Kafka{Image: "confluentinc/cp-kafka:7.6.0"}

	_, err := b.Build(context.Background())
	require.Error(t, err)

	var missing *MissingRequiredOptionError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "HostAlias", missing.Name)
}

func TestKafka_AdvertisesBothListeners(t *testing.T) {
	b := Kafka{Image: "confluentinc/cp-kafka:7.6.0", HostAlias: "kafka"}

	descriptor, err := b.Build(context.Background())
	require.NoError(t, err)

	listeners := descriptor.Environment["KAFKA_ADVERTISED_LISTENERS"]
	assert.Contains(t, listeners, "BROKER://kafka:29092")
	assert.Contains(t, listeners, "OUTSIDE://kafka:9092")
	require.Len(t, descriptor.ExposedPorts, 2)
	require.Len(t, descriptor.WaitStrategies, 2)
}

func TestGeneric_PassesDescriptorThrough(t *testing.T) {
	descriptor := docker.ContainerDescriptor{Image: "alpine:3.19", Cmd: []string{"sleep", "3600"}}
	b := Generic{Descriptor: descriptor}

	got, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, descriptor, got)
}

func TestPort_ToBinding(t *testing.T) {
	p := Port{Container: 8080, Host: 18080}
	binding := p.toBinding()
	assert.Equal(t, 8080, binding.ContainerPort)
	assert.Equal(t, 18080, binding.HostPort)
}
