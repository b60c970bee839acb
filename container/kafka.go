package container

import (
	"context"
	"fmt"
	"time"

	"github.com/jarlah/testcontainers-elixir/docker"
	"github.com/jarlah/testcontainers-elixir/wait"
)

const kafkaImagePrefix = "confluentinc/cp-kafka:"

// Kafka builds a single-broker Kafka container with an embedded
// ZooKeeper, advertised under two listener aliases: BROKER (used by
// other containers on the same Docker network, at the internal fixed
// port 29092) and OUTSIDE (used by the test process on the host, at the
// ephemeral or fixed mapped port).
//
// Build is single-arity like every other variant here (Open Question
// (b) from the spec: the original source's Kafka builder took extra
// constructor arguments for the ZooKeeper network alias; this port
// folds that into the HostAlias field instead).
type Kafka struct {
	Image     string
	HostAlias string // hostname other containers on the network can reach this broker at
	Port      Port   // outside/host-facing port, defaults to ephemeral 9092
}

func (k Kafka) Build(_ context.Context) (docker.ContainerDescriptor, error) {
	if err := requirePrefix(k.Image, kafkaImagePrefix); err != nil {
		return docker.ContainerDescriptor{}, err
	}
	if k.HostAlias == "" {
		return docker.ContainerDescriptor{}, &MissingRequiredOptionError{Name: "HostAlias"}
	}

	outsidePort := k.Port
	if outsidePort.Container == 0 {
		outsidePort.Container = 9092
	}
	const brokerPort = 29092

	// OUTSIDE advertises k.HostAlias rather than the actual host address:
	// the real, reachable host isn't known until HostAddr resolves the
	// mapped port after the container starts, so the alias is the best a
	// build-time descriptor can offer a same-network client.
	listeners := fmt.Sprintf(
		"BROKER://%s:%d,OUTSIDE://%s:%d",
		k.HostAlias, brokerPort,
		k.HostAlias, outsidePort.Container,
	)

	return docker.ContainerDescriptor{
		Image: k.Image,
		Environment: map[string]string{
			"KAFKA_ADVERTISED_LISTENERS":             listeners,
			"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP":   "BROKER:PLAINTEXT,OUTSIDE:PLAINTEXT",
			"KAFKA_INTER_BROKER_LISTENER_NAME":       "BROKER",
			"KAFKA_ZOOKEEPER_CONNECT":                "localhost:2181",
			"KAFKA_BROKER_ID":                        "1",
			"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR": "1",
		},
		ExposedPorts: []docker.PortBinding{
			outsidePort.toBinding(),
			{ContainerPort: brokerPort, HostPort: brokerPort},
		},
		WaitStrategies: []wait.Strategy{
			wait.Command{
				Cmd:      []string{"kafka-topics", "--bootstrap-server", "localhost:9092", "--list"},
				Timeout:  90 * time.Second,
				Interval: 2 * time.Second,
			},
			wait.Command{
				Cmd:      []string{"kafka-broker-api-versions", "--bootstrap-server", "localhost:9092"},
				Timeout:  30 * time.Second,
				Interval: 2 * time.Second,
			},
		},
	}, nil
}
