package testcontainers

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartMosquitto starts an anonymous Mosquitto broker and returns it with
// its host and port.
func StartMosquitto(ctx context.Context, containerName string) (testcontainers.Container, string, int, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "eclipse-mosquitto:2",
			ExposedPorts: []string{"1883/tcp"},
			Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
			WaitingFor:   wait.ForListeningPort("1883/tcp"),
			Name:         containerName,
		},
		Started: true,
	})
	if err != nil {
		return nil, "", 0, fmt.Errorf("failed to start Mosquitto container: %w", err)
	}

	ep, err := endpoint(ctx, container, "1883")
	if err != nil {
		return nil, "", 0, err
	}

	return container, ep.host, ep.port, nil
}
