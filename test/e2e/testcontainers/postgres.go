// Package testcontainers starts the backing services used by the e2e suites.
package testcontainers

import (
	"context"
	"fmt"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresConfig holds configuration for PostgreSQL test container.
type PostgresConfig struct {
	// User is the PostgreSQL username (default: postgres)
	User string
	// Password is the PostgreSQL password (default: postgres)
	Password string
	// Database is the database name (default: sensors)
	Database string
	// ContainerName is the name of the container (optional)
	ContainerName string
}

// StartPostgres starts a PostgreSQL container and returns it with a key/value DSN.
func StartPostgres(ctx context.Context, config *PostgresConfig) (testcontainers.Container, string, error) {
	if config == nil {
		config = &PostgresConfig{}
	}
	if config.User == "" {
		config.User = "postgres"
	}
	if config.Password == "" {
		config.Password = "postgres"
	}
	if config.Database == "" {
		config.Database = "sensors"
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			// The entrypoint restarts postgres once after init, so the
			// ready line appears twice.
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			),
			Env: map[string]string{
				"POSTGRES_USER":     config.User,
				"POSTGRES_PASSWORD": config.Password,
				"POSTGRES_DB":       config.Database,
			},
			Name: config.ContainerName,
		},
		Started: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	endpoint, err := endpoint(ctx, container, "5432")
	if err != nil {
		return nil, "", err
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		endpoint.host, endpoint.port, config.User, config.Password, config.Database)

	return container, dsn, nil
}

type hostPort struct {
	host string
	port int
}

// endpoint resolves the host address of an exposed port, terminating the
// container when it cannot.
func endpoint(ctx context.Context, container testcontainers.Container, port string) (hostPort, error) {
	host, err := container.Host(ctx)
	if err != nil {
		if termErr := container.Terminate(ctx); termErr != nil {
			return hostPort{}, fmt.Errorf("failed to get container host: %w (cleanup error: %w)", err, termErr)
		}
		return hostPort{}, fmt.Errorf("failed to get container host: %w", err)
	}

	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		if termErr := container.Terminate(ctx); termErr != nil {
			return hostPort{}, fmt.Errorf("failed to get container port: %w (cleanup error: %w)", err, termErr)
		}
		return hostPort{}, fmt.Errorf("failed to get container port: %w", err)
	}

	return hostPort{host: host, port: mapped.Int()}, nil
}
