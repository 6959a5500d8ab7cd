package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const postgresImage = "postgres:16-alpine"

// WithTestPostgres starts a Postgres server in a container and calls handler
// with its DSN.
func WithTestPostgres(t *testing.T, handler func(dsn string)) {
	t.Helper()

	ctx, clearTimeout := context.WithTimeout(context.Background(), maxWait)
	defer clearTimeout()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: postgresImage,
			Env: map[string]string{
				"POSTGRES_USER":     "symdex",
				"POSTGRES_PASSWORD": "symdex",
				"POSTGRES_DB":       "symdex",
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("testutil: failed to start postgres: %s", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("testutil: failed to terminate postgres: %s", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "5432/tcp", "")
	if err != nil {
		t.Fatalf("testutil: failed to resolve postgres endpoint: %s", err)
	}

	handler(fmt.Sprintf("postgres://symdex:symdex@%s/symdex?sslmode=disable", endpoint))
}
