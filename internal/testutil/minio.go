// Package testutil contains helpers for integration tests that need real
// backing services.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	minioImage    = "quay.io/minio/minio:RELEASE.2025-04-22T22-12-26Z"
	minioUser     = "symdex"
	minioPassword = "symdexsecret"

	maxWait = 2 * time.Minute
)

// SkipUnlessIntegration skips the test unless SYMDEX_INTEGRATION_TESTS is
// set. Integration tests need a working docker daemon.
func SkipUnlessIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("SYMDEX_INTEGRATION_TESTS") == "" {
		t.Skip("set SYMDEX_INTEGRATION_TESTS to run integration tests")
	}
}

// WithTestMinIO starts a MinIO server in a container, creates bucket, and
// calls handler with the server's host:port endpoint. Static credentials are
// exported through the AWS environment variables so the aws-sdk default
// config chain picks them up.
func WithTestMinIO(t *testing.T, bucket string, handler func(endpoint string)) {
	t.Helper()

	ctx, clearTimeout := context.WithTimeout(context.Background(), maxWait)
	defer clearTimeout()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: minioImage,
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			Cmd:          []string{"server", "/data"},
			ExposedPorts: []string{"9000/tcp"},
			WaitingFor:   wait.ForHTTP("/minio/health/ready").WithPort("9000/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("testutil: failed to start minio: %s", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("testutil: failed to terminate minio: %s", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "")
	if err != nil {
		t.Fatalf("testutil: failed to resolve minio endpoint: %s", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(minioUser, minioPassword, ""),
	})
	if err != nil {
		t.Fatalf("testutil: failed to create minio client: %s", err)
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		t.Fatalf("testutil: failed to create bucket %q: %s", bucket, err)
	}

	t.Setenv("AWS_ACCESS_KEY_ID", minioUser)
	t.Setenv("AWS_SECRET_ACCESS_KEY", minioPassword)
	t.Setenv("AWS_REGION", "us-east-1")

	handler(endpoint)
}

// MinIOClient returns a client for a server started by WithTestMinIO.
func MinIOClient(t *testing.T, endpoint string) *minio.Client {
	t.Helper()
	client, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(minioUser, minioPassword, ""),
	})
	if err != nil {
		t.Fatalf("testutil: failed to create minio client: %s", err)
	}
	return client
}

// MinIOBucketURL builds the emulated-s3 storage URL for a bucket on a MinIO
// endpoint started by WithTestMinIO.
func MinIOBucketURL(endpoint, bucket string) string {
	return fmt.Sprintf("http://%s/%s?access=public", endpoint, bucket)
}
