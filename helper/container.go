package helper

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testDBName     = "storyline_test"
	testDBUser     = "storyline"
	testDBPassword = "storyline"
)

// MustStartPostgresContainer starts a pgvector-enabled Postgres container for tests.
// It returns the teardown function and the mapped host port.
func MustStartPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	container, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase(testDBName),
		postgres.WithUsername(testDBUser),
		postgres.WithPassword(testDBPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return container.Terminate, "", fmt.Errorf("failed to get mapped port: %w", err)
	}

	return container.Terminate, mappedPort.Port(), nil
}

// EnvSetter is the subset of testing.T used to set environment variables
// with automatic restore. Declared here so this file does not pull the
// testing package into non-test binaries.
type EnvSetter interface {
	Setenv(key string, value string)
}

// SetTestDatabaseConfigEnvs sets the database configuration environment
// variables used by NewDatabaseConfiguration to point at the test container
func SetTestDatabaseConfigEnvs(t EnvSetter, port string) {
	t.Setenv("STORYLINE_DB_HOST", "localhost")
	t.Setenv("STORYLINE_DB_PORT", port)
	t.Setenv("STORYLINE_DB_USER", testDBUser)
	t.Setenv("STORYLINE_DB_PASSWORD", testDBPassword)
	t.Setenv("STORYLINE_DB_NAME", testDBName)
}
