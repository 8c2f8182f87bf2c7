// Package testutil provides test helpers for backing services: a PostgreSQL container, an
// in-process redis, and repository paths.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cory-johannsen/demonlord/internal/config"
	"github.com/cory-johannsen/demonlord/internal/storage/postgres"
	"github.com/cory-johannsen/demonlord/migrations"
)

// Postgres is a migrated PostgreSQL database running in a container for the life of a test.
type Postgres struct {
	Pool   *pgxpool.Pool
	Config config.DatabaseConfig
}

// StartPostgres launches postgres:16-alpine, applies every embedded migration and connects a
// pool. It skips the test under -short. The container and pool are released on cleanup.
//
// Precondition: Docker must be available unless -short is set.
func StartPostgres(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in -short mode")
	}
	ctx := context.Background()
	start := time.Now()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "demonlord",
				"POSTGRES_PASSWORD": "demonlord",
				"POSTGRES_DB":       "demonlord_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	cfg := config.DatabaseConfig{
		Driver:          "postgres",
		Host:            host,
		Port:            port.Int(),
		User:            "demonlord",
		Password:        "demonlord",
		Name:            "demonlord_test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	if _, err := migrations.Run(cfg.DSN(), "up", 0); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	pool, err := postgres.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v", err)
	}
	t.Cleanup(pool.Close)
	t.Logf("postgres ready at %s:%d [%s]", host, cfg.Port, time.Since(start))
	return &Postgres{Pool: pool, Config: cfg}
}

// Reset deletes every subject; effects follow through the foreign key cascade.
func (p *Postgres) Reset(t *testing.T) {
	t.Helper()
	if _, err := p.Pool.Exec(context.Background(), `TRUNCATE subjects CASCADE`); err != nil {
		t.Fatalf("resetting tables: %v", err)
	}
}
