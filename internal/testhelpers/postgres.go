// Package testhelpers runs a throwaway PostgreSQL in Docker for repository
// tests. Tests using it are skipped under -short.
package testhelpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fekuna/omnipos-catalog-sync/internal/database/migration"
	"github.com/fekuna/omnipos-catalog-sync/internal/database/postgres"
	"github.com/fekuna/omnipos-catalog-sync/internal/logger"
	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const ManualIDFloor int64 = 1_000_000

// SetupPostgres starts postgres:17, applies the catalog migrations and
// returns a connected handle. The container is terminated on test cleanup.
func SetupPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres-backed test in short mode")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:17",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "catalog",
			"POSTGRES_PASSWORD": "catalog",
			"POSTGRES_DB":       "catalog",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://catalog:catalog@%s:%s/catalog?sslmode=disable", host, port.Port())
	db, err := postgres.Open(dsn, nil)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migration.NewMigrator(db, logger.NewNop()).Up(ctx, migration.Catalog(ManualIDFloor)); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
