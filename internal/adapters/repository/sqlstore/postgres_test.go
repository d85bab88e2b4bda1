package sqlstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/okian/lighthouse/internal/adapters/repository"
	"github.com/okian/lighthouse/internal/adapters/repository/sqlstore"
	"github.com/okian/lighthouse/internal/adapters/repository/storetest"
	"github.com/okian/lighthouse/internal/clock"
)

// startPostgres runs a throwaway Postgres container and returns its DSN.
// The container is terminated when the test ends.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("lighthouse_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}
	return dsn
}

func TestPostgresConformance(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	admin, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })

	storetest.Run(t, func(t *testing.T) (repository.Store, func() repository.Store) {
		s, err := sqlstore.Open(ctx, sqlstore.DriverPostgres, dsn, 4, clock.Real{})
		require.NoError(t, err)
		_, err = admin.ExecContext(ctx, `TRUNCATE players, history, meta RESTART IDENTITY`)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s, func() repository.Store {
			s2, err := sqlstore.Open(ctx, sqlstore.DriverPostgres, dsn, 4, clock.Real{})
			require.NoError(t, err)
			return s2
		}
	})
}

func TestPostgresSharedDSN(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	storetest.RunShared(t, func(t *testing.T) (repository.Store, repository.Store) {
		a, err := sqlstore.Open(ctx, sqlstore.DriverPostgres, dsn, 4, clock.Real{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = a.Close() })
		b, err := sqlstore.Open(ctx, sqlstore.DriverPostgres, dsn, 4, clock.Real{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close() })
		return a, b
	})
}
