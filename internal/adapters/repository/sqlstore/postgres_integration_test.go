//go:build integration

package sqlstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/adapters/repository/sqlstore"
	"github.com/okian/versus/internal/adapters/repository/storetest"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	pg, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("versus"),
		postgres.WithUsername("versus"),
		postgres.WithPassword("versus"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storetest.Run(t, func(t *testing.T) repository.Store {
		s, err := sqlstore.Open(ctx, sqlstore.DriverPostgres, dsn,
			sqlstore.WithClock(func() time.Time { return storetest.Now }))
		require.NoError(t, err)
		_, err = s.Migrate(ctx)
		require.NoError(t, err)
		_, err = s.DB().ExecContext(ctx, `TRUNCATE votes, items`)
		require.NoError(t, err)
		return s
	})
}
