package sqlstore_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/adapters/repository/sqlstore"
	"github.com/okian/versus/internal/adapters/repository/storetest"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func openSQLite(t *testing.T, opts ...sqlstore.Option) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()
	opts = append([]sqlstore.Option{sqlstore.WithClock(func() time.Time { return storetest.Now })}, opts...)
	s, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, ":memory:", opts...)
	require.NoError(t, err)
	_, err = s.Migrate(ctx)
	require.NoError(t, err)
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store { return openSQLite(t) })
}

func TestSQLiteStoreLocation(t *testing.T) {
	storetest.RunZoned(t, func(t *testing.T) repository.Store {
		return openSQLite(t, sqlstore.WithLocation(storetest.Pacific))
	})
}

func TestWithLoggerReceivesStoreLogs(t *testing.T) {
	var own, global bytes.Buffer
	require.NoError(t, logger.Init(logger.WithWriter(&own)))
	l := logger.Get().Named("custom")
	require.NoError(t, logger.Init(logger.WithWriter(&global)))
	t.Cleanup(func() { _ = logger.Init() })

	s := openSQLite(t, sqlstore.WithLogger(l))
	defer s.Close()
	assert.Contains(t, own.String(), "store connected")
	assert.Contains(t, own.String(), "schema migrated")
	assert.NotContains(t, global.String(), "store connected")
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	defer s.Close()

	n, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second run has nothing to apply")
}

func TestRollbackThenMigrate(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	defer s.Close()

	n, err := s.Rollback(ctx)
	require.NoError(t, err)
	assert.Positive(t, n)

	n, err = s.Rollback(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing left to roll back")

	n, err = s.Migrate(ctx)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := sqlstore.Open(context.Background(), "oracle", "dsn")
	assert.True(t, errors.Is(err, sqlstore.ErrUnknownDriver))
}

func TestItemRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	defer s.Close()

	year := 1969
	seeded, err := s.SeedItem(ctx, model.Item{ID: "moon", ListID: 4, Name: "Moon landing", Category: "Space", Rating: 1100, Year: &year})
	require.NoError(t, err)
	assert.Equal(t, "moon", seeded.ID)

	other, err := s.SeedItem(ctx, model.Item{ListID: 4, Name: "Sputnik"})
	require.NoError(t, err)

	at := storetest.Now.Add(time.Hour)
	_, err = s.ApplyVote(ctx, model.Ballot{WinnerID: other.ID, LoserID: "moon", Voter: model.Voter{UserID: "u1"}, ListID: 4, At: at})
	require.NoError(t, err)

	all, err := s.LoadAllItems(ctx, 4)
	require.NoError(t, err)
	require.Len(t, all, 2)

	var moon model.Item
	for _, it := range all {
		if it.ID == "moon" {
			moon = it
		}
	}
	assert.Equal(t, "Space", moon.Category)
	require.NotNil(t, moon.Year)
	assert.Equal(t, 1969, *moon.Year)
	require.NotNil(t, moon.LastPlayed)
	assert.True(t, moon.LastPlayed.Equal(at))
	assert.Equal(t, 1, moon.Losses)
	assert.Less(t, moon.Rating, 1100.0)
}
