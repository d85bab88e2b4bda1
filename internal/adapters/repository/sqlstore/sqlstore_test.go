package sqlstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okian/lighthouse/internal/adapters/repository"
	"github.com/okian/lighthouse/internal/adapters/repository/sqlstore"
	"github.com/okian/lighthouse/internal/adapters/repository/storetest"
	"github.com/okian/lighthouse/internal/clock"
	"github.com/okian/lighthouse/internal/config"
	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/rating"
)

func TestSQLiteConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (repository.Store, func() repository.Store) {
		path := filepath.Join(t.TempDir(), "ratings.sqlite")
		s, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, path, 0, clock.Real{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s, func() repository.Store {
			s2, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, path, 0, clock.Real{})
			require.NoError(t, err)
			return s2
		}
	})
}

func openSQLitePair(t *testing.T) (repository.Store, repository.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ratings.sqlite")
	a, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, path, 0, clock.Real{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	b, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, path, 0, clock.Real{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return a, b
}

func TestSQLiteSharedFile(t *testing.T) {
	storetest.RunShared(t, openSQLitePair)
}

// interleaved runs before, once, ahead of the first commit through it.
type interleaved struct {
	repository.Store
	before func()
}

func (s *interleaved) Commit(ctx context.Context, c model.Commit) error {
	if f := s.before; f != nil {
		s.before = nil
		f()
	}
	return s.Store.Commit(ctx, c)
}

func TestSQLiteEnginesOnOneFile(t *testing.T) {
	ctx := context.Background()
	a, b := openSQLitePair(t)
	t0 := time.Date(2023, 3, 4, 20, 0, 0, 0, time.UTC)

	other, err := rating.New(b)
	require.NoError(t, err)
	racing := &interleaved{Store: a, before: func() {
		_, err := other.Apply(ctx, model.Round{MatchID: "m1", Index: 1, Timestamp: t0, Results: []model.PlayerResult{
			{PlayerID: "p", Outcome: model.Win}, {PlayerID: "q", Outcome: model.Loss},
		}})
		require.NoError(t, err)
	}}
	engine, err := rating.New(racing)
	require.NoError(t, err)

	res, err := engine.Apply(ctx, model.Round{MatchID: "m2", Index: 1, Timestamp: t0.Add(time.Hour), Results: []model.PlayerResult{
		{PlayerID: "q", Outcome: model.Win}, {PlayerID: "p", Outcome: model.Loss},
	}})
	require.NoError(t, err)

	h, err := a.History(ctx, "p")
	require.NoError(t, err)
	require.Len(t, h, 2)
	require.InDelta(t, 1016, h[0].Rating, 1e-9)
	require.InDelta(t, res.Ratings["p"], h[1].Rating, 1e-9)
	require.Less(t, h[1].Rating, 1016.0)

	p, _, err := b.Get(ctx, "p")
	require.NoError(t, err)
	require.Equal(t, 2, p.MatchesPlayed)
	require.EqualValues(t, 0, p.Seq)
}

func TestSQLiteThroughRegistry(t *testing.T) {
	ctx := context.Background()
	s, err := repository.Open(ctx, config.StoreConfig{
		Driver: sqlstore.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "r.sqlite"),
	}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Count(ctx)
	require.True(t, errors.Is(err, repository.ErrUnavailable), "got %v", err)
}

func TestPostgresRequiresDSN(t *testing.T) {
	_, err := repository.Open(context.Background(), config.StoreConfig{Driver: sqlstore.DriverPostgres}, nil)
	require.True(t, errors.Is(err, config.ErrInvalidConfig), "got %v", err)
}

func TestUnknownDialect(t *testing.T) {
	_, err := sqlstore.Open(context.Background(), "oracle", "x", 0, nil)
	require.True(t, errors.Is(err, config.ErrInvalidConfig), "got %v", err)
}
