package filestore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okian/lighthouse/internal/adapters/repository"
	"github.com/okian/lighthouse/internal/adapters/repository/filestore"
	"github.com/okian/lighthouse/internal/adapters/repository/storetest"
	"github.com/okian/lighthouse/internal/clock"
	"github.com/okian/lighthouse/internal/config"
	"github.com/okian/lighthouse/internal/domain/model"
)

var clk = clock.Mock{T: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

func TestFileStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (repository.Store, func() repository.Store) {
		dir := t.TempDir()
		s, err := filestore.Open(dir, clk)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s, func() repository.Store {
			s2, err := filestore.Open(dir, clk)
			require.NoError(t, err)
			return s2
		}
	})
}

func commit(t *testing.T, s repository.Store, minute int, players ...model.Player) {
	t.Helper()
	require.NoError(t, s.Commit(context.Background(), model.Commit{
		Stamp:   model.Stamp{Time: storetest.Base.Add(time.Duration(minute) * time.Minute), Round: 1},
		Players: players,
		NextSeq: int64(len(players)),
	}))
}

func TestFileStoreDropsUnpublishedHistory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := filestore.Open(dir, clk)
	require.NoError(t, err)
	commit(t, s, 0, model.Player{ID: "a", Rating: 1016, Seq: 0}, model.Player{ID: "b", Rating: 984, Seq: 1})
	require.NoError(t, s.Close())

	// A crash after appending history but before publishing current.json
	// leaves extra, possibly partial, rows behind.
	f, err := os.OpenFile(filepath.Join(dir, "history.csv"), os.O_APPEND|os.O_WRONLY, 0o640)
	require.NoError(t, err)
	_, err = f.WriteString("2023-03-04T21:00:00Z,1,a,1032\n2023-03-04T21:00:00Z,1,b,9")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	// And a temp file that was never renamed.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "current.json.123.tmp"), []byte("{"), 0o600))

	s2, err := filestore.Open(dir, clk)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	all, err := s2.History(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	commit(t, s2, 60, model.Player{ID: "a", Rating: 1030, Seq: 0})
	a, err := s2.History(ctx, "a")
	require.NoError(t, err)
	require.Len(t, a, 2)
	require.InDelta(t, 1030, a[1].Rating, 1e-9)
}

func TestFileStoreDriver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ratings")
	s, err := repository.Open(context.Background(), config.StoreConfig{Driver: filestore.Driver, Path: dir}, clk)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Ping(context.Background()))
	_, err = os.Stat(dir)
	require.NoError(t, err)
}
