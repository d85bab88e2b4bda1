// Package filestore persists ratings in a directory: current.json holds the
// committed state and history.csv the append-only time series.
//
// A commit appends history rows first, then publishes current.json by writing a
// temporary file, syncing it and renaming it over the old one. The rename is the
// commit point; history bytes past the length it records are discarded on open.
package filestore

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/lighthouse/internal/adapters/repository"
	"github.com/okian/lighthouse/internal/clock"
	"github.com/okian/lighthouse/internal/config"
	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/types"
	"github.com/okian/lighthouse/pkg/metrics"
)

// Driver is the registry name of this backend.
const Driver = "file"

// ErrLocked is returned by Open when another store holds the directory.
var ErrLocked = errors.New("store directory is in use")

const (
	currentFile = "current.json"
	historyFile = "history.csv"
	defaultDir  = "data"
)

func init() { //nolint:gochecknoinits // driver registration
	repository.Register(Driver, func(_ context.Context, cfg config.StoreConfig, clk clock.Clock) (repository.Store, error) {
		dir := cfg.Path
		if dir == "" {
			dir = defaultDir
		}
		return Open(dir, clk)
	})
}

// current is the on-disk layout of current.json.
type current struct {
	Last        model.Stamp `json:"last"`
	NextSeq     int64       `json:"next_seq"`
	CommittedAt time.Time   `json:"committed_at"`
	// HistoryBytes is the length of history.csv that belongs to this state.
	HistoryBytes int64                   `json:"history_bytes"`
	Players      map[string]model.Player `json:"players"`
}

// Store is a directory-backed rating store. Reads are served from memory.
type Store struct {
	mu      sync.Mutex
	dir     string
	clk     clock.Clock
	mem     *repository.MemoryStore
	players map[string]model.Player
	hist    *os.File
	// histSize is the byte length of history.csv covered by the committed state.
	histSize int64
	closed   bool
}

// Open loads or creates a store in dir.
func Open(dir string, clk clock.Clock) (*Store, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, repository.Unavailable("creating store dir", err)
	}

	hist, err := os.OpenFile(filepath.Join(dir, historyFile), os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		return nil, repository.Unavailable("opening history", err)
	}
	// The lock on history.csv makes this handle the only writer of dir.
	if err := lockFile(hist); err != nil {
		_ = hist.Close()
		return nil, repository.Unavailable("locking "+dir, err)
	}

	cur, committed, err := readCurrent(filepath.Join(dir, currentFile))
	if err != nil {
		_ = hist.Close()
		return nil, err
	}
	points, err := recoverHistory(hist, cur.HistoryBytes)
	if err != nil {
		_ = hist.Close()
		return nil, err
	}

	s := &Store{
		dir:      dir,
		clk:      clk,
		mem:      repository.NewMemoryStore(repository.WithMetricsLabel(Driver)),
		players:  cur.Players,
		hist:     hist,
		histSize: cur.HistoryBytes,
	}
	s.mem.Restore(model.State{Last: cur.Last, NextSeq: cur.NextSeq, Players: cur.Players}, committed, points)
	return s, nil
}

func readCurrent(path string) (current, bool, error) {
	cur := current{Players: map[string]model.Player{}}
	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return cur, false, nil
	}
	if err != nil {
		return cur, false, repository.Unavailable("reading current state", err)
	}
	if err := json.Unmarshal(data, &cur); err != nil {
		return cur, false, repository.Unavailable("decoding current state", err)
	}
	if cur.Players == nil {
		cur.Players = map[string]model.Player{}
	}
	return cur, true, nil
}

// recoverHistory cuts history.csv back to the length recorded by the last
// published state, dropping rows of a commit that never completed, and reads it.
// It leaves the file positioned at its end.
func recoverHistory(f *os.File, size int64) ([]model.HistoryPoint, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, repository.Unavailable("stat history", err)
	}
	if st.Size() != size {
		if st.Size() < size {
			return nil, repository.Unavailable("reading history",
				fmt.Errorf("history.csv has %d bytes, committed state expects %d", st.Size(), size))
		}
		if err := f.Truncate(size); err != nil {
			return nil, repository.Unavailable("truncating history", err)
		}
		if err := f.Sync(); err != nil {
			return nil, repository.Unavailable("syncing history", err)
		}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, repository.Unavailable("reading history", err)
	}
	points, err := repository.ReadHistoryCSV(io.LimitReader(f, size))
	if err != nil {
		return nil, repository.Unavailable("reading history", err)
	}
	if _, err := f.Seek(size, io.SeekStart); err != nil {
		return nil, repository.Unavailable("seeking history", err)
	}
	return points, nil
}

// Load implements repository.Store.
func (s *Store) Load(ctx context.Context, ids ...string) (model.State, bool, error) {
	return s.mem.Load(ctx, ids...)
}

// Commit implements repository.Store.
func (s *Store) Commit(ctx context.Context, c model.Commit) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return repository.ErrClosed
	}
	st, committed, err := s.mem.Load(ctx)
	if err != nil {
		return err
	}
	if err := repository.CheckCommit(st.Last, committed, c); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			metrics.RecordStoreError(Driver, "conflict")
		}
		return err
	}

	written, err := s.appendHistory(c)
	if err != nil {
		metrics.RecordStoreError(Driver, "commit")
		_ = s.hist.Truncate(s.histSize)
		_, _ = s.hist.Seek(s.histSize, io.SeekStart)
		return err
	}
	histEnd := s.histSize + written

	next := make(map[string]model.Player, len(s.players)+len(c.Players))
	for id, p := range s.players {
		next[id] = p
	}
	for _, p := range c.Players {
		next[p.ID] = p
	}
	nextSeq := max(st.NextSeq, c.NextSeq)
	if err := s.publish(current{
		Last:         c.Stamp,
		NextSeq:      nextSeq,
		CommittedAt:  s.clk.Now().UTC(),
		HistoryBytes: histEnd,
		Players:      next,
	}); err != nil {
		metrics.RecordStoreError(Driver, "commit")
		// Drop the rows of the failed commit so the file matches the published state.
		_ = s.hist.Truncate(s.histSize)
		_, _ = s.hist.Seek(s.histSize, io.SeekStart)
		return err
	}
	s.players = next
	s.histSize = histEnd

	if err := s.mem.Commit(ctx, c); err != nil {
		return err
	}
	metrics.RecordStoreCommit(Driver, time.Since(start))
	return nil
}

// appendHistory writes and syncs the rows of c, returning the bytes written.
func (s *Store) appendHistory(c model.Commit) (int64, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if s.histSize == 0 {
		if err := cw.Write(repository.HistoryHeader); err != nil {
			return 0, repository.Unavailable("encoding history", err)
		}
	}
	points := make([]model.HistoryPoint, len(c.Players))
	for i, p := range c.Players {
		points[i] = model.HistoryPoint{Stamp: c.Stamp, PlayerID: p.ID, Rating: p.Rating}
	}
	if err := repository.WriteHistoryRows(cw, points); err != nil {
		return 0, repository.Unavailable("encoding history", err)
	}
	if _, err := s.hist.Write(buf.Bytes()); err != nil {
		return 0, repository.Unavailable("appending history", err)
	}
	if err := s.hist.Sync(); err != nil {
		return 0, repository.Unavailable("syncing history", err)
	}
	return int64(buf.Len()), nil
}

// publish atomically replaces current.json.
func (s *Store) publish(cur current) error {
	data, err := json.Marshal(cur)
	if err != nil {
		return repository.Unavailable("encoding current state", err)
	}
	tmp, err := os.CreateTemp(s.dir, currentFile+".*.tmp")
	if err != nil {
		return repository.Unavailable("creating temp state", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return repository.Unavailable("writing temp state", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return repository.Unavailable("syncing temp state", err)
	}
	if err := tmp.Close(); err != nil {
		return repository.Unavailable("closing temp state", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, currentFile)); err != nil {
		return repository.Unavailable("publishing state", err)
	}
	return syncDir(s.dir)
}

func syncDir(dir string) error {
	d, err := os.Open(filepath.Clean(dir))
	if err != nil {
		return repository.Unavailable("opening store dir", err)
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return repository.Unavailable("syncing store dir", err)
	}
	return nil
}

// Get implements repository.Store.
func (s *Store) Get(ctx context.Context, id string) (model.Player, bool, error) {
	return s.mem.Get(ctx, id)
}

// Rank implements repository.Store.
func (s *Store) Rank(ctx context.Context, id string) (types.Entry, error) {
	return s.mem.Rank(ctx, id)
}

// Top implements repository.Store.
func (s *Store) Top(ctx context.Context, n, minMatches int) ([]types.Entry, error) {
	return s.mem.Top(ctx, n, minMatches)
}

// History implements repository.Store.
func (s *Store) History(ctx context.Context, playerID string) ([]model.HistoryPoint, error) {
	return s.mem.History(ctx, playerID)
}

// Snapshot implements repository.Store.
func (s *Store) Snapshot(ctx context.Context, at model.Stamp) (model.Snapshot, error) {
	return s.mem.Snapshot(ctx, at)
}

// Count implements repository.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.mem.Count(ctx)
}

// Ping implements repository.Store by checking the directory is still there.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.mem.Ping(ctx); err != nil {
		return err
	}
	if _, err := os.Stat(s.dir); err != nil {
		return repository.Unavailable("stat store dir", err)
	}
	return nil
}

// Close releases the history file. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.mem.Close()
	if err := s.hist.Close(); err != nil {
		return fmt.Errorf("closing history: %w", err)
	}
	return nil
}
