// Package boltstore persists ratings in an embedded bbolt database.
// Every commit is one read-write transaction.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/okian/lighthouse/internal/adapters/repository"
	"github.com/okian/lighthouse/internal/clock"
	"github.com/okian/lighthouse/internal/config"
	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/types"
	"github.com/okian/lighthouse/pkg/metrics"
)

// Driver is the registry name of this backend.
const Driver = "bolt"

const (
	defaultPath = "ratings.db"
	openTimeout = 5 * time.Second
)

var (
	bucketPlayers       = []byte("players")
	bucketHistory       = []byte("history")
	bucketPlayerHistory = []byte("player_history")
	bucketMeta          = []byte("meta")
	keyState            = []byte("state")
)

func init() { //nolint:gochecknoinits // driver registration
	repository.Register(Driver, func(_ context.Context, cfg config.StoreConfig, clk clock.Clock) (repository.Store, error) {
		path := cfg.Path
		if path == "" {
			path = defaultPath
		}
		return Open(path, clk)
	})
}

type meta struct {
	Last        model.Stamp `json:"last"`
	NextSeq     int64       `json:"next_seq"`
	CommittedAt time.Time   `json:"committed_at"`
}

// Store is a bbolt-backed rating store.
type Store struct {
	db  *bolt.DB
	clk clock.Clock
}

// Open opens or creates the database file at path.
func Open(path string, clk clock.Clock) (*Store, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, repository.Unavailable("opening "+path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketPlayers, bucketHistory, bucketPlayerHistory, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("creating bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, repository.Unavailable("initialising buckets", err)
	}
	return &Store{db: db, clk: clk}, nil
}

func readMeta(tx *bolt.Tx) (meta, bool, error) {
	var m meta
	v := tx.Bucket(bucketMeta).Get(keyState)
	if v == nil {
		return m, false, nil
	}
	if err := json.Unmarshal(v, &m); err != nil {
		return m, false, fmt.Errorf("decoding meta: %w", err)
	}
	return m, true, nil
}

func seqKey(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n)
	return k
}

// Load implements repository.Store.
func (s *Store) Load(_ context.Context, ids ...string) (model.State, bool, error) {
	st := model.State{Players: make(map[string]model.Player, len(ids))}
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		m, found, err := readMeta(tx)
		if err != nil {
			return err
		}
		ok = found
		st.Last, st.NextSeq = m.Last, m.NextSeq
		b := tx.Bucket(bucketPlayers)
		for _, id := range ids {
			v := b.Get([]byte(id))
			if v == nil {
				continue
			}
			var p model.Player
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decoding player %q: %w", id, err)
			}
			st.Players[id] = p
		}
		return nil
	})
	if err != nil {
		metrics.RecordStoreError(Driver, "load")
		return model.State{}, false, repository.Unavailable("load", err)
	}
	return st, ok, nil
}

// Commit implements repository.Store.
func (s *Store) Commit(_ context.Context, c model.Commit) error {
	start := time.Now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		m, committed, err := readMeta(tx)
		if err != nil {
			return err
		}
		if err := repository.CheckCommit(m.Last, committed, c); err != nil {
			return err
		}

		players := tx.Bucket(bucketPlayers)
		history := tx.Bucket(bucketHistory)
		perPlayer := tx.Bucket(bucketPlayerHistory)
		for _, p := range c.Players {
			v, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if err := players.Put([]byte(p.ID), v); err != nil {
				return err
			}

			row, err := json.Marshal(model.HistoryPoint{Stamp: c.Stamp, PlayerID: p.ID, Rating: p.Rating})
			if err != nil {
				return err
			}
			n, err := history.NextSequence()
			if err != nil {
				return err
			}
			if err := history.Put(seqKey(n), row); err != nil {
				return err
			}
			pb, err := perPlayer.CreateBucketIfNotExists([]byte(p.ID))
			if err != nil {
				return err
			}
			if err := pb.Put(seqKey(n), row); err != nil {
				return err
			}
		}

		v, err := json.Marshal(meta{Last: c.Stamp, NextSeq: max(m.NextSeq, c.NextSeq), CommittedAt: s.clk.Now().UTC()})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyState, v)
	})
	switch {
	case errors.Is(err, repository.ErrConflict):
		metrics.RecordStoreError(Driver, "conflict")
		return err
	case errors.Is(err, repository.ErrOutOfOrder), errors.Is(err, repository.ErrEmptyCommit):
		return err
	case err != nil:
		metrics.RecordStoreError(Driver, "commit")
		return repository.Unavailable("commit", err)
	}
	metrics.RecordStoreCommit(Driver, time.Since(start))
	return nil
}

// Get implements repository.Store.
func (s *Store) Get(_ context.Context, id string) (model.Player, bool, error) {
	var (
		p  model.Player
		ok bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPlayers).Get([]byte(id))
		if v == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(v, &p)
	})
	if err != nil {
		return model.Player{}, false, repository.Unavailable("get", err)
	}
	return p, ok, nil
}

// ranked returns every player in leaderboard order.
func (s *Store) ranked() ([]model.Player, error) {
	var all []model.Player
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPlayers).ForEach(func(_, v []byte) error {
			var p model.Player
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			all = append(all, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Rating != all[j].Rating {
			return all[i].Rating > all[j].Rating
		}
		return all[i].Seq < all[j].Seq
	})
	return all, nil
}

// Rank implements repository.Store.
func (s *Store) Rank(_ context.Context, id string) (types.Entry, error) {
	all, err := s.ranked()
	if err != nil {
		return types.Entry{}, repository.Unavailable("rank", err)
	}
	for i, p := range all {
		if p.ID == id {
			return p.Entry(i + 1), nil
		}
	}
	return types.Entry{}, repository.ErrNotFound
}

// Top implements repository.Store.
func (s *Store) Top(_ context.Context, n, minMatches int) ([]types.Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQuery(Driver, "top", time.Since(start))
	}()
	if n < 1 {
		return nil, repository.ErrInvalidLimit
	}
	all, err := s.ranked()
	if err != nil {
		return nil, repository.Unavailable("top", err)
	}
	out := make([]types.Entry, 0, min(n, len(all)))
	for _, p := range all {
		if len(out) == n {
			break
		}
		if p.MatchesPlayed < minMatches {
			continue
		}
		out = append(out, p.Entry(len(out)+1))
	}
	return out, nil
}

// History implements repository.Store.
func (s *Store) History(_ context.Context, playerID string) ([]model.HistoryPoint, error) {
	var out []model.HistoryPoint
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		if playerID != "" {
			b = tx.Bucket(bucketPlayerHistory).Bucket([]byte(playerID))
			if b == nil {
				return nil
			}
		}
		return b.ForEach(func(_, v []byte) error {
			var h model.HistoryPoint
			if err := json.Unmarshal(v, &h); err != nil {
				return err
			}
			out = append(out, h)
			return nil
		})
	})
	if err != nil {
		return nil, repository.Unavailable("history", err)
	}
	return out, nil
}

// Snapshot implements repository.Store.
func (s *Store) Snapshot(_ context.Context, at model.Stamp) (model.Snapshot, error) {
	var points []model.HistoryPoint
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var h model.HistoryPoint
			if err := json.Unmarshal(v, &h); err != nil {
				return err
			}
			if h.Stamp.After(at) {
				break
			}
			points = append(points, h)
		}
		return nil
	})
	if err != nil {
		return model.Snapshot{}, repository.Unavailable("snapshot", err)
	}
	return repository.BuildSnapshot(points, at)
}

// Count implements repository.Store.
func (s *Store) Count(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketPlayers).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, repository.Unavailable("count", err)
	}
	return n, nil
}

// Ping implements repository.Store.
func (s *Store) Ping(_ context.Context) error {
	if err := s.db.View(func(*bolt.Tx) error { return nil }); err != nil {
		return repository.Unavailable("ping", err)
	}
	return nil
}

// Close implements repository.Store. It is safe to call more than once.
func (s *Store) Close() error {
	return s.db.Close()
}
