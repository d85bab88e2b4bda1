package repository

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/types"
	"github.com/okian/lighthouse/pkg/metrics"
)

// DriverMemory is the registry name of the in-memory store.
const DriverMemory = "memory"

// Treap-based ordered index over current ratings.
//
// Ordering: rating DESC, then first-seen seq ASC. "less" means ranks earlier,
// so an in-order traversal yields the leaderboard from best to worst.
// Node priorities are a hash of the player id, which keeps the shape
// independent of insertion order.

type node struct {
	id     string
	rating float64
	seq    int64
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aRating, aSeq) should appear before (bRating, bSeq).
func less(aRating float64, aSeq int64, bRating float64, bSeq int64) bool {
	if aRating != bRating {
		return aRating > bRating
	}
	return aSeq < bSeq
}

func priority(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, p model.Player) *node {
	if n == nil {
		return &node{id: p.ID, rating: p.Rating, seq: p.Seq, prio: priority(p.ID), size: 1}
	}
	if less(p.Rating, p.Seq, n.rating, n.seq) {
		n.left = insert(n.left, p)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, p)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, p model.Player) *node {
	if n == nil {
		return nil
	}
	if n.id == p.ID {
		// Rotate the higher-priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, p)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, p)
		}
	} else if less(p.Rating, p.Seq, n.rating, n.seq) {
		n.left = deleteNode(n.left, p)
	} else {
		n.right = deleteNode(n.right, p)
	}
	fix(n)
	return n
}

// position returns the zero-based in-order index of p.
func position(n *node, p model.Player) int {
	pos := 0
	for n != nil {
		switch {
		case n.id == p.ID:
			return pos + nsize(n.left)
		case less(p.Rating, p.Seq, n.rating, n.seq):
			n = n.left
		default:
			pos += nsize(n.left) + 1
			n = n.right
		}
	}
	return -1
}

// collectTop appends, in rank order, players passing the matches filter until limit is reached.
func collectTop(n *node, limit, minMatches int, players map[string]model.Player, out *[]types.Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTop(n.left, limit, minMatches, players, out)
	if len(*out) < limit {
		if p, ok := players[n.id]; ok && p.MatchesPlayed >= minMatches {
			*out = append(*out, p.Entry(0))
		}
	}
	collectTop(n.right, limit, minMatches, players, out)
}

// MemoryStore keeps ratings and history in process memory.
// It is the reference Store and the read side of the file backend.
type MemoryStore struct {
	mu        sync.RWMutex
	root      *node
	players   map[string]model.Player
	history   []model.HistoryPoint
	byPlayer  map[string][]int
	last      model.Stamp
	committed bool
	nextSeq   int64
	closed    bool
	label     string
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		players:  make(map[string]model.Player),
		byPlayer: make(map[string][]int),
		label:    DriverMemory,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore replaces the store content with previously persisted state.
func (s *MemoryStore) Restore(state model.State, committed bool, history []model.HistoryPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.root = nil
	s.players = make(map[string]model.Player, len(state.Players))
	for id, p := range state.Players {
		s.players[id] = p
		s.root = insert(s.root, p)
	}
	s.history = nil
	s.byPlayer = make(map[string][]int)
	for _, h := range history {
		s.appendHistory(h)
	}
	s.last, s.committed, s.nextSeq = state.Last, committed, state.NextSeq
	metrics.UpdatePlayersTracked(len(s.players))
}

func (s *MemoryStore) appendHistory(h model.HistoryPoint) {
	s.byPlayer[h.PlayerID] = append(s.byPlayer[h.PlayerID], len(s.history))
	s.history = append(s.history, h)
}

// Load implements rating.Store.
func (s *MemoryStore) Load(_ context.Context, ids ...string) (model.State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.State{}, false, ErrClosed
	}
	st := model.State{Last: s.last, NextSeq: s.nextSeq, Players: make(map[string]model.Player, len(ids))}
	for _, id := range ids {
		if p, ok := s.players[id]; ok {
			st.Players[id] = p
		}
	}
	return st, s.committed, nil
}

// Commit implements rating.Store.
func (s *MemoryStore) Commit(_ context.Context, c model.Commit) error {
	start := time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err := CheckCommit(s.last, s.committed, c); err != nil {
		s.mu.Unlock()
		return err
	}
	for _, p := range c.Players {
		if old, ok := s.players[p.ID]; ok {
			s.root = deleteNode(s.root, old)
		}
		s.players[p.ID] = p
		s.root = insert(s.root, p)
		s.appendHistory(model.HistoryPoint{Stamp: c.Stamp, PlayerID: p.ID, Rating: p.Rating})
	}
	s.last, s.committed = c.Stamp, true
	if c.NextSeq > s.nextSeq {
		s.nextSeq = c.NextSeq
	}
	count := len(s.players)
	s.mu.Unlock()

	metrics.RecordStoreCommit(s.label, time.Since(start))
	metrics.UpdatePlayersTracked(count)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Player, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Player{}, false, ErrClosed
	}
	p, ok := s.players[id]
	return p, ok, nil
}

// Rank implements Store in O(log n).
func (s *MemoryStore) Rank(_ context.Context, id string) (types.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.Entry{}, ErrClosed
	}
	p, ok := s.players[id]
	if !ok {
		return types.Entry{}, ErrNotFound
	}
	return p.Entry(position(s.root, p) + 1), nil
}

// Top implements Store.
func (s *MemoryStore) Top(_ context.Context, n, minMatches int) ([]types.Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQuery(s.label, "top", time.Since(start))
	}()

	if n < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]types.Entry, 0, min(n, len(s.players)))
	collectTop(s.root, n, minMatches, s.players, &out)
	rankEntries(out)
	return out, nil
}

// History implements Store.
func (s *MemoryStore) History(_ context.Context, playerID string) ([]model.HistoryPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if playerID == "" {
		return append([]model.HistoryPoint(nil), s.history...), nil
	}
	idx := s.byPlayer[playerID]
	out := make([]model.HistoryPoint, len(idx))
	for i, j := range idx {
		out[i] = s.history[j]
	}
	return out, nil
}

// Snapshot implements Store.
func (s *MemoryStore) Snapshot(_ context.Context, at model.Stamp) (model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Snapshot{}, ErrClosed
	}
	// History is in stamp order, so only the prefix up to at is relevant.
	end := sort.Search(len(s.history), func(i int) bool { return s.history[i].Stamp.After(at) })
	return BuildSnapshot(s.history[:end], at)
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players), nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
