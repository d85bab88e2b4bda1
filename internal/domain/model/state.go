package model

// State is the committed rating state a round is computed against.
type State struct {
	// Last is the stamp of the last committed round.
	Last Stamp
	// Players holds the requested players that exist in the store.
	Players map[string]Player
	// NextSeq is the first-seen sequence number the next new player gets.
	NextSeq int64
}

// Commit is everything one applied round writes.
// Players carries the full new state of every participant of the round, and one
// history row is appended per participant at Stamp.
type Commit struct {
	Stamp   Stamp
	MatchID string
	Players []Player
	NextSeq int64
	// Base is the state the writer computed against. The store refuses the commit
	// unless it still holds exactly that state. A nil Base commits unconditionally.
	Base *Version
}

// Version names a committed state by its last stamp.
// Committed is false for a store nothing was ever committed to.
type Version struct {
	Last      Stamp
	Committed bool
}

// Version returns the version of s as loaded, ok being the Load result.
func (s State) Version(ok bool) *Version {
	return &Version{Last: s.Last, Committed: ok}
}
