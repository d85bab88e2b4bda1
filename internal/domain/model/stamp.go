package model

import (
	"fmt"
	"time"
)

// Stamp totally orders rounds: match timestamp first, then round index.
// Every round of a match shares the match timestamp, so the index is part of the key.
type Stamp struct {
	Time  time.Time `json:"time"`
	Round int       `json:"round"`
}

// EpochStamp is the last-applied stamp of a store that has never committed.
func EpochStamp(t time.Time) Stamp {
	return Stamp{Time: t.UTC()}
}

// After reports whether s is strictly later than o.
func (s Stamp) After(o Stamp) bool {
	if !s.Time.Equal(o.Time) {
		return s.Time.After(o.Time)
	}
	return s.Round > o.Round
}

// Compare returns -1, 0 or +1.
func (s Stamp) Compare(o Stamp) int {
	switch {
	case s.After(o):
		return 1
	case o.After(s):
		return -1
	}
	return 0
}

// UTC normalises the time component.
func (s Stamp) UTC() Stamp {
	return Stamp{Time: s.Time.UTC(), Round: s.Round}
}

func (s Stamp) String() string {
	return fmt.Sprintf("%s/%d", s.Time.UTC().Format(time.RFC3339Nano), s.Round)
}
