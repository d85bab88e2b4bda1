// Package replay feeds a season of rounds into the rating engine, either
// directly against a store or through a running service.
package replay

import "time"

// Config holds configuration for a replay run.
type Config struct {
	Input      string        // JSON-lines file of rounds; empty generates a season
	BaseURL    string        // Service URL; empty applies rounds locally
	TopN       int           // Leaderboard entries to fetch afterwards
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Where to write the rounds that were replayed
	Verbose    bool          // Log every skipped round
	Season     SeasonConfig
}

// SeasonConfig describes a synthetic season.
type SeasonConfig struct {
	Players        int
	Matches        int
	RoundsPerMatch int
	TeamSize       int
	Start          time.Time
	Interval       time.Duration // between match timestamps
	Seed           int64
	Features       bool // attach kill/death/damage vectors to every result
}

// DefaultSeason is a small five-a-side season.
func DefaultSeason() SeasonConfig {
	return SeasonConfig{
		Players:        50,
		Matches:        200,
		RoundsPerMatch: 3,
		TeamSize:       5,
		Start:          time.Date(2023, 3, 4, 0, 0, 0, 0, time.UTC),
		Interval:       time.Hour,
		Seed:           1,
	}
}

// Stats holds replay statistics.
type Stats struct {
	RoundsLoaded       int
	Applied            int
	Stale              int
	Degenerate         int
	Malformed          int
	Failed             int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}

// Skipped is the number of rounds the engine dropped.
func (s Stats) Skipped() int { return s.Stale + s.Degenerate + s.Malformed }
