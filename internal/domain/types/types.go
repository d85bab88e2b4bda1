// Package types contains common types used across the application
package types

// Entry represents a leaderboard entry
type Entry struct {
	Rank          int     `json:"rank"`
	PlayerID      string  `json:"player_id"`
	Rating        float64 `json:"rating"`
	MatchesPlayed int     `json:"matches_played"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	// WinRatio is wins over rated rounds, in [0, 1].
	WinRatio float64 `json:"win_ratio"`
}
