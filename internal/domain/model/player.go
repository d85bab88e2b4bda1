package model

import "github.com/okian/lighthouse/internal/domain/types"

// DefaultRating is assigned to a player on first appearance.
const DefaultRating = 1000.0

// Player is the persisted rating state of one player.
type Player struct {
	ID            string  `json:"player_id" db:"player_id"`
	Rating        float64 `json:"rating" db:"rating"`
	MatchesPlayed int     `json:"matches_played" db:"matches_played"`
	LastMatchID   string  `json:"last_match_id" db:"last_match_id"`
	// Seq is the first-seen order, used to break rating ties.
	Seq int64 `json:"seq" db:"seq"`
	// Wins and Losses count rated rounds. Draws are never rated.
	Wins   int `json:"wins" db:"wins"`
	Losses int `json:"losses" db:"losses"`
}

// NewPlayer returns a player at the default rating.
func NewPlayer(id string, seq int64) Player {
	return Player{ID: id, Rating: DefaultRating, Seq: seq}
}

// RoundsPlayed is the number of rated rounds.
func (p Player) RoundsPlayed() int {
	return p.Wins + p.Losses
}

// WinRatio is the share of rated rounds won, 0 for a player without any.
func (p Player) WinRatio() float64 {
	if n := p.RoundsPlayed(); n > 0 {
		return float64(p.Wins) / float64(n)
	}
	return 0
}

// Entry returns p as a leaderboard entry at rank.
func (p Player) Entry(rank int) types.Entry {
	return types.Entry{
		Rank:          rank,
		PlayerID:      p.ID,
		Rating:        p.Rating,
		MatchesPlayed: p.MatchesPlayed,
		Wins:          p.Wins,
		Losses:        p.Losses,
		WinRatio:      p.WinRatio(),
	}
}

// Snapshot is the complete rating state as of one committed round.
type Snapshot struct {
	Stamp   Stamp              `json:"stamp"`
	Ratings map[string]float64 `json:"ratings"`
}

// HistoryPoint is one row of the rating time series.
type HistoryPoint struct {
	Stamp    Stamp   `json:"stamp"`
	PlayerID string  `json:"player_id"`
	Rating   float64 `json:"rating"`
}
