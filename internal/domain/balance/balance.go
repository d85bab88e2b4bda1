// Package balance splits players into two teams with a small rating gap.
package balance

import "sort"

// Rated is a player with the rating used for balancing.
type Rated struct {
	PlayerID string  `json:"player_id"`
	Rating   float64 `json:"rating"`
}

// Teams is the result of Balance.
type Teams struct {
	A    []Rated `json:"team_a"`
	B    []Rated `json:"team_b"`
	SumA float64 `json:"sum_a"`
	SumB float64 `json:"sum_b"`
}

// Gap is the absolute difference between the team rating sums.
func (t Teams) Gap() float64 {
	if t.SumA > t.SumB {
		return t.SumA - t.SumB
	}
	return t.SumB - t.SumA
}

// Balance sorts players by rating, strongest first, and deals them out two at
// a time. The stronger of each pair goes to A while diff = sum(A)-sum(B) and
// the pair's gap pull in the same direction, otherwise to B. An odd player
// out joins the weaker team (A on a tie). Input order breaks rating ties.
func Balance(players []Rated) Teams {
	sorted := make([]Rated, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rating > sorted[j].Rating })

	t := Teams{A: []Rated{}, B: []Rated{}}
	var diff float64
	for i := 0; i+1 < len(sorted); i += 2 {
		p1, p2 := sorted[i], sorted[i+1]
		gap := p2.Rating - p1.Rating
		if diff*gap >= 0 {
			t.add(p1, p2)
			diff -= gap
		} else {
			t.add(p2, p1)
			diff += gap
		}
	}
	if len(sorted)%2 == 1 {
		last := sorted[len(sorted)-1]
		if t.SumA <= t.SumB {
			t.A = append(t.A, last)
			t.SumA += last.Rating
		} else {
			t.B = append(t.B, last)
			t.SumB += last.Rating
		}
	}
	return t
}

func (t *Teams) add(a, b Rated) {
	t.A = append(t.A, a)
	t.B = append(t.B, b)
	t.SumA += a.Rating
	t.SumB += b.Rating
}
