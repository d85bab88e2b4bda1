package api

import (
	"net/http"
	"strconv"
)

const defaultLeaderboardLimit = 10

// handleGetLeaderboard handles GET /leaderboard?limit=N&min_matches=M.
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	q := r.URL.Query()

	n := min(defaultLeaderboardLimit, s.deps.MaxLeaderboardLimit())
	if v := q.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeFailure(w, NewKind(op, ErrBadRequest))
			return
		}
		if parsed > s.deps.MaxLeaderboardLimit() {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
			return
		}
		n = parsed
	}

	minMatches := -1
	if v := q.Get("min_matches"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeFailure(w, NewKind(op, ErrBadRequest))
			return
		}
		minMatches = parsed
	}

	entries, err := s.deps.Top(r.Context(), n, minMatches)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
