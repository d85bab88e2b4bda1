package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/lighthouse/internal/domain/balance"
)

const maxTeamsBody = 64 << 10

type teamsRequest struct {
	PlayerIDs []string `json:"player_ids"`
}

type teamsResponse struct {
	balance.Teams
	Gap float64 `json:"gap"`
}

// handlePostTeams handles POST /teams.
func (s *Server) handlePostTeams(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_teams"

	var req teamsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTeamsBody)).Decode(&req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	teams, err := s.deps.BalanceTeams(r.Context(), req.PlayerIDs)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, teamsResponse{Teams: teams, Gap: teams.Gap()})
}
